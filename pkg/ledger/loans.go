package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/schedule"
	"github.com/mcclellann/dailyloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LoanSummary holds the figures derived from a loan's schedule.
type LoanSummary struct {
	Paid              decimal.Decimal `json:"paid"`
	Remaining         decimal.Decimal `json:"remaining"` // total_amount - paid
	ScheduleTotal     decimal.Decimal `json:"schedule_total"`
	ScheduleMismatch  decimal.Decimal `json:"schedule_mismatch"` // schedule_total - total_amount
	CollectionStarted bool            `json:"collection_started"`
}

// LoanDetail is a loan with its owner, schedule, summary and audit history.
type LoanDetail struct {
	Customer *models.Customer      `json:"customer"`
	Loan     *models.Loan          `json:"loan"`
	Entries  []*models.DueEntry    `json:"entries"`
	Summary  LoanSummary           `json:"summary"`
	Audit    []*models.AuditRecord `json:"audit,omitempty"`
}

// resolvedTerms are LoanTerms with defaults applied and every field checked.
type resolvedTerms struct {
	total, interest, given, daily decimal.Decimal
	days                          int
	loanDate                      models.Date
}

func checkAmount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return models.InvalidTerm(field, "must not be negative")
	}
	if !models.WithinMaxAmount(d) {
		return models.InvalidTerm(field, "must not exceed "+models.MaxAmount.String())
	}
	if !models.FitsMoneyScale(d) {
		return models.InvalidTerm(field, fmt.Sprintf("must have at most %d decimal places", models.MoneyScale))
	}
	return nil
}

// resolveTerms validates the terms independently of each other: the schedule
// total is not required to equal the total amount.
func resolveTerms(t models.LoanTerms) (resolvedTerms, error) {
	r := resolvedTerms{
		total:    t.TotalAmount,
		interest: decimal.Zero,
		daily:    t.DailyAmount,
		days:     t.DurationDays,
		loanDate: t.LoanDate,
	}
	if t.Interest != nil {
		r.interest = *t.Interest
	}
	if t.AmountGiven != nil {
		r.given = *t.AmountGiven
	} else {
		r.given = decimal.Max(r.total.Sub(r.interest), decimal.Zero)
	}

	for _, a := range []struct {
		field string
		value decimal.Decimal
	}{
		{"total_amount", r.total},
		{"interest", r.interest},
		{"amount_given", r.given},
		{"daily_amount", r.daily},
	} {
		if err := checkAmount(a.field, a.value); err != nil {
			return resolvedTerms{}, err
		}
	}
	if r.days < 1 {
		return resolvedTerms{}, models.InvalidTerm("duration_days", "must be at least 1")
	}
	if r.loanDate.IsZero() {
		return resolvedTerms{}, models.InvalidTerm("loan_date", "is required")
	}
	return r, nil
}

// apply writes the terms onto loan and returns its freshly generated schedule.
func (l *Ledger) apply(loan *models.Loan, r resolvedTerms) ([]models.DueEntry, error) {
	start, end := schedule.Window(r.loanDate, r.days)
	entries, err := schedule.Generate(start, r.daily, r.days)
	if err != nil {
		return nil, err
	}

	now := l.now()
	loan.TotalAmount = r.total
	loan.Interest = r.interest
	loan.AmountGiven = r.given
	loan.DailyAmount = r.daily
	loan.DurationDays = r.days
	loan.LoanDate = r.loanDate
	loan.StartDate = start
	loan.EndDate = end
	loan.UpdatedAt = now

	for i := range entries {
		entries[i].ID = uuid.New()
		entries[i].LoanID = loan.ID
		entries[i].UpdatedAt = now
	}
	return entries, nil
}

func (l *Ledger) newLoan(customerID uuid.UUID, r resolvedTerms) (*models.Loan, []models.DueEntry, error) {
	loan := &models.Loan{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     models.LoanStatusActive,
		CreatedAt:  l.now(),
	}
	entries, err := l.apply(loan, r)
	if err != nil {
		return nil, nil, err
	}
	return loan, entries, nil
}

func persistLoan(ctx context.Context, tx store.Storage, loan *models.Loan, entries []models.DueEntry) error {
	if err := tx.CreateLoan(ctx, loan); err != nil {
		return err
	}
	return tx.InsertEntries(ctx, entries)
}

// CreateLoan registers a new customer together with their first loan and its
// schedule, all in one transaction.
func (l *Ledger) CreateLoan(ctx context.Context, in NewCustomer, terms models.LoanTerms) (c *models.Customer, loan *models.Loan, err error) {
	defer l.observe("create_loan", &err)

	c, err = l.newCustomer(in)
	if err != nil {
		return nil, nil, err
	}
	r, err := resolveTerms(terms)
	if err != nil {
		return nil, nil, err
	}
	loan, entries, err := l.newLoan(c.ID, r)
	if err != nil {
		return nil, nil, err
	}

	if err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		if err := insertCustomer(ctx, tx, c); err != nil {
			return err
		}
		return persistLoan(ctx, tx, loan, entries)
	}); err != nil {
		return nil, nil, err
	}

	l.logger.Info("customer and loan created",
		zap.String("customer_id", c.ID.String()),
		zap.String("loan_id", loan.ID.String()),
		zap.Int("entries", len(entries)),
	)
	return c, loan, nil
}

// AddLoan opens a new loan for an existing customer. Closed loans do not
// matter; an Active one does.
func (l *Ledger) AddLoan(ctx context.Context, customerID uuid.UUID, terms models.LoanTerms) (loan *models.Loan, err error) {
	defer l.observe("add_loan", &err)

	r, err := resolveTerms(terms)
	if err != nil {
		return nil, err
	}
	loan, entries, err := l.newLoan(customerID, r)
	if err != nil {
		return nil, err
	}

	err = l.storage.WithTx(ctx, func(tx store.Storage) error {
		if _, err := tx.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		active, err := tx.CountActiveLoansForCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("customer %s: %w", customerID, models.ErrDuplicateActiveLoan)
		}
		return persistLoan(ctx, tx, loan, entries)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan added",
		zap.String("customer_id", customerID.String()),
		zap.String("loan_id", loan.ID.String()),
		zap.Int("entries", len(entries)),
	)
	return loan, nil
}

// EditLoan replaces the terms of a loan that has not collected anything yet.
// The existing schedule is discarded and generated again from scratch.
func (l *Ledger) EditLoan(ctx context.Context, loanID uuid.UUID, terms models.LoanTerms) (loan *models.Loan, err error) {
	defer l.observe("edit_loan", &err)

	r, err := resolveTerms(terms)
	if err != nil {
		return nil, err
	}

	var removed int64
	err = l.storage.WithTx(ctx, func(tx store.Storage) error {
		loan, err = tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return fmt.Errorf("edit loan %s: %w", loanID, models.ErrLoanNotActive)
		}
		paid, err := tx.SumPaidForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return fmt.Errorf("loan %s has collected %s: %w", loanID, paid, models.ErrEditAfterCollection)
		}

		entries, err := l.apply(loan, r)
		if err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if removed, err = tx.DeleteEntriesForLoan(ctx, loanID); err != nil {
			return err
		}
		return tx.InsertEntries(ctx, entries)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan edited, schedule regenerated",
		zap.String("loan_id", loanID.String()),
		zap.Int64("entries_removed", removed),
		zap.Int("entries_created", loan.DurationDays),
	)
	return loan, nil
}

// CloseLoan settles an Active loan. The latest-dated entry absorbs the whole
// closeAmount and every other entry dated after closeDate is removed. Nothing
// from the removed entries is redistributed.
func (l *Ledger) CloseLoan(ctx context.Context, loanID uuid.UUID, closeAmount decimal.Decimal, closeDate models.Date) (loan *models.Loan, err error) {
	defer l.observe("close_loan", &err)

	if err := checkAmount("close_amount", closeAmount); err != nil {
		return nil, err
	}
	if closeDate.IsZero() {
		return nil, models.InvalidTerm("close_date", "is required")
	}

	var removed int64
	err = l.storage.WithTx(ctx, func(tx store.Storage) error {
		loan, err = tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return fmt.Errorf("close loan %s: %w", loanID, models.ErrLoanNotActive)
		}
		latest, err := tx.GetLatestEntry(ctx, loanID)
		if err != nil {
			return err
		}

		now := l.now()
		loan.Status = models.LoanStatusClosed
		loan.ClosedOn = &closeDate
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		previous := latest.AmountPaid
		latest.AmountPaid = closeAmount
		latest.Status = models.EntryStatusPaid
		latest.UpdatedAt = now
		if err := tx.UpdateEntryPayment(ctx, latest); err != nil {
			return err
		}
		if err := l.appendAudit(ctx, tx, latest, previous); err != nil {
			return err
		}

		removed, err = tx.DeleteEntriesAfter(ctx, loanID, closeDate, latest.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("loan closed",
		zap.String("loan_id", loanID.String()),
		zap.String("close_amount", closeAmount.String()),
		zap.String("close_date", closeDate.String()),
		zap.Int64("entries_removed", removed),
	)
	return loan, nil
}

// ListLoans returns every loan of a customer, closed ones included, most
// recently created first.
func (l *Ledger) ListLoans(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	if _, err := l.storage.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return l.storage.GetLoansForCustomer(ctx, customerID)
}

// GetLoan returns a loan with its owner, its ordered schedule and the derived
// paid/remaining figures.
func (l *Ledger) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error) {
	d := &LoanDetail{}
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		var err error
		if d.Loan, err = tx.GetLoan(ctx, loanID); err != nil {
			return err
		}
		if d.Customer, err = tx.GetCustomer(ctx, d.Loan.CustomerID); err != nil {
			return err
		}
		if d.Entries, err = tx.GetEntriesForLoan(ctx, loanID); err != nil {
			return err
		}
		if l.audit {
			if d.Audit, err = tx.GetAuditForLoan(ctx, loanID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	paid := decimal.Zero
	for _, e := range d.Entries {
		paid = paid.Add(e.AmountPaid)
	}
	if d.Entries == nil {
		d.Entries = []*models.DueEntry{}
	}
	scheduleTotal := d.Loan.ScheduleTotal()
	d.Summary = LoanSummary{
		Paid:              paid,
		Remaining:         d.Loan.TotalAmount.Sub(paid),
		ScheduleTotal:     scheduleTotal,
		ScheduleMismatch:  scheduleTotal.Sub(d.Loan.TotalAmount),
		CollectionStarted: paid.IsPositive(),
	}
	return d, nil
}
