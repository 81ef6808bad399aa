package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Snapshot is the single-day dashboard.
type Snapshot struct {
	Date        models.Date     `json:"date"`
	Customers   int             `json:"customers"`
	ActiveLoans int             `json:"active_loans"`
	Collected   decimal.Decimal `json:"collected"` // every loan, Active or Closed
	Expected    decimal.Decimal `json:"expected"`  // Active loans only
	Pending     decimal.Decimal `json:"pending"`   // expected - collected on Active loans
}

// CustomerLine is one customer's share of a range report.
type CustomerLine struct {
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerCode string          `json:"customer_code"`
	CustomerName string          `json:"customer_name"`
	Due          decimal.Decimal `json:"due"`
	Paid         decimal.Decimal `json:"paid"`
	Pending      decimal.Decimal `json:"pending"`
}

// DateLine is one day of a range report.
type DateLine struct {
	Date    models.Date     `json:"date"`
	Due     decimal.Decimal `json:"due"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
}

// RangeReport aggregates every due entry dated within [From, To].
type RangeReport struct {
	From          models.Date            `json:"from"`
	To            models.Date            `json:"to"`
	CustomerID    *uuid.UUID             `json:"customer_id,omitempty"`
	TotalDue      decimal.Decimal        `json:"total_due"`
	TotalPaid     decimal.Decimal        `json:"total_paid"`
	TotalPending  decimal.Decimal        `json:"total_pending"`
	CustomersPaid int                    `json:"customers_paid"`
	Entries       int                    `json:"entries"`
	ByCustomer    []CustomerLine         `json:"by_customer"`
	ByDate        []DateLine             `json:"by_date"`
	Pending       []models.CollectionRow `json:"pending"`
}

// Aggregator computes read-only reports over the ledger.
type Aggregator struct {
	storage store.Storage
	logger  *zap.Logger
}

// NewAggregator returns an Aggregator over s. A nil logger means no logging.
func NewAggregator(s store.Storage, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{storage: s, logger: logger}
}

// Snapshot reports the counts and collection figures for one day.
func (a *Aggregator) Snapshot(ctx context.Context, date models.Date) (*Snapshot, error) {
	if date.IsZero() {
		return nil, models.InvalidTerm("date", "is required")
	}

	snap := &Snapshot{Date: date}
	err := a.storage.WithTx(ctx, func(tx store.Storage) error {
		var err error
		if snap.Customers, err = tx.CountCustomers(ctx); err != nil {
			return err
		}
		if snap.ActiveLoans, err = tx.CountActiveLoans(ctx); err != nil {
			return err
		}
		all, err := tx.DayTotals(ctx, date, false)
		if err != nil {
			return err
		}
		active, err := tx.DayTotals(ctx, date, true)
		if err != nil {
			return err
		}
		snap.Collected = all.Paid
		snap.Expected = active.Due
		snap.Pending = active.Due.Sub(active.Paid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Range builds the range report, optionally for a single customer. Every
// query runs in one transaction so the totals and groupings agree.
func (a *Aggregator) Range(ctx context.Context, from, to models.Date, customerID *uuid.UUID) (*RangeReport, error) {
	if from.IsZero() || to.IsZero() {
		return nil, models.InvalidTerm("range", "from and to are required")
	}
	if from.After(to) {
		return nil, models.InvalidTerm("range", fmt.Sprintf("from %s is after to %s", from, to))
	}

	f := store.EntryFilter{From: from, To: to, CustomerID: customerID}
	r := &RangeReport{From: from, To: to, CustomerID: customerID}
	err := a.storage.WithTx(ctx, func(tx store.Storage) error {
		if customerID != nil {
			if _, err := tx.GetCustomer(ctx, *customerID); err != nil {
				return err
			}
		}

		totals, err := tx.RangeTotals(ctx, f)
		if err != nil {
			return err
		}
		r.TotalDue = totals.Due
		r.TotalPaid = totals.Paid
		r.TotalPending = totals.Due.Sub(totals.Paid)
		r.CustomersPaid = totals.CustomersPaid
		r.Entries = totals.Entries

		byCustomer, err := tx.TotalsByCustomer(ctx, f)
		if err != nil {
			return err
		}
		r.ByCustomer = make([]CustomerLine, 0, len(byCustomer))
		for _, c := range byCustomer {
			r.ByCustomer = append(r.ByCustomer, CustomerLine{
				CustomerID:   c.CustomerID,
				CustomerCode: c.CustomerCode,
				CustomerName: c.CustomerName,
				Due:          c.Due,
				Paid:         c.Paid,
				Pending:      c.Due.Sub(c.Paid),
			})
		}

		byDate, err := tx.TotalsByDate(ctx, f)
		if err != nil {
			return err
		}
		r.ByDate = make([]DateLine, 0, len(byDate))
		for _, d := range byDate {
			r.ByDate = append(r.ByDate, DateLine{Date: d.Date, Due: d.Due, Paid: d.Paid, Pending: d.Due.Sub(d.Paid)})
		}

		if r.Pending, err = tx.UnpaidEntries(ctx, f); err != nil {
			return err
		}
		if r.Pending == nil {
			r.Pending = []models.CollectionRow{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("range report built",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("entries", r.Entries),
		zap.Int("customers", len(r.ByCustomer)),
	)
	return r, nil
}
