package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CollectionSheet is one day's collection round: every due entry of an
// Active loan dated that day.
type CollectionSheet struct {
	Date      models.Date            `json:"date"`
	Rows      []models.CollectionRow `json:"rows"`
	Expected  decimal.Decimal        `json:"expected"`
	Collected decimal.Decimal        `json:"collected"`
	Pending   decimal.Decimal        `json:"pending"`
}

// RecordPayment overwrites the amount paid against a single due entry. An
// amount of zero resets the entry to Pending. Recording the same amount twice
// leaves the entry unchanged.
func (l *Ledger) RecordPayment(ctx context.Context, entryID uuid.UUID, amount decimal.Decimal) (entry *models.DueEntry, err error) {
	defer l.observe("record_payment", &err)

	if err := checkAmount("amount_paid", amount); err != nil {
		return nil, err
	}

	var previous decimal.Decimal
	err = l.storage.WithTx(ctx, func(tx store.Storage) error {
		entry, err = tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		loan, err := tx.GetLoan(ctx, entry.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return fmt.Errorf("entry %s of loan %s: %w", entryID, loan.ID, models.ErrLoanNotActive)
		}

		previous = entry.AmountPaid
		entry.AmountPaid = amount
		entry.Status = models.EntryStatusPending
		if amount.IsPositive() {
			entry.Status = models.EntryStatusPaid
		}
		entry.UpdatedAt = l.now()
		if err := tx.UpdateEntryPayment(ctx, entry); err != nil {
			return err
		}
		return l.appendAudit(ctx, tx, entry, previous)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment recorded",
		zap.String("entry_id", entryID.String()),
		zap.String("loan_id", entry.LoanID.String()),
		zap.String("collection_date", entry.CollectionDate.String()),
		zap.String("previous", previous.String()),
		zap.String("amount", amount.String()),
	)
	return entry, nil
}

// appendAudit records an overwrite of e's paid amount when the audit trail is
// on and the amount actually changed.
func (l *Ledger) appendAudit(ctx context.Context, tx store.Storage, e *models.DueEntry, previous decimal.Decimal) error {
	if !l.audit || previous.Equal(e.AmountPaid) {
		return nil
	}
	return tx.AppendAudit(ctx, &models.AuditRecord{
		ID:             uuid.New(),
		LoanID:         e.LoanID,
		EntryID:        e.ID,
		CollectionDate: e.CollectionDate,
		OldAmount:      previous,
		NewAmount:      e.AmountPaid,
		EditedAt:       e.UpdatedAt,
	})
}

// CollectionSheet lists the entries due on date for active loans, ordered
// by customer name, with totals for the day.
func (l *Ledger) CollectionSheet(ctx context.Context, date models.Date) (*CollectionSheet, error) {
	if date.IsZero() {
		return nil, models.InvalidTerm("date", "is required")
	}
	rows, err := l.storage.CollectionRows(ctx, date)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.CollectionRow{}
	}

	sheet := &CollectionSheet{
		Date:      date,
		Rows:      rows,
		Expected:  decimal.Zero,
		Collected: decimal.Zero,
	}
	for _, r := range rows {
		sheet.Expected = sheet.Expected.Add(r.AmountDue)
		sheet.Collected = sheet.Collected.Add(r.AmountPaid)
	}
	sheet.Pending = sheet.Expected.Sub(sheet.Collected)
	return sheet, nil
}
