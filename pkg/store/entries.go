package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/shopspring/decimal"
)

const entryColumns = `id, loan_id, collection_date, amount_due, amount_paid, status, updated_at`

// InsertEntries writes the schedule in as few statements as possible.
func (s *SQLStore) InsertEntries(ctx context.Context, entries []models.DueEntry) error {
	for start := 0; start < len(entries); start += insertBatchRows {
		end := min(start+insertBatchRows, len(entries))
		batch := entries[start:end]

		var b strings.Builder
		b.WriteString(`INSERT INTO due_entries (` + entryColumns + `) VALUES `)
		args := make([]any, 0, len(batch)*7)
		for i, e := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholders(7))
			args = append(args, e.ID, e.LoanID, e.CollectionDate, models.ToMinor(e.AmountDue),
				models.ToMinor(e.AmountPaid), string(e.Status), e.UpdatedAt)
		}
		if _, err := s.exec(ctx, b.String(), args...); err != nil {
			return persistErr(fmt.Sprintf("insert due entries %d-%d", start, end-1), err)
		}
	}
	return nil
}

func (s *SQLStore) GetEntry(ctx context.Context, id uuid.UUID) (*models.DueEntry, error) {
	row := s.queryRow(ctx, `SELECT `+entryColumns+` FROM due_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("due entry %s: %w", id, models.ErrNotFound)
		}
		return nil, persistErr("get due entry", err)
	}
	return e, nil
}

// GetEntriesForLoan returns the loan's schedule ordered by collection date.
func (s *SQLStore) GetEntriesForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.DueEntry, error) {
	rows, err := s.query(ctx,
		`SELECT `+entryColumns+` FROM due_entries WHERE loan_id = ? ORDER BY collection_date ASC`, loanID)
	if err != nil {
		return nil, persistErr(fmt.Sprintf("get entries for loan %s", loanID), err)
	}
	defer rows.Close()

	var entries []*models.DueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, persistErr("scan due entry row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate due entries", err)
	}
	return entries, nil
}

// GetLatestEntry returns the loan's entry with the latest collection date.
func (s *SQLStore) GetLatestEntry(ctx context.Context, loanID uuid.UUID) (*models.DueEntry, error) {
	row := s.queryRow(ctx,
		`SELECT `+entryColumns+` FROM due_entries WHERE loan_id = ? ORDER BY collection_date DESC LIMIT 1`, loanID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest entry of loan %s: %w", loanID, models.ErrNotFound)
		}
		return nil, persistErr("get latest entry", err)
	}
	return e, nil
}

// UpdateEntryPayment overwrites the paid amount and status of one entry.
func (s *SQLStore) UpdateEntryPayment(ctx context.Context, e *models.DueEntry) error {
	result, err := s.exec(ctx,
		`UPDATE due_entries SET amount_paid = ?, status = ?, updated_at = ? WHERE id = ?`,
		models.ToMinor(e.AmountPaid), string(e.Status), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return persistErr("update due entry", err)
	}
	return requireAffected(result, "due entry", e.ID)
}

func (s *SQLStore) DeleteEntriesForLoan(ctx context.Context, loanID uuid.UUID) (int64, error) {
	result, err := s.exec(ctx, `DELETE FROM due_entries WHERE loan_id = ?`, loanID)
	if err != nil {
		return 0, persistErr("delete loan schedule", err)
	}
	return rowsAffected(result)
}

func (s *SQLStore) DeleteEntriesAfter(ctx context.Context, loanID uuid.UUID, date models.Date, keep uuid.UUID) (int64, error) {
	result, err := s.exec(ctx,
		`DELETE FROM due_entries WHERE loan_id = ? AND collection_date > ? AND id <> ?`, loanID, date, keep)
	if err != nil {
		return 0, persistErr("delete future entries", err)
	}
	return rowsAffected(result)
}

func (s *SQLStore) SumPaidForLoan(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	var paid int64
	err := s.queryRow(ctx,
		`SELECT CAST(COALESCE(SUM(amount_paid), 0) AS BIGINT) FROM due_entries WHERE loan_id = ?`, loanID,
	).Scan(&paid)
	if err != nil {
		return decimal.Zero, persistErr("sum paid for loan", err)
	}
	return models.FromMinor(paid), nil
}

func (s *SQLStore) AppendAudit(ctx context.Context, rec *models.AuditRecord) error {
	_, err := s.exec(ctx,
		`INSERT INTO audit_logs (id, loan_id, entry_id, collection_date, old_amount, new_amount, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LoanID, rec.EntryID, rec.CollectionDate,
		models.ToMinor(rec.OldAmount), models.ToMinor(rec.NewAmount), rec.EditedAt,
	)
	if err != nil {
		return persistErr("append audit record", err)
	}
	return nil
}

func (s *SQLStore) GetAuditForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.AuditRecord, error) {
	rows, err := s.query(ctx,
		`SELECT id, loan_id, entry_id, collection_date, old_amount, new_amount, edited_at
		FROM audit_logs WHERE loan_id = ? ORDER BY edited_at ASC`, loanID)
	if err != nil {
		return nil, persistErr("get audit records", err)
	}
	defer rows.Close()

	var out []*models.AuditRecord
	for rows.Next() {
		var (
			rec            models.AuditRecord
			oldAmt, newAmt int64
		)
		if err := rows.Scan(&rec.ID, &rec.LoanID, &rec.EntryID, &rec.CollectionDate, &oldAmt, &newAmt, &rec.EditedAt); err != nil {
			return nil, persistErr("scan audit row", err)
		}
		rec.OldAmount = models.FromMinor(oldAmt)
		rec.NewAmount = models.FromMinor(newAmt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate audit records", err)
	}
	return out, nil
}

func scanEntry(row rowScanner) (*models.DueEntry, error) {
	var (
		e         models.DueEntry
		due, paid int64
		status    string
	)
	if err := row.Scan(&e.ID, &e.LoanID, &e.CollectionDate, &due, &paid, &status, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.AmountDue = models.FromMinor(due)
	e.AmountPaid = models.FromMinor(paid)
	e.Status = models.EntryStatus(status)
	return &e, nil
}
