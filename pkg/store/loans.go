package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
)

const loanColumns = `id, customer_id, total_amount, interest, amount_given, daily_amount, duration_days,
	loan_date, start_date, end_date, status, closed_on, created_at, updated_at`

// CreateLoan inserts a new loan into the database. A second Active loan for
// the same customer violates uq_loans_one_active and yields
// ErrDuplicateActiveLoan.
func (s *SQLStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.exec(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.CustomerID,
		models.ToMinor(loan.TotalAmount), models.ToMinor(loan.Interest), models.ToMinor(loan.AmountGiven), models.ToMinor(loan.DailyAmount),
		loan.DurationDays, loan.LoanDate, loan.StartDate, loan.EndDate, string(loan.Status), loan.ClosedOn,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer %s: %w", loan.CustomerID, models.ErrDuplicateActiveLoan)
		}
		return persistErr("create loan", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.queryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, models.ErrNotFound)
		}
		return nil, persistErr("get loan", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	result, err := s.exec(ctx,
		`UPDATE loans SET total_amount = ?, interest = ?, amount_given = ?, daily_amount = ?, duration_days = ?,
			loan_date = ?, start_date = ?, end_date = ?, status = ?, closed_on = ?, updated_at = ?
		WHERE id = ?`,
		models.ToMinor(loan.TotalAmount), models.ToMinor(loan.Interest), models.ToMinor(loan.AmountGiven), models.ToMinor(loan.DailyAmount),
		loan.DurationDays, loan.LoanDate, loan.StartDate, loan.EndDate, string(loan.Status), loan.ClosedOn, loan.UpdatedAt,
		loan.ID,
	)
	if err != nil {
		return persistErr("update loan", err)
	}
	return requireAffected(result, "loan", loan.ID)
}

// GetLoansForCustomer returns the customer's loans, newest first.
func (s *SQLStore) GetLoansForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.query(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY created_at DESC, loan_date DESC`, customerID)
	if err != nil {
		return nil, persistErr(fmt.Sprintf("get loans for customer %s", customerID), err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, persistErr("scan loan row", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate loans", err)
	}
	return loans, nil
}

func (s *SQLStore) CountActiveLoansForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	var n int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE customer_id = ? AND status = ?`, customerID, string(models.LoanStatusActive),
	).Scan(&n)
	if err != nil {
		return 0, persistErr("count active loans", err)
	}
	return n, nil
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		loan                          models.Loan
		total, interest, given, daily int64
		status                        string
		closedOn                      models.Date
	)
	err := row.Scan(&loan.ID, &loan.CustomerID, &total, &interest, &given, &daily, &loan.DurationDays,
		&loan.LoanDate, &loan.StartDate, &loan.EndDate, &status, &closedOn, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.TotalAmount = models.FromMinor(total)
	loan.Interest = models.FromMinor(interest)
	loan.AmountGiven = models.FromMinor(given)
	loan.DailyAmount = models.FromMinor(daily)
	loan.Status = models.LoanStatus(status)
	if !closedOn.IsZero() {
		loan.ClosedOn = &closedOn
	}
	return &loan, nil
}
