package store

import (
	"context"

	"github.com/mcclellann/dailyloan/pkg/models"
)

const ledgerJoin = ` FROM due_entries e
	JOIN loans l ON e.loan_id = l.id
	JOIN customers c ON l.customer_id = c.id`

const sumColumns = `CAST(COALESCE(SUM(e.amount_due), 0) AS BIGINT), CAST(COALESCE(SUM(e.amount_paid), 0) AS BIGINT)`

const collectionRowColumns = `e.id, l.id, c.id, c.code, c.name, e.collection_date, e.amount_due, e.amount_paid, e.status`

func (f EntryFilter) where() (string, []any) {
	clause := ` WHERE e.collection_date BETWEEN ? AND ?`
	args := []any{f.From, f.To}
	if f.CustomerID != nil {
		clause += ` AND l.customer_id = ?`
		args = append(args, *f.CustomerID)
	}
	return clause, args
}

func (s *SQLStore) CountCustomers(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n); err != nil {
		return 0, persistErr("count customers", err)
	}
	return n, nil
}

func (s *SQLStore) CountActiveLoans(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM loans WHERE status = ?`, string(models.LoanStatusActive)).Scan(&n); err != nil {
		return 0, persistErr("count active loans", err)
	}
	return n, nil
}

func (s *SQLStore) DayTotals(ctx context.Context, date models.Date, activeOnly bool) (Totals, error) {
	q := `SELECT ` + sumColumns + `, COUNT(DISTINCT CASE WHEN e.amount_paid > 0 THEN l.customer_id END), COUNT(*)` +
		ledgerJoin + ` WHERE e.collection_date = ?`
	args := []any{date}
	if activeOnly {
		q += ` AND l.status = ?`
		args = append(args, string(models.LoanStatusActive))
	}
	return s.totals(ctx, "day totals", q, args...)
}

func (s *SQLStore) RangeTotals(ctx context.Context, f EntryFilter) (Totals, error) {
	where, args := f.where()
	q := `SELECT ` + sumColumns + `, COUNT(DISTINCT CASE WHEN e.amount_paid > 0 THEN l.customer_id END), COUNT(*)` +
		ledgerJoin + where
	return s.totals(ctx, "range totals", q, args...)
}

func (s *SQLStore) totals(ctx context.Context, op, q string, args ...any) (Totals, error) {
	var due, paid int64
	var t Totals
	if err := s.queryRow(ctx, q, args...).Scan(&due, &paid, &t.CustomersPaid, &t.Entries); err != nil {
		return Totals{}, persistErr(op, err)
	}
	t.Due = models.FromMinor(due)
	t.Paid = models.FromMinor(paid)
	return t, nil
}

func (s *SQLStore) TotalsByCustomer(ctx context.Context, f EntryFilter) ([]CustomerTotals, error) {
	where, args := f.where()
	rows, err := s.query(ctx,
		`SELECT c.id, c.code, c.name, `+sumColumns+ledgerJoin+where+`
		GROUP BY c.id, c.code, c.name
		ORDER BY c.code`, args...)
	if err != nil {
		return nil, persistErr("totals by customer", err)
	}
	defer rows.Close()

	var out []CustomerTotals
	for rows.Next() {
		var ct CustomerTotals
		var due, paid int64
		if err := rows.Scan(&ct.CustomerID, &ct.CustomerCode, &ct.CustomerName, &due, &paid); err != nil {
			return nil, persistErr("scan customer totals", err)
		}
		ct.Due = models.FromMinor(due)
		ct.Paid = models.FromMinor(paid)
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate customer totals", err)
	}
	return out, nil
}

func (s *SQLStore) TotalsByDate(ctx context.Context, f EntryFilter) ([]DateTotals, error) {
	where, args := f.where()
	rows, err := s.query(ctx,
		`SELECT e.collection_date, `+sumColumns+ledgerJoin+where+`
		GROUP BY e.collection_date
		ORDER BY e.collection_date`, args...)
	if err != nil {
		return nil, persistErr("totals by date", err)
	}
	defer rows.Close()

	var out []DateTotals
	for rows.Next() {
		var dt DateTotals
		var due, paid int64
		if err := rows.Scan(&dt.Date, &due, &paid); err != nil {
			return nil, persistErr("scan date totals", err)
		}
		dt.Due = models.FromMinor(due)
		dt.Paid = models.FromMinor(paid)
		out = append(out, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate date totals", err)
	}
	return out, nil
}

func (s *SQLStore) UnpaidEntries(ctx context.Context, f EntryFilter) ([]models.CollectionRow, error) {
	where, args := f.where()
	return s.collectionRows(ctx, "unpaid entries",
		`SELECT `+collectionRowColumns+ledgerJoin+where+` AND e.amount_paid = 0
		ORDER BY e.collection_date, c.name, c.code`, args...)
}

func (s *SQLStore) CollectionRows(ctx context.Context, date models.Date) ([]models.CollectionRow, error) {
	return s.collectionRows(ctx, "collection rows",
		`SELECT `+collectionRowColumns+ledgerJoin+` WHERE e.collection_date = ? AND l.status = ?
		ORDER BY c.name, c.code`, date, string(models.LoanStatusActive))
}

func (s *SQLStore) collectionRows(ctx context.Context, op, q string, args ...any) ([]models.CollectionRow, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	var out []models.CollectionRow
	for rows.Next() {
		var (
			r         models.CollectionRow
			due, paid int64
			status    string
		)
		if err := rows.Scan(&r.EntryID, &r.LoanID, &r.CustomerID, &r.CustomerCode, &r.CustomerName,
			&r.CollectionDate, &due, &paid, &status); err != nil {
			return nil, persistErr("scan "+op, err)
		}
		r.AmountDue = models.FromMinor(due)
		r.AmountPaid = models.FromMinor(paid)
		r.Status = models.EntryStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate "+op, err)
	}
	return out, nil
}
