package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// stores returns SQLite always, plus PostgreSQL when LEDGER_TEST_POSTGRES_DSN
// points at a disposable database.
func stores(t *testing.T) map[string]*SQLStore {
	t.Helper()
	out := map[string]*SQLStore{"sqlite": newSQLiteStore(t)}
	if dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN"); dsn != "" {
		s, err := NewPostgresStore(dsn, nil)
		require.NoError(t, err)
		_, err = s.db.Exec(`TRUNCATE audit_logs, due_entries, loans, customers`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		out["postgres"] = s
	}
	return out
}

func seedCustomer(t *testing.T, s Storage, code, name string) *models.Customer {
	t.Helper()
	c := &models.Customer{
		ID:        uuid.New(),
		Code:      code,
		Name:      name,
		Mobile1:   "9000000000",
		Address:   "12 Temple Street",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateCustomer(context.Background(), c))
	return c
}

func seedLoan(t *testing.T, s Storage, customerID uuid.UUID, loanDate string, daily decimal.Decimal, days int) (*models.Loan, []models.DueEntry) {
	t.Helper()
	ctx := context.Background()
	ld := models.MustParseDate(loanDate)
	now := time.Now().UTC()
	loan := &models.Loan{
		ID:           uuid.New(),
		CustomerID:   customerID,
		TotalAmount:  daily.Mul(decimal.NewFromInt(int64(days))),
		Interest:     decimal.Zero,
		AmountGiven:  daily.Mul(decimal.NewFromInt(int64(days))),
		DailyAmount:  daily,
		DurationDays: days,
		LoanDate:     ld,
		StartDate:    ld.AddDays(1),
		EndDate:      ld.AddDays(days),
		Status:       models.LoanStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateLoan(ctx, loan))

	entries := make([]models.DueEntry, days)
	for i := range entries {
		entries[i] = models.DueEntry{
			ID:             uuid.New(),
			LoanID:         loan.ID,
			CollectionDate: loan.StartDate.AddDays(i),
			AmountDue:      daily,
			AmountPaid:     decimal.Zero,
			Status:         models.EntryStatusPending,
			UpdatedAt:      now,
		}
	}
	require.NoError(t, s.InsertEntries(ctx, entries))
	return loan, entries
}

func TestSQLStore_CustomerRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := seedCustomer(t, s, "GF-001", "Lakshmi")

			got, err := s.GetCustomer(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "GF-001", got.Code)
			assert.Equal(t, "Lakshmi", got.Name)

			byCode, err := s.GetCustomerByCode(ctx, "GF-001")
			require.NoError(t, err)
			assert.Equal(t, c.ID, byCode.ID)

			got.Address = "14 Market Road"
			require.NoError(t, s.UpdateCustomer(ctx, got))
			got, err = s.GetCustomer(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "14 Market Road", got.Address)

			dup := &models.Customer{ID: uuid.New(), Code: "GF-001", Name: "Other", CreatedAt: time.Now().UTC()}
			assert.ErrorIs(t, s.CreateCustomer(ctx, dup), models.ErrDuplicateCustomerCode)

			_, err = s.GetCustomer(ctx, uuid.New())
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestSQLStore_ListCustomersSearch(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	a := seedCustomer(t, s, "GF-010", "Murugan")
	seedCustomer(t, s, "GF-011", "Saravanan")
	seedLoan(t, s, a.ID, "2024-01-01", decimal.NewFromInt(100), 3)

	all, err := s.ListCustomers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	found, err := s.ListCustomers(ctx, "muru")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, found[0].TotalLoans)

	found, err = s.ListCustomers(ctx, "gf-011")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Saravanan", found[0].Name)
	assert.Equal(t, 0, found[0].TotalLoans)
}

func TestSQLStore_LoanAndScheduleRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := seedCustomer(t, s, "GF-100", "Devi")
			// More rows than one insert batch holds.
			loan, _ := seedLoan(t, s, c.ID, "2024-01-01", decimal.RequireFromString("12.75"), 250)

			got, err := s.GetLoan(ctx, loan.ID)
			require.NoError(t, err)
			assert.True(t, got.DailyAmount.Equal(decimal.RequireFromString("12.75")))
			assert.Equal(t, "2024-01-02", got.StartDate.String())
			assert.Equal(t, models.LoanStatusActive, got.Status)
			assert.Nil(t, got.ClosedOn)

			entries, err := s.GetEntriesForLoan(ctx, loan.ID)
			require.NoError(t, err)
			require.Len(t, entries, 250)
			assert.Equal(t, "2024-01-02", entries[0].CollectionDate.String())
			assert.Equal(t, loan.StartDate.AddDays(249), entries[249].CollectionDate)

			latest, err := s.GetLatestEntry(ctx, loan.ID)
			require.NoError(t, err)
			assert.Equal(t, entries[249].ID, latest.ID)

			n, err := s.CountActiveLoansForCustomer(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			closed := models.MustParseDate("2024-02-01")
			got.Status = models.LoanStatusClosed
			got.ClosedOn = &closed
			require.NoError(t, s.UpdateLoan(ctx, got))
			got, err = s.GetLoan(ctx, loan.ID)
			require.NoError(t, err)
			require.NotNil(t, got.ClosedOn)
			assert.Equal(t, "2024-02-01", got.ClosedOn.String())
		})
	}
}

func TestSQLStore_OneActiveLoanPerCustomer(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := seedCustomer(t, s, "GF-150", "Selvi")
			first, _ := seedLoan(t, s, c.ID, "2024-01-01", decimal.NewFromInt(100), 5)

			now := time.Now().UTC()
			second := *first
			second.ID = uuid.New()
			second.CreatedAt, second.UpdatedAt = now, now
			err := s.CreateLoan(ctx, &second)
			require.ErrorIs(t, err, models.ErrDuplicateActiveLoan)

			closedOn := models.MustParseDate("2024-01-06")
			first.Status = models.LoanStatusClosed
			first.ClosedOn = &closedOn
			require.NoError(t, s.UpdateLoan(ctx, first))
			require.NoError(t, s.CreateLoan(ctx, &second))

			n, err := s.CountActiveLoansForCustomer(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestSQLStore_DeleteEntriesAfterKeepsSettlement(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "GF-200", "Kumar")
	loan, entries := seedLoan(t, s, c.ID, "2024-01-01", decimal.NewFromInt(100), 5)

	n, err := s.DeleteEntriesAfter(ctx, loan.ID, models.MustParseDate("2024-01-03"), entries[4].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := s.GetEntriesForLoan(ctx, loan.ID)
	require.NoError(t, err)
	var dates []string
	for _, e := range left {
		dates = append(dates, e.CollectionDate.String())
	}
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-06"}, dates)
}

func TestSQLStore_PaymentAndAudit(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "GF-300", "Anitha")
	loan, entries := seedLoan(t, s, c.ID, "2024-01-01", decimal.NewFromInt(100), 3)

	e := entries[0]
	e.AmountPaid = decimal.RequireFromString("99.50")
	e.Status = models.EntryStatusPaid
	e.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateEntryPayment(ctx, &e))

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, models.EntryStatusPaid, got.Status)

	paid, err := s.SumPaidForLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, paid.Equal(decimal.RequireFromString("99.5")))

	require.NoError(t, s.AppendAudit(ctx, &models.AuditRecord{
		ID: uuid.New(), LoanID: loan.ID, EntryID: e.ID, CollectionDate: e.CollectionDate,
		OldAmount: decimal.Zero, NewAmount: e.AmountPaid, EditedAt: time.Now().UTC(),
	}))
	audit, err := s.GetAuditForLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.True(t, audit[0].NewAmount.Equal(e.AmountPaid))

	missing := models.DueEntry{ID: uuid.New(), UpdatedAt: time.Now().UTC()}
	assert.ErrorIs(t, s.UpdateEntryPayment(ctx, &missing), models.ErrNotFound)
}

func TestSQLStore_DeleteCustomerCascades(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := seedCustomer(t, s, "GF-400", "Ravi")
			other := seedCustomer(t, s, "GF-401", "Geetha")
			loan, entries := seedLoan(t, s, c.ID, "2024-01-01", decimal.NewFromInt(50), 4)
			otherLoan, _ := seedLoan(t, s, other.ID, "2024-01-01", decimal.NewFromInt(50), 4)

			require.NoError(t, s.DeleteCustomer(ctx, c.ID))

			_, err := s.GetCustomer(ctx, c.ID)
			assert.ErrorIs(t, err, models.ErrNotFound)
			_, err = s.GetLoan(ctx, loan.ID)
			assert.ErrorIs(t, err, models.ErrNotFound)
			_, err = s.GetEntry(ctx, entries[0].ID)
			assert.ErrorIs(t, err, models.ErrNotFound)

			kept, err := s.GetEntriesForLoan(ctx, otherLoan.ID)
			require.NoError(t, err)
			assert.Len(t, kept, 4)

			assert.ErrorIs(t, s.DeleteCustomer(ctx, c.ID), models.ErrNotFound)
		})
	}
}

func TestSQLStore_WithTxRollsBack(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	boom := assert.AnError

	err := s.WithTx(ctx, func(tx Storage) error {
		seedCustomer(t, tx, "GF-500", "Rolled Back")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetCustomerByCode(ctx, "GF-500")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSQLStore_ReportQueries(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedCustomer(t, s, "GF-600", "Arun")
			b := seedCustomer(t, s, "GF-601", "Bala")
			_, ea := seedLoan(t, s, a.ID, "2024-01-01", decimal.NewFromInt(100), 5)
			loanB, eb := seedLoan(t, s, b.ID, "2024-01-02", decimal.NewFromInt(40), 5)

			pay := func(e models.DueEntry, amt int64) {
				e.AmountPaid = decimal.NewFromInt(amt)
				e.Status = models.EntryStatusPaid
				e.UpdatedAt = time.Now().UTC()
				require.NoError(t, s.UpdateEntryPayment(ctx, &e))
			}
			pay(ea[0], 100) // 2024-01-02
			pay(eb[0], 40)  // 2024-01-03

			f := EntryFilter{From: models.MustParseDate("2024-01-02"), To: models.MustParseDate("2024-01-06")}
			totals, err := s.RangeTotals(ctx, f)
			require.NoError(t, err)
			// a: 5 x 100, b: 4 x 40 inside the range.
			assert.True(t, totals.Due.Equal(decimal.NewFromInt(660)), totals.Due.String())
			assert.True(t, totals.Paid.Equal(decimal.NewFromInt(140)), totals.Paid.String())
			assert.Equal(t, 2, totals.CustomersPaid)
			assert.Equal(t, 9, totals.Entries)

			byCustomer, err := s.TotalsByCustomer(ctx, f)
			require.NoError(t, err)
			require.Len(t, byCustomer, 2)
			assert.Equal(t, "GF-600", byCustomer[0].CustomerCode)
			assert.True(t, byCustomer[1].Due.Equal(decimal.NewFromInt(160)))

			byDate, err := s.TotalsByDate(ctx, f)
			require.NoError(t, err)
			require.Len(t, byDate, 5)
			assert.Equal(t, "2024-01-02", byDate[0].Date.String())
			assert.True(t, byDate[0].Due.Equal(decimal.NewFromInt(100)))
			assert.True(t, byDate[1].Due.Equal(decimal.NewFromInt(140)))

			unpaid, err := s.UnpaidEntries(ctx, f)
			require.NoError(t, err)
			assert.Len(t, unpaid, 7)

			onlyB := f
			onlyB.CustomerID = &b.ID
			bTotals, err := s.RangeTotals(ctx, onlyB)
			require.NoError(t, err)
			assert.True(t, bTotals.Due.Equal(decimal.NewFromInt(160)))

			closedLoan, err := s.GetLoan(ctx, loanB.ID)
			require.NoError(t, err)
			closedLoan.Status = models.LoanStatusClosed
			require.NoError(t, s.UpdateLoan(ctx, closedLoan))

			day := models.MustParseDate("2024-01-03")
			all, err := s.DayTotals(ctx, day, false)
			require.NoError(t, err)
			active, err := s.DayTotals(ctx, day, true)
			require.NoError(t, err)
			assert.True(t, all.Due.Equal(decimal.NewFromInt(140)))
			assert.True(t, active.Due.Equal(decimal.NewFromInt(100)))

			rows, err := s.CollectionRows(ctx, day)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Arun", rows[0].CustomerName)

			nc, err := s.CountCustomers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, nc)
			nl, err := s.CountActiveLoans(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, nl)
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "SELECT ? ", lite.rebind("SELECT ? "))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "(?, ?, ?)", placeholders(3))
}
