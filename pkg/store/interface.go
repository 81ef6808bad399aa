package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/shopspring/decimal"
)

// Storage defines the interface for database operations on customers, loans
// and their daily due entries. Every method of a Storage obtained inside WithTx
// runs on the same transaction.
type Storage interface {
	// WithTx runs fn inside a single transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Storage) error) error

	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetCustomerByCode(ctx context.Context, code string) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	ListCustomers(ctx context.Context, search string) ([]*models.CustomerListing, error)
	// DeleteCustomer removes the customer with all of its loans and entries.
	DeleteCustomer(ctx context.Context, id uuid.UUID) error

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	GetLoansForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error)
	CountActiveLoansForCustomer(ctx context.Context, customerID uuid.UUID) (int, error)

	// InsertEntries writes a whole schedule with batched multi-row inserts.
	InsertEntries(ctx context.Context, entries []models.DueEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*models.DueEntry, error)
	GetEntriesForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.DueEntry, error)
	GetLatestEntry(ctx context.Context, loanID uuid.UUID) (*models.DueEntry, error)
	UpdateEntryPayment(ctx context.Context, e *models.DueEntry) error
	DeleteEntriesForLoan(ctx context.Context, loanID uuid.UUID) (int64, error)
	// DeleteEntriesAfter removes entries dated strictly after date, keeping keep.
	DeleteEntriesAfter(ctx context.Context, loanID uuid.UUID, date models.Date, keep uuid.UUID) (int64, error)
	SumPaidForLoan(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)

	AppendAudit(ctx context.Context, rec *models.AuditRecord) error
	GetAuditForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.AuditRecord, error)

	ReportReader

	Ping(ctx context.Context) error
	Close() error
}

// EntryFilter narrows ledger reads to a date range and optionally one customer.
type EntryFilter struct {
	From       models.Date
	To         models.Date
	CustomerID *uuid.UUID
}

// Totals are the aggregate amounts over a set of due entries.
type Totals struct {
	Due           decimal.Decimal
	Paid          decimal.Decimal
	CustomersPaid int
	Entries       int
}

// CustomerTotals groups range totals by customer.
type CustomerTotals struct {
	CustomerID   uuid.UUID
	CustomerCode string
	CustomerName string
	Due          decimal.Decimal
	Paid         decimal.Decimal
}

// DateTotals groups range totals by due date.
type DateTotals struct {
	Date models.Date
	Due  decimal.Decimal
	Paid decimal.Decimal
}

// ReportReader holds the aggregate, read-only queries used for reporting.
type ReportReader interface {
	CountCustomers(ctx context.Context) (int, error)
	CountActiveLoans(ctx context.Context) (int, error)
	// DayTotals sums one day's entries; activeOnly restricts to Active loans.
	DayTotals(ctx context.Context, date models.Date, activeOnly bool) (Totals, error)
	RangeTotals(ctx context.Context, f EntryFilter) (Totals, error)
	TotalsByCustomer(ctx context.Context, f EntryFilter) ([]CustomerTotals, error)
	TotalsByDate(ctx context.Context, f EntryFilter) ([]DateTotals, error)
	// UnpaidEntries lists entries with nothing paid.
	UnpaidEntries(ctx context.Context, f EntryFilter) ([]models.CollectionRow, error)
	// CollectionRows lists one day's entries of Active loans, ordered by customer name.
	CollectionRows(ctx context.Context, date models.Date) ([]models.CollectionRow, error)
}
