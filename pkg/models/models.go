package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "Active"
	LoanStatusClosed LoanStatus = "Closed"
)

// EntryStatus reports whether a due entry has been collected.
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "Pending"
	EntryStatusPaid    EntryStatus = "Paid"
	EntryStatusMissed  EntryStatus = "Missed" // kept for data compatibility, never set by the recorder
)

type Customer struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"` // human-readable, unique
	Name          string    `json:"name"`
	Mobile1       string    `json:"mobile1"`
	Mobile2       string    `json:"mobile2,omitempty"`
	Address       string    `json:"address"`
	ReferenceName string    `json:"reference_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CustomerListing is a customer together with how many loans it has ever taken.
type CustomerListing struct {
	Customer
	TotalLoans int `json:"total_loans"`
}

type Loan struct {
	ID           uuid.UUID       `json:"id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Interest     decimal.Decimal `json:"interest"`
	AmountGiven  decimal.Decimal `json:"amount_given"`
	DailyAmount  decimal.Decimal `json:"daily_amount"`
	DurationDays int             `json:"duration_days"`
	LoanDate     Date            `json:"loan_date"`
	StartDate    Date            `json:"start_date"`
	EndDate      Date            `json:"end_date"`
	Status       LoanStatus      `json:"status"`
	ClosedOn     *Date           `json:"closed_on,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ScheduleTotal is what the daily installments add up to. It is not required to
// match TotalAmount.
func (l *Loan) ScheduleTotal() decimal.Decimal {
	return l.DailyAmount.Mul(decimal.NewFromInt(int64(l.DurationDays)))
}

// DueEntry is one day's installment of a loan schedule.
type DueEntry struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	CollectionDate Date            `json:"collection_date"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Status         EntryStatus     `json:"status"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AuditRecord captures one overwrite of a due entry's paid amount.
type AuditRecord struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	EntryID        uuid.UUID       `json:"entry_id"`
	CollectionDate Date            `json:"collection_date"`
	OldAmount      decimal.Decimal `json:"old_amount"`
	NewAmount      decimal.Decimal `json:"new_amount"`
	EditedAt       time.Time       `json:"edited_at"`
}

// LoanTerms are the operator-supplied parameters of a loan. Interest and
// AmountGiven are optional.
type LoanTerms struct {
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	Interest     *decimal.Decimal `json:"interest,omitempty"`
	AmountGiven  *decimal.Decimal `json:"amount_given,omitempty"`
	DailyAmount  decimal.Decimal  `json:"daily_amount"`
	DurationDays int              `json:"duration_days"`
	LoanDate     Date             `json:"loan_date"`
}

// CollectionRow is a due entry joined with the identity of the borrowing customer.
type CollectionRow struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	CustomerCode   string          `json:"customer_code"`
	CustomerName   string          `json:"customer_name"`
	CollectionDate Date            `json:"collection_date"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Status         EntryStatus     `json:"status"`
}
