// Package schedule turns loan terms into a day-by-day repayment plan.
package schedule

import (
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/shopspring/decimal"
)

// Window returns the first and last collection day of a loan disbursed on
// loanDate. Collection starts the day after disbursement.
func Window(loanDate models.Date, durationDays int) (start, end models.Date) {
	start = loanDate.AddDays(1)
	end = start.AddDays(durationDays - 1)
	return start, end
}

// Generate builds one pending due entry per day starting at start. The result
// carries no IDs; callers stamp loan and entry identity before persisting.
func Generate(start models.Date, dailyAmount decimal.Decimal, durationDays int) ([]models.DueEntry, error) {
	if durationDays < 1 {
		return nil, models.InvalidTerm("duration_days", "must be at least 1")
	}
	if dailyAmount.IsNegative() {
		return nil, models.InvalidTerm("daily_amount", "must not be negative")
	}
	if start.IsZero() {
		return nil, models.InvalidTerm("start_date", "is required")
	}

	entries := make([]models.DueEntry, durationDays)
	for i := range entries {
		entries[i] = models.DueEntry{
			CollectionDate: start.AddDays(i),
			AmountDue:      dailyAmount,
			AmountPaid:     decimal.Zero,
			Status:         models.EntryStatusPending,
		}
	}
	return entries, nil
}
