// Package statement renders a customer's loan statement as CSV.
package statement

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/shopspring/decimal"
)

// Statement is everything printed on one loan statement.
type Statement struct {
	Customer *models.Customer
	Loan     *models.Loan
	Entries  []*models.DueEntry
}

// WriteCSV writes a header block with the customer and loan summary, a blank
// line, then one row per due entry in the given order.
func WriteCSV(w io.Writer, s Statement) error {
	if s.Customer == nil || s.Loan == nil {
		return fmt.Errorf("statement needs a customer and a loan")
	}

	paid := decimal.Zero
	for _, e := range s.Entries {
		paid = paid.Add(e.AmountPaid)
	}
	loan := s.Loan
	scheduleTotal := loan.ScheduleTotal()

	records := [][]string{
		{"Customer Code", s.Customer.Code},
		{"Customer Name", s.Customer.Name},
		{"Mobile", s.Customer.Mobile1},
		{"Address", s.Customer.Address},
		{"Loan Date", loan.LoanDate.String()},
		{"Period", loan.StartDate.String() + " to " + loan.EndDate.String()},
		{"Status", string(loan.Status)},
		{"Total Amount", loan.TotalAmount.StringFixed(models.MoneyScale)},
		{"Interest", loan.Interest.StringFixed(models.MoneyScale)},
		{"Amount Given", loan.AmountGiven.StringFixed(models.MoneyScale)},
		{"Daily Amount", loan.DailyAmount.StringFixed(models.MoneyScale)},
		{"Duration (days)", fmt.Sprint(loan.DurationDays)},
		{"Paid", paid.StringFixed(models.MoneyScale)},
		{"Remaining", loan.TotalAmount.Sub(paid).StringFixed(models.MoneyScale)},
	}
	if loan.ClosedOn != nil {
		records = append(records, []string{"Closed On", loan.ClosedOn.String()})
	}
	if !scheduleTotal.Equal(loan.TotalAmount) {
		records = append(records, []string{"Note", fmt.Sprintf("daily schedule totals %s against a total amount of %s",
			scheduleTotal.StringFixed(models.MoneyScale), loan.TotalAmount.StringFixed(models.MoneyScale))})
	}
	records = append(records, []string{}, []string{"Date", "Due", "Paid", "Status"})
	for _, e := range s.Entries {
		records = append(records, []string{
			e.CollectionDate.String(),
			e.AmountDue.StringFixed(models.MoneyScale),
			e.AmountPaid.StringFixed(models.MoneyScale),
			string(e.Status),
		})
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}
