package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTerms          = errors.New("invalid loan terms")
	ErrDuplicateActiveLoan   = errors.New("customer already has an active loan")
	ErrEditAfterCollection   = errors.New("loan cannot be edited after collection has started")
	ErrLoanNotActive         = errors.New("loan is not active")
	ErrNotFound              = errors.New("not found")
	ErrPersistence           = errors.New("persistence failure")
	ErrDuplicateCustomerCode = errors.New("customer code already exists")
	ErrDeleteNotConfirmed    = errors.New("deletion must be explicitly confirmed")
	ErrDeleteUnauthorized    = errors.New("deletion secret rejected")
)

// TermError names the offending field of a rejected loan term or amount.
type TermError struct {
	Field  string
	Reason string
}

func (e *TermError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidTerms, e.Field, e.Reason)
}

func (e *TermError) Unwrap() error { return ErrInvalidTerms }

// InvalidTerm returns a TermError for field. It matches ErrInvalidTerms
// under errors.Is.
func InvalidTerm(field, reason string) error {
	return &TermError{Field: field, Reason: reason}
}
