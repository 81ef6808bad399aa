package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/store"
	"go.uber.org/zap"
)

// CustomerProfile holds the editable customer fields.
type CustomerProfile struct {
	Name          string `json:"name"`
	Mobile1       string `json:"mobile1"`
	Mobile2       string `json:"mobile2"`
	Address       string `json:"address"`
	ReferenceName string `json:"reference_name"`
}

// NewCustomer is the input for registering a customer. Code is fixed once
// assigned; the profile fields can be changed with UpdateCustomer.
type NewCustomer struct {
	Code string `json:"code"`
	CustomerProfile
}

func (p CustomerProfile) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return models.InvalidTerm("name", "is required")
	}
	return nil
}

func (l *Ledger) newCustomer(in NewCustomer) (*models.Customer, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, models.InvalidTerm("code", "is required")
	}
	if err := in.CustomerProfile.validate(); err != nil {
		return nil, err
	}
	return &models.Customer{
		ID:            uuid.New(),
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		Mobile1:       strings.TrimSpace(in.Mobile1),
		Mobile2:       strings.TrimSpace(in.Mobile2),
		Address:       strings.TrimSpace(in.Address),
		ReferenceName: strings.TrimSpace(in.ReferenceName),
		CreatedAt:     l.now(),
	}, nil
}

// insertCustomer checks the code is free before writing so a duplicate never
// reaches the database as a failed statement.
func insertCustomer(ctx context.Context, tx store.Storage, c *models.Customer) error {
	_, err := tx.GetCustomerByCode(ctx, c.Code)
	switch {
	case err == nil:
		return fmt.Errorf("customer code %q: %w", c.Code, models.ErrDuplicateCustomerCode)
	case !errors.Is(err, models.ErrNotFound):
		return err
	}
	return tx.CreateCustomer(ctx, c)
}

// CreateCustomer registers a customer without a loan.
func (l *Ledger) CreateCustomer(ctx context.Context, in NewCustomer) (c *models.Customer, err error) {
	defer l.observe("create_customer", &err)

	c, err = l.newCustomer(in)
	if err != nil {
		return nil, err
	}
	if err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		return insertCustomer(ctx, tx, c)
	}); err != nil {
		return nil, err
	}

	l.logger.Info("customer created", zap.String("customer_id", c.ID.String()), zap.String("code", c.Code))
	return c, nil
}

// UpdateCustomer replaces the editable profile fields of a customer. The
// customer code is left untouched. Returns ErrNotFound for an unknown id.
func (l *Ledger) UpdateCustomer(ctx context.Context, id uuid.UUID, p CustomerProfile) (c *models.Customer, err error) {
	defer l.observe("update_customer", &err)

	if err := p.validate(); err != nil {
		return nil, err
	}
	err = l.storage.WithTx(ctx, func(tx store.Storage) error {
		c, err = tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		c.Name = strings.TrimSpace(p.Name)
		c.Mobile1 = strings.TrimSpace(p.Mobile1)
		c.Mobile2 = strings.TrimSpace(p.Mobile2)
		c.Address = strings.TrimSpace(p.Address)
		c.ReferenceName = strings.TrimSpace(p.ReferenceName)
		return tx.UpdateCustomer(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCustomer returns the customer with the given id or ErrNotFound.
func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return l.storage.GetCustomer(ctx, id)
}

// ListCustomers returns customers matching search on name or code; an empty
// search lists everyone.
func (l *Ledger) ListCustomers(ctx context.Context, search string) ([]*models.CustomerListing, error) {
	return l.storage.ListCustomers(ctx, search)
}

// DeleteCustomer irreversibly removes a customer with every loan and due
// entry. The caller must pass confirm=true and the delete secret.
func (l *Ledger) DeleteCustomer(ctx context.Context, id uuid.UUID, confirm bool, secret string) (err error) {
	defer l.observe("delete_customer", &err)

	if err := l.guard.Authorize(secret); err != nil {
		l.logger.Warn("customer deletion rejected", zap.String("customer_id", id.String()))
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	if !confirm {
		return fmt.Errorf("delete customer %s: %w", id, models.ErrDeleteNotConfirmed)
	}
	if err := l.storage.DeleteCustomer(ctx, id); err != nil {
		return err
	}

	l.logger.Info("customer deleted", zap.String("customer_id", id.String()))
	return nil
}
