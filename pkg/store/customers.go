package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/dailyloan/pkg/models"
)

const customerColumns = `id, code, name, mobile1, mobile2, address, reference_name, created_at`

// CreateCustomer inserts a new customer. A taken code yields ErrDuplicateCustomerCode.
func (s *SQLStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.exec(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.Name, c.Mobile1, c.Mobile2, c.Address, c.ReferenceName, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer code %q: %w", c.Code, models.ErrDuplicateCustomerCode)
		}
		return persistErr("create customer", err)
	}
	return nil
}

func (s *SQLStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.queryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
		}
		return nil, persistErr("get customer", err)
	}
	return c, nil
}

func (s *SQLStore) GetCustomerByCode(ctx context.Context, code string) (*models.Customer, error) {
	row := s.queryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE code = ?`, code)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer code %q: %w", code, models.ErrNotFound)
		}
		return nil, persistErr("get customer by code", err)
	}
	return c, nil
}

// UpdateCustomer rewrites the profile fields. The code is immutable.
func (s *SQLStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.exec(ctx,
		`UPDATE customers SET name = ?, mobile1 = ?, mobile2 = ?, address = ?, reference_name = ? WHERE id = ?`,
		c.Name, c.Mobile1, c.Mobile2, c.Address, c.ReferenceName, c.ID,
	)
	if err != nil {
		return persistErr("update customer", err)
	}
	return requireAffected(result, "customer", c.ID)
}

// ListCustomers returns customers newest first with their loan counts. search
// matches name or code case-insensitively.
func (s *SQLStore) ListCustomers(ctx context.Context, search string) ([]*models.CustomerListing, error) {
	q := `SELECT c.id, c.code, c.name, c.mobile1, c.mobile2, c.address, c.reference_name, c.created_at, COUNT(l.id)
		FROM customers c
		LEFT JOIN loans l ON l.customer_id = c.id`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q += ` WHERE LOWER(c.name) LIKE ? OR LOWER(c.code) LIKE ?`
		args = append(args, pattern, pattern)
	}
	q += ` GROUP BY c.id, c.code, c.name, c.mobile1, c.mobile2, c.address, c.reference_name, c.created_at
		ORDER BY c.created_at DESC, c.code`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, persistErr("list customers", err)
	}
	defer rows.Close()

	var out []*models.CustomerListing
	for rows.Next() {
		var l models.CustomerListing
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Mobile1, &l.Mobile2, &l.Address, &l.ReferenceName, &l.CreatedAt, &l.TotalLoans); err != nil {
			return nil, persistErr("scan customer row", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate customers", err)
	}
	return out, nil
}

// DeleteCustomer removes the customer, its loans and their entries. The
// deletes are issued explicitly so the cascade does not depend on the
// connection's foreign key setting.
func (s *SQLStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	return s.WithTx(ctx, func(tx Storage) error {
		t := tx.(*SQLStore)
		if _, err := t.exec(ctx, `DELETE FROM due_entries WHERE loan_id IN (SELECT id FROM loans WHERE customer_id = ?)`, id); err != nil {
			return persistErr("delete customer entries", err)
		}
		if _, err := t.exec(ctx, `DELETE FROM loans WHERE customer_id = ?`, id); err != nil {
			return persistErr("delete customer loans", err)
		}
		result, err := t.exec(ctx, `DELETE FROM customers WHERE id = ?`, id)
		if err != nil {
			return persistErr("delete customer", err)
		}
		return requireAffected(result, "customer", id)
	})
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Mobile1, &c.Mobile2, &c.Address, &c.ReferenceName, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func requireAffected(result sql.Result, what string, id uuid.UUID) error {
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return nil
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, persistErr("check rows affected", err)
	}
	return n, nil
}
