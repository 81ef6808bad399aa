package ledger

import (
	"fmt"

	"github.com/mcclellann/dailyloan/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// DeleteGuard is the secondary authorization for irreversible deletes.
type DeleteGuard interface {
	Authorize(secret string) error
}

// BcryptGuard accepts a secret matching a stored bcrypt hash.
type BcryptGuard struct {
	hash []byte
}

// NewBcryptGuard checks secrets against a bcrypt hash. The hash is
// validated up front so a bad configuration fails at startup.
func NewBcryptGuard(hash string) (*BcryptGuard, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid delete secret hash: %w", err)
	}
	return &BcryptGuard{hash: []byte(hash)}, nil
}

// Authorize returns ErrDeleteUnauthorized unless secret matches the hash.
func (g *BcryptGuard) Authorize(secret string) error {
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(secret)); err != nil {
		return models.ErrDeleteUnauthorized
	}
	return nil
}

type denyAll struct{}

func (denyAll) Authorize(string) error { return models.ErrDeleteUnauthorized }
