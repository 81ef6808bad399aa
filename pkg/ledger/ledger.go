package ledger

import (
	"time"

	"github.com/mcclellann/dailyloan/pkg/store"
	"go.uber.org/zap"
)

// Ledger handles the business logic for customers, loans and daily
// collections. It keeps no state between calls; everything lives in storage.
type Ledger struct {
	storage  store.Storage
	guard    DeleteGuard
	logger   *zap.Logger
	now      func() time.Time
	audit    bool
	observer func(op string, err error)
}

// Option configures a Ledger built by NewLedger.
type Option func(*Ledger)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDeleteGuard sets the secret check required by DeleteCustomer.
func WithDeleteGuard(g DeleteGuard) Option {
	return func(l *Ledger) { l.guard = g }
}

// WithClock replaces time.Now for record timestamps and audit times.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithAuditTrail makes payment overwrites append an audit record in the same
// transaction.
func WithAuditTrail() Option {
	return func(l *Ledger) { l.audit = true }
}

// WithObserver registers a callback run after every mutating operation.
func WithObserver(fn func(op string, err error)) Option {
	return func(l *Ledger) { l.observer = fn }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		guard:   denyAll{},
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) observe(op string, err *error) {
	if l.observer != nil {
		l.observer(op, *err)
	}
}
