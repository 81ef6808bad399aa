package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mcclellann/dailyloan/pkg/models"
)

// Dialect selects the SQL flavour and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// insertBatchRows keeps a multi-row insert under SQLite's historic limit of
// 999 bound parameters.
const insertBatchRows = 100

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLStore implements Storage on database/sql for both SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	q       querier
	tx      *sql.Tx
	dialect Dialect
	logger  *zap.Logger
}

var _ Storage = (*SQLStore)(nil)

// Open connects to the database of the given dialect and brings its schema up
// to date.
func Open(dialect Dialect, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err == nil {
			// One connection serializes writers and keeps PRAGMAs in force.
			db.SetMaxOpenConns(1)
		}
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	if err := migrateUp(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}

	logger.Info("database connection established and schema migrated", zap.String("dialect", string(dialect)))
	return &SQLStore{db: db, q: db, dialect: dialect, logger: logger}, nil
}

// NewSQLiteStore opens (creating if needed) the SQLite database file at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLStore, error) {
	return Open(DialectSQLite, path, logger)
}

// NewPostgresStore connects to PostgreSQL through the pgx driver.
func NewPostgresStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	return Open(DialectPostgres, dsn, logger)
}

// sqliteDSN enables foreign keys (needed for cascading deletes), WAL mode and
// a busy timeout unless the caller already supplied connection parameters.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// WithTx runs fn on a store bound to a new transaction. Calls made on a store
// that is already transactional join the running transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Storage) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLStore{db: s.db, q: tx, tx: tx, dialect: s.dialect, logger: s.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistErr("ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// rebind rewrites '?' placeholders to the $n form PostgreSQL expects.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// placeholders returns "(?, ?, ...)" with n markers.
func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
