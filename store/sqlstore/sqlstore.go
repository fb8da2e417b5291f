/*
Package sqlstore implements inventory.TxStore on SQLite and PostgreSQL.

PURPOSE:
  One sqlx-based store serves both databases. Queries are written with "?"
  placeholders and rebound to the driver's bind style, and the schema is
  portable DDL, so no statement differs between the two.

DRIVERS:
  sqlite3  github.com/mattn/go-sqlite3   (file path or ":memory:")
  pgx      github.com/jackc/pgx/v5/stdlib (postgres:// URL)

TRANSACTIONS:
  WithTx hands the callback a view bound to the *sqlx.Tx. Every read and
  write made through that view runs inside the transaction.

SQLITE:
  Opened with foreign keys on, WAL and a busy timeout. The pool is limited
  to one connection so ":memory:" databases are shared by every caller and
  writers are serialized.

ERRORS:
  Unique violations become *inventory.ConflictError, missing rows become
  *inventory.NotFoundError. A rollback that fails is an
  *inventory.IntegrityError.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./erp.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := inventory.NewLedger(store)
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/erp-ledger/inventory"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	sqliteOptions = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

	// Fixed width, so timestamps order correctly as text.
	timestampLayout = "2006-01-02T15:04:05.000000Z"

	// Advisory lock key shared by period checks and snapshot changes.
	periodLockKey int64 = 0x45525050455244
)

// Store implements inventory.TxStore.
type Store struct {
	*conn
	db *sqlx.DB
}

// conn runs queries against either the pool or an open transaction.
type conn struct {
	q sqlx.ExtContext
}

var (
	_ inventory.TxStore = (*Store)(nil)
	_ inventory.Store   = (*conn)(nil)
)

// Open connects with the given driver and applies the schema.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(dsn)
	}
	return nil, fmt.Errorf("unsupported database driver %q (use %s or %s)", driver, DriverSQLite, DriverPostgres)
}

// NewSQLite opens a SQLite database. Use ":memory:" for a private
// in-memory database.
func NewSQLite(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sqlx.Open(DriverSQLite, path+sep+sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newStore(db)
}

// NewPostgres opens a PostgreSQL database through pgx.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(db)
}

func newStore(db *sqlx.DB) (*Store, error) {
	s := &Store{conn: &conn{q: db}, db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&conn{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return &inventory.IntegrityError{Op: "rollback", Err: errors.Join(err, rbErr)}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.q.Rebind(query), args...)
}

func (c *conn) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

func (c *conn) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

// selectIn expands slice arguments into IN lists before rebinding.
func (c *conn) selectIn(ctx context.Context, dest any, query string, args ...any) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return c.selectAll(ctx, dest, query, args...)
}

func strs[T ~string](ids []T) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDate(s string) (inventory.Date, error) {
	t, err := time.Parse(inventory.DateLayout, s)
	if err != nil {
		return inventory.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return inventory.Date{Time: t}, nil
}

// corrupt wraps a conversion failure of a stored row.
func corrupt(table, id string, err error) error {
	return fmt.Errorf("corrupt %s row %s: %w", table, id, err)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// mapError turns driver constraint violations into engine errors.
func mapError(err error, resource, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &inventory.NotFoundError{Resource: resource, ID: key}
	}
	switch {
	case isUniqueViolation(err):
		return &inventory.ConflictError{Resource: resource, Key: key, Reason: "already exists"}
	case isForeignKeyViolation(err):
		return &inventory.ConflictError{Resource: resource, Key: key, Reason: "references a missing record or is still referenced"}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
