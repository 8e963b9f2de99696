package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// querier is the subset of *sqlx.DB / *sqlx.Tx every store method needs.
// A transaction is threaded through context so that ingest can compose
// several store calls into one atomic write without every method
// accepting an explicit *sql.Tx parameter.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// ContextWithTx returns a context carrying tx, so that nested store
// calls reuse it instead of opening their own connection.
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction stashed by ContextWithTx, if any.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// Store wires all of component B (event store) and component C (index
// maintainer) against one *sqlx.DB.
type Store struct {
	db *sqlx.DB
}

// New wraps an established *sql.DB. The caller owns migrations and
// connection-pool configuration.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// DB exposes the underlying *sqlx.DB, mainly for tests that want to
// assert against go-sqlmock expectations directly.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// querier returns the in-flight transaction from ctx if present,
// otherwise the pool itself — every store method calls this once to
// decide what to run its query against.
func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single transaction, advisory-locking and all
// store writes issued by fn included, committing on success and rolling
// back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		// Already inside a transaction; compose rather than nest.
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := ContextWithTx(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AdvisoryLockProcess takes a transaction-scoped advisory lock keyed on
// (system, process), serializing concurrent ingest of events claiming
// the same process. The lock is released automatically at transaction
// commit or rollback. Must be called with a transaction already in ctx.
func (s *Store) AdvisoryLockProcess(ctx context.Context, systemKeyType uint64, systemKey, process []byte) error {
	q := s.querier(ctx)
	key := make([]byte, 0, len(systemKey)+len(process)+8)
	key = append(key, byte(systemKeyType))
	key = append(key, systemKey...)
	key = append(key, process...)
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(encode($1, 'hex')))`, key)
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
