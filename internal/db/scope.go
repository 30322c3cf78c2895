package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"praxis-pilot/backend/internal/tenancy"
)

// bindTenantSQL binds the tenant and user into transaction-local settings read by the
// row-level security policies. Values are always passed as parameters.
const bindTenantSQL = `SELECT set_config('app.tenant_id', $1, true), set_config('app.user_id', $2, true)`

var (
	// ErrNoScope is returned by Conn when the context carries no active tenant scope.
	ErrNoScope = errors.New("db: no tenant scope on context")
	// ErrNestedScope is returned when Run is called with a context that already carries a scope.
	ErrNestedScope = errors.New("db: nested tenant scope")
)

// DBTX is the statement surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Runner runs fn inside one tenant-bound unit of work. Services depend on Runner so
// tests can substitute a scope that calls fn directly.
type Runner interface {
	Run(ctx context.Context, tc tenancy.Context, fn func(ctx context.Context) error) error
}

type scopeKeyType struct{}

var scopeKey scopeKeyType

type scopeState struct {
	tx    *sql.Tx
	after []func()
}

// Scope opens tenant-bound transactions on a connection pool.
type Scope struct {
	db *sql.DB
}

// NewScope returns a Scope over db.
func NewScope(db *sql.DB) *Scope {
	return &Scope{db: db}
}

// Run begins a transaction, binds tc's tenant (validated as a UUID) and user into the
// session before any other statement, and calls fn with a context carrying the
// transaction and tc. The transaction commits when fn returns nil and rolls back when
// fn returns an error or panics; the error or panic propagates unchanged. Hooks
// registered with AfterCommit run only after a successful commit.
func (s *Scope) Run(ctx context.Context, tc tenancy.Context, fn func(ctx context.Context) error) (err error) {
	tenantID, err := tenancy.ParseTenantID(tc.TenantID)
	if err != nil {
		return err
	}
	if _, ok := ctx.Value(scopeKey).(*scopeState); ok {
		return ErrNestedScope
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, bindTenantSQL, tenantID, tc.UserID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("db: bind tenant: %w", err)
	}
	tc.TenantID = tenantID
	st := &scopeState{tx: tx}
	sctx := context.WithValue(tenancy.With(ctx, tc), scopeKey, st)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(sctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("db: rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit: %w", err)
	}
	for _, hook := range st.after {
		hook()
	}
	return nil
}

// Conn returns the transaction of the active scope. Repositories must obtain their
// connection here; there is no fallback to the pool.
func Conn(ctx context.Context) (DBTX, error) {
	st, ok := ctx.Value(scopeKey).(*scopeState)
	if !ok || st.tx == nil {
		return nil, ErrNoScope
	}
	return st.tx, nil
}

// AfterCommit registers fn to run after the active scope commits. Without an active
// scope fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	st, ok := ctx.Value(scopeKey).(*scopeState)
	if !ok {
		fn()
		return
	}
	st.after = append(st.after, fn)
}
