// Package txn runs a unit of work so that its writes commit together or not
// at all. Postgres stores join the unit through Conn and Begin. Memory stores
// register undo steps with OnRollback.
package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner runs fn as one unit of work. A unit started inside another joins it.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is the query surface shared by a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type unitKey struct{}

type unit struct {
	tx pgx.Tx

	mu    sync.Mutex
	undo  []func()
	after []func()
}

func from(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

func (u *unit) rollback() {
	u.mu.Lock()
	undo := u.undo
	u.undo, u.after = nil, nil
	u.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

func (u *unit) commit() {
	u.mu.Lock()
	after := u.after
	u.undo, u.after = nil, nil
	u.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

// Postgres runs units of work in a single database transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres runner.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if from(ctx) != nil {
		return fn(ctx)
	}
	if p == nil || p.pool == nil {
		return fmt.Errorf("pool is nil")
	}

	u := &unit{}
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		u.tx = tx
		return fn(context.WithValue(ctx, unitKey{}, u))
	})
	if err != nil {
		u.rollback()
		return err
	}
	u.commit()
	return nil
}

// Memory runs units of work against in-memory stores. When fn fails, the
// undo steps the stores registered run in reverse order.
type Memory struct{}

func (Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if from(ctx) != nil {
		return fn(ctx)
	}

	u := &unit{}
	if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
		u.rollback()
		return err
	}
	u.commit()
	return nil
}

// Conn returns the transaction of the unit carried by ctx, or pool outside
// a Postgres unit.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if u := from(ctx); u != nil && u.tx != nil {
		return u.tx
	}
	return pool
}

// Begin runs fn in a transaction. Inside a Postgres unit it runs in a
// savepoint of the unit's transaction.
func Begin(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	if u := from(ctx); u != nil && u.tx != nil {
		return pgx.BeginFunc(ctx, u.tx, fn)
	}
	return pgx.BeginFunc(ctx, pool, fn)
}

// OnRollback registers undo to run if the enclosing unit fails. Outside a
// unit it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	u := from(ctx)
	if u == nil {
		return
	}
	u.mu.Lock()
	u.undo = append(u.undo, undo)
	u.mu.Unlock()
}

// AfterCommit runs fn once the enclosing unit commits, or at once outside a
// unit. It is dropped if the unit fails.
func AfterCommit(ctx context.Context, fn func()) {
	u := from(ctx)
	if u == nil {
		fn()
		return
	}
	u.mu.Lock()
	u.after = append(u.after, fn)
	u.mu.Unlock()
}
