// Package tx carries transaction scope through context.
//
// Two kinds of scope travel this way: a *sql.Tx for SQL-backed stores, and an
// opaque owner marker that in-memory stores use to detect re-entry into a
// transaction that is still running.
package tx

import (
	"context"
	"database/sql"
)

type (
	sqlTxKey struct{}
	scopeKey struct{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, sqlTxKey{}, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx, ok
}

type scope struct {
	owner  any
	parent *scope
}

// Enter marks ctx as running inside a transaction owned by owner.
func Enter(ctx context.Context, owner any) context.Context {
	parent, _ := ctx.Value(scopeKey{}).(*scope)
	return context.WithValue(ctx, scopeKey{}, &scope{owner: owner, parent: parent})
}

// Active reports whether ctx is already inside a transaction owned by owner.
func Active(ctx context.Context, owner any) bool {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	for ; s != nil; s = s.parent {
		if s.owner == owner {
			return true
		}
	}
	return false
}
