package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"
)

// Tx is the backend transaction handle handed to repositories as `qx`.
type Tx interface{}

// NoTX marks a non-transactional repository call.
var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and passes the handle as tx.
//
// USAGE
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
// rec, err := records.Load(ctx, tx, userID)
// ...
// return records.Save(ctx, tx, rec)
// })
//
// Repositories accept a nil qx and then run outside a transaction. Backends without
// real transactions (memstore) ignore txOpt. Implementations bind commit hooks to the ctx
// they pass to fn (WithCommitHooks) and run them once the transaction has committed.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

type commitHooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithCommitHooks returns a ctx that collects AfterCommit callbacks, and the function that
// runs them. A TransactionManager calls run only after a successful commit.
func WithCommitHooks(ctx context.Context) (context.Context, func(ctx context.Context)) {
	h := &commitHooks{}
	run := func(ctx context.Context) {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn(ctx)
		}
	}
	return context.WithValue(ctx, commitHooksKey{}, h), run
}

// AfterCommit defers fn until the transaction bound to ctx commits. Without a transaction
// in ctx, fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	h, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if !ok {
		fn(ctx)
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}
