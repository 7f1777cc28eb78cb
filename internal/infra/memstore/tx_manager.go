package memstore

import (
	"context"

	"github.com/jackc/pgx/v4"

	"telegram-gpt-relay/internal/domain/ports/repository"
)

var _ repository.TransactionManager = TxManager{}

// TxManager runs fn directly. Writes are not rolled back on error; the use case only
// writes after every fallible step has succeeded.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	hctx, runHooks := repository.WithCommitHooks(ctx)
	if err := fn(hctx, repository.NoTX); err != nil {
		return err
	}
	runHooks(ctx)
	return nil
}
