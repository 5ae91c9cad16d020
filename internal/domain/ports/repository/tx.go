package repository

import "context"

// Tx is the storage-specific transaction handle: pgx.Tx for Postgres and nil
// for the in-memory store. Repositories treat a nil Tx as "no transaction".
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn in one storage transaction. It commits when fn
// returns nil and rolls back otherwise.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
