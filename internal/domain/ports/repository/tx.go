package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one storage transaction and hands the
// handle to fn as tx. Repositories accept a nil tx for the non-transactional path.
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// KeyLocker serializes work on one logical key across every instance
// sharing the store. The lock lives until tx ends.
type KeyLocker interface {
	LockKey(ctx context.Context, tx Tx, key string) error
}
