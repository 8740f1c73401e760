package repository

import "context"

// Transactor runs fn within a single atomic transaction against the primary
// store. Repository implementations participating in a transaction read the
// active transaction handle back out of ctx (the postgres adapter keys it
// under its own package-private context key), so callers only ever depend on
// this interface, never on the storage driver directly. Used to make a
// domain write and its OutboxEvent insert commit-or-abort together (§4.6).
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
