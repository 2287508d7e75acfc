package memory

import "context"

// Transactor satisfies the transactor contract for in-memory stores, which
// apply each write immediately and have nothing to roll back.
type Transactor struct{}

func (Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
