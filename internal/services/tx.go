package services

import (
	"context"
	"errors"

	"github.com/gitshopapp/storefront/internal/db"
)

// withUserTx runs fn under the user's lock and retries once when a unique
// index rejects the write, which only happens when another writer got in
// between our read and our insert.
func withUserTx(ctx context.Context, store db.Store, userID string, fn func(db.Tx) error) error {
	err := store.WithUserTx(ctx, userID, fn)
	if errors.Is(err, db.ErrConflict) {
		err = store.WithUserTx(ctx, userID, fn)
		if errors.Is(err, db.ErrConflict) {
			return ErrActiveOrderConflict
		}
	}
	return err
}
