// Package cart exposes the cart operations checkout needs: removing lines
// that were just purchased.
package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Manager removes purchased lines from a user's cart.
type Manager interface {
	RemoveItem(ctx context.Context, userID, lineID uuid.UUID) error
}

// PgManager implements Manager on Postgres.
type PgManager struct {
	Pool *pgxpool.Pool
}

// RemoveItem deletes one cart line. Removing an already-gone line is a no-op.
func (m PgManager) RemoveItem(ctx context.Context, userID, lineID uuid.UUID) error {
	_, err := m.Pool.Exec(ctx, `
		DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`, lineID, userID)
	return err
}
