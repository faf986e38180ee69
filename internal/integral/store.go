package integral

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientPoints is returned when a deduction exceeds the balance.
var ErrInsufficientPoints = errors.New("integral: insufficient points")

// PgService implements Service on Postgres. Every change writes a journal
// row keyed by source id; the unique constraint makes replays no-ops.
type PgService struct {
	Pool *pgxpool.Pool
}

// GetAccount reads the balance.
func (s PgService) GetAccount(ctx context.Context, userID uuid.UUID) (Account, error) {
	var acc Account
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(available, 0) FROM integral_accounts WHERE user_id = $1`, userID).
		Scan(&acc.Available)
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Decrease debits points, guarded against overdraft and replays.
func (s PgService) Decrease(ctx context.Context, req ChangeRequest) error {
	return s.apply(ctx, req, -req.Amount)
}

// Increase credits points, guarded against replays.
func (s PgService) Increase(ctx context.Context, req ChangeRequest) error {
	return s.apply(ctx, req, req.Amount)
}

func (s PgService) apply(ctx context.Context, req ChangeRequest, delta int64) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO integral_journal (user_id, source_id, amount) VALUES ($1, $2, $3)`,
		req.UserID, req.SourceID, delta)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Same source id already applied.
			return nil
		}
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE integral_accounts SET available = available + $2
		WHERE user_id = $1 AND available + $2 >= 0`, req.UserID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientPoints
	}
	return nil
}
