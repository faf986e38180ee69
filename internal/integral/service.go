// Package integral is the loyalty-points collaborator boundary. The service
// may be absent in a deployment; callers construct Unavailable instead of
// scattering nil checks through business logic.
package integral

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable is returned by the Unavailable implementation for
// operations that would need a live points ledger.
var ErrUnavailable = errors.New("integral service unavailable")

// Account is a user's points balance.
type Account struct {
	Available int64
}

// ChangeRequest debits or credits points. SourceID makes the operation
// idempotent; it is derived from the order serial number plus a fixed
// suffix so retries of the same order never double-apply.
type ChangeRequest struct {
	UserID   uuid.UUID
	Amount   int64
	SourceID string
}

// DeductSourceID returns the idempotency key for an order's deduction.
func DeductSourceID(serial string) string { return serial + "-deduct" }

// RefundSourceID returns the idempotency key for an order's refund.
func RefundSourceID(serial string) string { return serial + "-refund" }

// Service is the points ledger contract.
type Service interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (Account, error)
	Decrease(ctx context.Context, req ChangeRequest) error
	Increase(ctx context.Context, req ChangeRequest) error
}

// Unavailable is the explicit no-points variant: balances read as zero and
// any attempted change fails.
type Unavailable struct{}

func (Unavailable) GetAccount(context.Context, uuid.UUID) (Account, error) {
	return Account{}, nil
}

func (Unavailable) Decrease(context.Context, ChangeRequest) error { return ErrUnavailable }

func (Unavailable) Increase(context.Context, ChangeRequest) error { return ErrUnavailable }
