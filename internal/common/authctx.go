package common

import (
	"context"

	"github.com/google/uuid"
)

type authUserKey struct{}

// WithAuthUser attaches the verified caller's id to the request context.
func WithAuthUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, authUserKey{}, id)
}

// AuthUser returns the verified caller's id. The second return is false when
// the request carried no authenticated identity.
func AuthUser(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(authUserKey{}).(uuid.UUID)
	return id, ok
}
