package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when a redeem targets a code the user does not
// hold a reservation for.
var ErrLockNotHeld = errors.New("coupon: reservation not held")

// Ledger reserves, redeems and releases coupon codes. Lock behaves as a
// pessimistic reservation: a returned code is held exclusively for the
// caller until redeemed or unlocked. Redeem only consumes reservations the
// user holds. Unlock is idempotent; releasing a code that is not held is a
// no-op.
type Ledger interface {
	Lock(ctx context.Context, userID uuid.UUID, codes []string) ([]string, error)
	Redeem(ctx context.Context, userID uuid.UUID, codes []string, orderID uuid.UUID) error
	Unlock(ctx context.Context, codes []string, userID uuid.UUID) error
}

// RedisLedger implements Ledger on Redis: SETNX reservations keyed by coupon
// code, released with a check-and-delete script so only the holder's lock is
// removed. Redemption consumes the reservation and records the order that
// spent the code.
type RedisLedger struct {
	R       *redis.Client
	LockTTL time.Duration
}

const (
	lockKeyPrefix     = "coupon:lock:"
	redeemedKeyPrefix = "coupon:redeemed:"
)

// unlockScript deletes the reservation only when this user still holds it.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// redeemScript consumes the reservation only when this user holds it,
// recording the consuming order in the same step.
const redeemScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  redis.call("del", KEYS[1])
  redis.call("set", KEYS[2], ARGV[2])
  return 1
else
  return 0
end`

// Lock reserves each code for the user. Codes already reserved elsewhere, or
// already redeemed, are omitted from the returned set.
func (l RedisLedger) Lock(ctx context.Context, userID uuid.UUID, codes []string) ([]string, error) {
	ttl := l.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	locked := make([]string, 0, len(codes))
	for _, code := range codes {
		redeemed, err := l.R.Exists(ctx, redeemedKeyPrefix+code).Result()
		if err != nil {
			return locked, err
		}
		if redeemed > 0 {
			continue
		}
		ok, err := l.R.SetNX(ctx, lockKeyPrefix+code, userID.String(), ttl).Result()
		if err != nil {
			return locked, err
		}
		if ok {
			locked = append(locked, code)
		}
	}
	return locked, nil
}

// Redeem permanently consumes reservations the user holds. A code locked by
// someone else, expired, or never locked at all aborts the redemption.
func (l RedisLedger) Redeem(ctx context.Context, userID uuid.UUID, codes []string, orderID uuid.UUID) error {
	for _, code := range codes {
		held, err := l.R.Eval(ctx, redeemScript,
			[]string{lockKeyPrefix + code, redeemedKeyPrefix + code},
			userID.String(), orderID.String(),
		).Int()
		if err != nil {
			return err
		}
		if held == 0 {
			return fmt.Errorf("%w: %s", ErrLockNotHeld, code)
		}
	}
	return nil
}

// Unlock releases reservations held by the user. Missing or foreign-held
// locks are left untouched.
func (l RedisLedger) Unlock(ctx context.Context, codes []string, userID uuid.UUID) error {
	var firstErr error
	for _, code := range codes {
		err := l.R.Eval(ctx, unlockScript, []string{lockKeyPrefix + code}, userID.String()).Err()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
