package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL spans realistic gateway retry storms (VNPay keeps retrying an
// unacknowledged IPN for up to 24 hours).
const DefaultTTL = 48 * time.Hour

// pendingMarker occupies the slot between first admission and the recorded
// outcome, so concurrent duplicates are rejected before processing finishes.
const pendingMarker = "pending"

// Guard collapses duplicate deliveries of the same external reference.
// Admission is atomic (SET NX), so two simultaneous deliveries of one
// reference can never both be told first-seen.
type Guard struct {
	redis *redis.Client
	ttl   time.Duration
}

func New(rdb *redis.Client) *Guard {
	return &Guard{redis: rdb, ttl: DefaultTTL}
}

func NewWithTTL(rdb *redis.Client, ttl time.Duration) *Guard {
	return &Guard{redis: rdb, ttl: ttl}
}

// Admit reports whether the caller is the first to present ref. Later callers
// get first=false together with the recorded outcome when one exists.
func (g *Guard) Admit(ctx context.Context, ref string) (first bool, cached string, err error) {
	ok, err := g.redis.SetNX(ctx, key(ref), pendingMarker, g.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	val, err := g.redis.Get(ctx, key(ref)).Result()
	if err == redis.Nil {
		// Slot expired between SetNX and Get; treat as duplicate without outcome.
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if val == pendingMarker {
		return false, "", nil
	}
	return false, val, nil
}

// Record stores the final outcome for ref so later duplicates can return it.
func (g *Guard) Record(ctx context.Context, ref, outcome string) error {
	return g.redis.Set(ctx, key(ref), outcome, redis.KeepTTL).Err()
}

// Release frees the slot when the first caller failed before applying any
// effect, so a later gateway retry can be admitted and processed.
func (g *Guard) Release(ctx context.Context, ref string) error {
	return g.redis.Del(ctx, key(ref)).Err()
}

func key(ref string) string {
	return "idem:" + ref
}
