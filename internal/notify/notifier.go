package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"homestay/internal/logger"
)

// queueKey is the Redis list a downstream worker drains to send user
// notifications (email, push). Publishing is fire-and-forget: a failed
// publish is logged and never fails the money movement that triggered it.
const queueKey = "payment_events"

// Event kinds pushed onto the notification queue.
const (
	EventDepositCompleted    = "deposit_completed"
	EventWithdrawalRequested = "withdrawal_requested"
	EventBookingPaid         = "booking_paid"
	EventSettlementRecorded  = "settlement_recorded"
	EventRefundResolved      = "refund_resolved"
)

type Event struct {
	Kind      string `json:"kind"`
	UserID    int    `json:"user_id"`
	BookingID int    `json:"booking_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Detail    string `json:"detail,omitempty"`
	At        int64  `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// RedisPublisher pushes events onto a Redis list consumed by the
// notification worker.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.WithError(err).Error("failed to marshal notification event")
		return
	}
	if err := p.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		logger.WithError(err).Error("failed to publish notification event")
	}
}

// NoOp discards events. Used in tests and when Redis is not configured.
type NoOp struct{}

func (NoOp) Publish(context.Context, Event) {}
