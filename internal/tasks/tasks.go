// Package tasks defines the asynq task types dispatched after an order
// commit and the client used to enqueue them.
package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Task type names.
const (
	TypeOrderCreated   = "order:created"
	TypeRemarkModerate = "order:remark:moderate"
)

// OrderCreatedPayload announces a freshly committed order.
type OrderCreatedPayload struct {
	OrderID      uuid.UUID `json:"orderId"`
	SerialNumber string    `json:"serialNumber"`
	UserID       uuid.UUID `json:"userId"`
	TotalAmount  string    `json:"totalAmount"`
}

// RemarkModeratePayload asks the worker to moderate and persist a remark.
type RemarkModeratePayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Remark  string    `json:"remark"`
}

// Enqueuer wraps the asynq client. Enqueue failures are logged and
// swallowed: post-commit side effects never roll back a committed order.
type Enqueuer struct {
	Client *asynq.Client
	Logger zerolog.Logger
}

// OrderCreated enqueues the order-created notification task.
func (e Enqueuer) OrderCreated(ctx context.Context, p OrderCreatedPayload) {
	e.enqueue(ctx, TypeOrderCreated, p)
}

// ModerateRemark enqueues remark moderation for the order.
func (e Enqueuer) ModerateRemark(ctx context.Context, p RemarkModeratePayload) {
	e.enqueue(ctx, TypeRemarkModerate, p)
}

func (e Enqueuer) enqueue(ctx context.Context, taskType string, payload any) {
	if e.Client == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.Logger.Error().Err(err).Str("task", taskType).Msg("marshal task payload")
		return
	}
	if _, err := e.Client.EnqueueContext(ctx, asynq.NewTask(taskType, body)); err != nil {
		e.Logger.Error().Err(err).Str("task", taskType).Msg("enqueue task")
	}
}
