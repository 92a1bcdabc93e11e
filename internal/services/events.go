package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prodcat/apiserver/internal/mq"
	"github.com/prodcat/apiserver/types"
	"github.com/rs/zerolog"
)

// Product lifecycle event actions.
const (
	EventProductCreated  = "created"
	EventProductUpdated  = "updated"
	EventProductTrashed  = "trashed"
	EventProductRestored = "restored"
	EventProductPurged   = "purged"
)

// ProductEvent is the payload published to the events channel on every
// lifecycle transition.
type ProductEvent struct {
	Action     string    `json:"action"`
	ProductID  int       `json:"product_id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	CreatedBy  int       `json:"created_by"`
	IsDeleted  bool      `json:"is_deleted"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher fans product lifecycle events out to the configured
// broker. A nil publisher is valid and drops everything; publish
// failures are logged and never fail the originating request.
type EventPublisher struct {
	mq      *mq.MQ
	channel string
	logger  zerolog.Logger
}

func NewEventPublisher(broker *mq.MQ, channel string, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		mq:      broker,
		channel: channel,
		logger:  logger,
	}
}

// ProductChanged publishes a lifecycle event for the product.
func (p *EventPublisher) ProductChanged(ctx context.Context, action string, product types.Product) {
	if p == nil || p.mq == nil {
		return
	}

	event := ProductEvent{
		Action:     action,
		ProductID:  product.ID,
		Name:       product.Name,
		Category:   string(product.Category),
		CreatedBy:  product.CreatedBy,
		IsDeleted:  product.IsDeleted,
		OccurredAt: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("marshal product event")
		return
	}

	attrs := map[string]string{"action": action}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		p.logger.Error().Err(err).Str("action", action).Int("product_id", product.ID).
			Msg("publish product event")
	}
}
