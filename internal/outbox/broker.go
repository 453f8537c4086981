package outbox

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Publisher is the slice of the message broker client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Message is what downstream consumers receive on the events exchange.
// The routing key is the event type.
type Message struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Recipients    []int64         `json:"recipients"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// BrokerHandler republishes every relayed event to the broker.
type BrokerHandler struct {
	publisher Publisher
}

func NewBrokerHandler(publisher Publisher) *BrokerHandler {
	return &BrokerHandler{publisher: publisher}
}

func (h *BrokerHandler) Name() string { return "broker" }

func (h *BrokerHandler) Handle(ctx context.Context, evt *Event) error {
	return h.publisher.Publish(ctx, evt.EventType, Message{
		ID:            evt.ID.String(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Recipients:    evt.RecipientIDs(),
		OccurredAt:    evt.CreatedAt,
		Payload:       json.RawMessage(evt.Payload),
	})
}
