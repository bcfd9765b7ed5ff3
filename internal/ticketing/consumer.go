package ticketing

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/broker"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

// Subscriber is the consuming side of the broker client.
type Subscriber interface {
	Subscribe(queue string, handler broker.Handler) error
}

// Consumer wires the ticket service's queue subscriptions: its own
// confirmation queue, where it simulates notification dispatch, and the
// event feed it observes for catalog changes.
type Consumer struct{}

func NewConsumer() *Consumer {
	return &Consumer{}
}

func (c *Consumer) Register(sub Subscriber) error {
	if err := sub.Subscribe(events.QueueTicketConfirmation, c.handleConfirmation); err != nil {
		return err
	}
	return sub.Subscribe(events.QueueEventUpdates, c.handleEventUpdate)
}

// handleConfirmation stands in for a notification provider. A purchase
// confirmation and a payment-failure notice produce different messages but
// both are dispatched the same way: log and ack.
func (c *Consumer) handleConfirmation(ctx context.Context, body []byte) error {
	var msg events.TicketConfirmation
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode ticket confirmation: %w", err)
	}

	switch msg.Type {
	case events.ConfirmationTypePaymentFailed:
		logging.Info(ctx, "notifying user of failed payment",
			zap.Int64("user_id", msg.UserID), zap.Int64("event_id", msg.EventID))
	default:
		logging.Info(ctx, "sending purchase confirmation",
			zap.Int64("user_id", msg.UserID),
			zap.Int64("event_id", msg.EventID),
			zap.String("ticket_number", msg.TicketNumber))
	}
	return nil
}

// handleEventUpdate observes the catalog feed. Updates about events this
// service has never sold for are still acked.
func (c *Consumer) handleEventUpdate(ctx context.Context, body []byte) error {
	var msg events.EventUpdate
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode event update: %w", err)
	}
	logging.Info(ctx, "observed event update",
		zap.Int64("event_id", msg.EventID), zap.String("action", msg.Action))
	return nil
}
