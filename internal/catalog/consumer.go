package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/broker"
	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

type Subscriber interface {
	Subscribe(queue string, handler broker.Handler) error
}

// Consumer keeps the event service informed: each purchase logs remaining
// capacity, and the auth and user feeds are observed for audit. Messages
// about unknown entities are logged and acked, never requeued.
type Consumer struct {
	svc *Service
}

func NewConsumer(svc *Service) *Consumer {
	return &Consumer{svc: svc}
}

func (c *Consumer) Register(sub Subscriber) error {
	if err := sub.Subscribe(events.QueueTicketPurchases, c.handlePurchase); err != nil {
		return err
	}
	if err := sub.Subscribe(events.QueueAuthEvents, c.handleAuthEvent); err != nil {
		return err
	}
	return sub.Subscribe(events.QueueUserUpdated, c.handleUserUpdate)
}

func (c *Consumer) handlePurchase(ctx context.Context, body []byte) error {
	var msg events.TicketPurchase
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode ticket purchase: %w", err)
	}

	// The purchase changed sold counts, so any cached copy is stale.
	c.svc.invalidate(ctx, msg.EventID)

	ev, err := c.svc.store.GetEvent(ctx, msg.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			logging.Warn(ctx, "purchase for unknown event",
				zap.Int64("event_id", msg.EventID), zap.Int64("ticket_id", msg.TicketID))
			return nil
		}
		return err
	}

	logging.Info(ctx, "ticket sold",
		zap.Int64("event_id", ev.ID),
		zap.String("event_name", ev.Name),
		zap.String("ticket_number", msg.TicketNumber))
	return nil
}

func (c *Consumer) handleAuthEvent(ctx context.Context, body []byte) error {
	var msg events.AuthEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode auth event: %w", err)
	}
	logging.Info(ctx, "observed auth event",
		zap.Int64("user_id", msg.UserID), zap.String("action", msg.Action))
	return nil
}

func (c *Consumer) handleUserUpdate(ctx context.Context, body []byte) error {
	var msg events.UserUpdate
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode user update: %w", err)
	}
	logging.Info(ctx, "observed user update",
		zap.Int64("user_id", msg.UserID), zap.String("action", msg.Action))
	return nil
}
