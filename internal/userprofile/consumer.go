package userprofile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/broker"
	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

type Subscriber interface {
	Subscribe(queue string, handler broker.Handler) error
}

// ProfileStore is the persistence surface the consumer needs.
type ProfileStore interface {
	EnsureUser(ctx context.Context, u domain.User) error
}

// Consumer follows the auth feed to provision profiles as accounts come
// into existence, and the user feed for audit. Replays are harmless: a
// profile that already exists is left alone.
type Consumer struct {
	store ProfileStore
	now   func() time.Time
}

func NewConsumer(store ProfileStore) *Consumer {
	return &Consumer{store: store, now: time.Now}
}

func (c *Consumer) Register(sub Subscriber) error {
	if err := sub.Subscribe(events.QueueAuthEvents, c.handleAuthEvent); err != nil {
		return err
	}
	return sub.Subscribe(events.QueueUserUpdated, c.handleUserUpdate)
}

func (c *Consumer) handleAuthEvent(ctx context.Context, body []byte) error {
	var msg events.AuthEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode auth event: %w", err)
	}

	if msg.Action == events.AuthActionRegister {
		err := c.store.EnsureUser(ctx, domain.User{
			ID:        msg.UserID,
			Username:  msg.Username,
			Role:      domain.Role(msg.Role),
			CreatedAt: c.now().UTC(),
		})
		if err != nil {
			return err
		}
		logging.Info(ctx, "profile provisioned",
			zap.Int64("user_id", msg.UserID), zap.String("username", msg.Username))
		return nil
	}

	logging.Info(ctx, "auth activity on profile",
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
