package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/broker"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

type Subscriber interface {
	Subscribe(queue string, handler broker.Handler) error
}

// Consumer watches the user feed so the identity service learns about
// profile deletions. Tokens are stateless, so deletion is recorded for
// audit; issued tokens lapse at their expiry.
type Consumer struct{}

func NewConsumer() *Consumer {
	return &Consumer{}
}

func (c *Consumer) Register(sub Subscriber) error {
	return sub.Subscribe(events.QueueUserUpdated, c.handleUserUpdate)
}

func (c *Consumer) handleUserUpdate(ctx context.Context, body []byte) error {
	var msg events.UserUpdate
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode user update: %w", err)
	}

	if msg.Action == "deleted" {
		logging.Info(ctx, "user deleted, outstanding tokens lapse at expiry",
			zap.Int64("user_id", msg.UserID))
		return nil
	}
	logging.Info(ctx, "observed user update",
		zap.Int64("user_id", msg.UserID), zap.String("action", msg.Action))
	return nil
}
