// Package catalog is the event service core: event CRUD with a redis
// read-through cache, every mutation announced on the event_updates queue.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/cache"
	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

type EventStore interface {
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, ev domain.Event) error
	DeleteEvent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type Service struct {
	store    EventStore
	pub      Publisher
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewService builds the catalog. cache may be nil, which disables the
// read-through path entirely.
func NewService(store EventStore, pub Publisher, c cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{store: store, pub: pub, cache: c, cacheTTL: cacheTTL}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("event:%d", id)
}

func (s *Service) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	created, err := s.store.CreateEvent(ctx, ev)
	if err != nil {
		return domain.Event{}, err
	}

	s.publishUpdate(ctx, events.EventUpdate{
		EventID: created.ID,
		Action:  "created",
		Details: map[string]any{
			"name":       created.Name,
			"maxTickets": created.MaxTickets,
		},
	})
	return created, nil
}

// GetEvent serves from the cache when possible and repopulates it on a
// miss. Cache failures degrade to the database, never to an error.
func (s *Service) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	if s.cache != nil {
		raw, hit, err := s.cache.Get(ctx, cacheKey(id))
		if err != nil {
			logging.Warn(ctx, "event cache read failed", zap.Int64("event_id", id), zap.Error(err))
		} else if hit {
			var ev domain.Event
			if err := json.Unmarshal(raw, &ev); err == nil {
				return ev, nil
			}
			logging.Warn(ctx, "evicting undecodable cache entry", zap.Int64("event_id", id))
			_ = s.cache.Del(ctx, cacheKey(id))
		}
	}

	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(ev); err == nil {
			if err := s.cache.Set(ctx, cacheKey(id), raw, s.cacheTTL); err != nil {
				logging.Warn(ctx, "event cache write failed", zap.Int64("event_id", id), zap.Error(err))
			}
		}
	}
	return ev, nil
}

func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.store.ListEvents(ctx)
}

func (s *Service) UpdateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if err := s.store.UpdateEvent(ctx, ev); err != nil {
		return domain.Event{}, err
	}
	s.invalidate(ctx, ev.ID)

	updated, err := s.store.GetEvent(ctx, ev.ID)
	if err != nil {
		return domain.Event{}, err
	}

	s.publishUpdate(ctx, events.EventUpdate{
		EventID: updated.ID,
		Action:  "updated",
		Details: map[string]any{
			"name":       updated.Name,
			"maxTickets": updated.MaxTickets,
		},
	})
	return updated, nil
}

func (s *Service) DeleteEvent(ctx context.Context, id int64) error {
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.publishUpdate(ctx, events.EventUpdate{
		EventID: id,
		Action:  "deleted",
		Details: map[string]any{},
	})
	return nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(id)); err != nil {
		logging.Warn(ctx, "event cache invalidation failed", zap.Int64("event_id", id), zap.Error(err))
	}
}

// publishUpdate is best effort; the catalog mutation already committed.
func (s *Service) publishUpdate(ctx context.Context, msg events.EventUpdate) {
	if err := s.pub.Publish(ctx, events.QueueEventUpdates, msg); err != nil {
		logging.Error(ctx, "publish event update", err,
			zap.Int64("event_id", msg.EventID), zap.String("action", msg.Action))
	}
}
