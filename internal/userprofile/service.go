// Package userprofile manages user profiles and announces every mutation
// on the user_updated queue.
package userprofile

import (
	"context"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) error
	DeleteUser(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type Service struct {
	store UserStore
	pub   Publisher
}

func NewService(store UserStore, pub Publisher) *Service {
	return &Service{store: store, pub: pub}
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return s.store.GetUserByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	updated, err := s.store.GetUserByID(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}

	s.publishUpdate(ctx, events.UserUpdate{
		UserID: updated.ID,
		Action: "updated",
		Details: map[string]any{
			"username": updated.Username,
			"role":     string(updated.Role),
		},
	})
	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.publishUpdate(ctx, events.UserUpdate{UserID: id, Action: "deleted"})
	return nil
}

// publishUpdate is best effort; the profile mutation already committed.
func (s *Service) publishUpdate(ctx context.Context, msg events.UserUpdate) {
	if err := s.pub.Publish(ctx, events.QueueUserUpdated, msg); err != nil {
		logging.Error(ctx, "publish user update", err,
			zap.Int64("user_id", msg.UserID), zap.String("action", msg.Action))
	}
}
