// Package identity handles registration, login and token issuance, and
// announces both auth actions on the broker.
package identity

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
)

// UserStore is the persistence surface the identity service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type Service struct {
	store  UserStore
	pub    Publisher
	tokens *TokenIssuer
	now    func() time.Time
}

func NewService(store UserStore, pub Publisher, tokens *TokenIssuer) *Service {
	return &Service{
		store:  store,
		pub:    pub,
		tokens: tokens,
		now:    time.Now,
	}
}

// Register creates the account with a bcrypt-hashed password. New accounts
// always get the user role; elevation is an operator concern.
func (s *Service) Register(ctx context.Context, username, password string) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.store.CreateUser(ctx, domain.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}

	s.publishAuthEvent(ctx, user, events.AuthActionRegister)
	return user, nil
}

// Login verifies the credentials and issues a signed token. Unknown
// username and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", err
	}

	s.publishAuthEvent(ctx, user, events.AuthActionLogin)
	return token, nil
}

// publishAuthEvent is best effort; the account mutation already committed.
func (s *Service) publishAuthEvent(ctx context.Context, user domain.User, action string) {
	msg := events.AuthEvent{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		Action:   action,
	}
	if err := s.pub.Publish(ctx, events.QueueAuthEvents, msg); err != nil {
		logging.Error(ctx, "publish auth event", err,
			zap.Int64("user_id", user.ID), zap.String("action", action))
	}
}
