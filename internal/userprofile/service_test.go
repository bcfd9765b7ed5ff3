package userprofile

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newFakeUserStore(users ...domain.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[int64]domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) ListUsers(context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeUserStore) UpdateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	existing.Username = u.Username
	existing.Role = u.Role
	s.users[u.ID] = existing
	return nil
}

func (s *fakeUserStore) EnsureUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return nil
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

type capturingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]any
}

func (p *capturingPublisher) Publish(_ context.Context, queue string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][]any)
	}
	p.msgs[queue] = append(p.msgs[queue], payload)
	return nil
}

func TestUpdateUserPublishes(t *testing.T) {
	store := newFakeUserStore(domain.User{ID: 1, Username: "alice", Role: domain.RoleUser})
	pub := &capturingPublisher{}
	svc := NewService(store, pub)

	updated, err := svc.UpdateUser(context.Background(), domain.User{
		ID: 1, Username: "alice2", Role: domain.RoleOperator,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)

	msgs := pub.msgs[events.QueueUserUpdated]
	require.Len(t, msgs, 1)
	msg := msgs[0].(events.UserUpdate)
	assert.Equal(t, "updated", msg.Action)
	assert.Equal(t, "alice2", msg.Details["username"])
}

func TestUpdateUnknownUser(t *testing.T) {
	svc := NewService(newFakeUserStore(), &capturingPublisher{})

	_, err := svc.UpdateUser(context.Background(), domain.User{ID: 404, Username: "ghost"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDeleteUserPublishes(t *testing.T) {
	store := newFakeUserStore(domain.User{ID: 2, Username: "bob", Role: domain.RoleUser})
	pub := &capturingPublisher{}
	svc := NewService(store, pub)

	require.NoError(t, svc.DeleteUser(context.Background(), 2))

	msgs := pub.msgs[events.QueueUserUpdated]
	require.Len(t, msgs, 1)
	msg := msgs[0].(events.UserUpdate)
	assert.Equal(t, "deleted", msg.Action)
	assert.Equal(t, int64(2), msg.UserID)
	assert.Empty(t, msg.Details)
}

func TestRegisterEventProvisionsProfile(t *testing.T) {
	store := newFakeUserStore()
	consumer := NewConsumer(store)

	body, err := json.Marshal(events.AuthEvent{UserID: 7, Username: "carol", Role: "user", Action: events.AuthActionRegister})
	require.NoError(t, err)
	require.NoError(t, consumer.handleAuthEvent(context.Background(), body))

	u, err := store.GetUserByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)

	// Replaying the same message must not disturb the existing profile.
	require.NoError(t, consumer.handleAuthEvent(context.Background(), body))
}

func TestLoginEventForUnknownUserIsAcked(t *testing.T) {
	consumer := NewConsumer(newFakeUserStore())

	body, err := json.Marshal(events.AuthEvent{UserID: 9999, Username: "ghost", Action: events.AuthActionLogin})
	require.NoError(t, err)

	assert.NoError(t, consumer.handleAuthEvent(context.Background(), body))
}

func TestAuthEventMalformedPayloadIsRejected(t *testing.T) {
	consumer := NewConsumer(newFakeUserStore())

	assert.Error(t, consumer.handleAuthEvent(context.Background(), []byte("{")))
}
