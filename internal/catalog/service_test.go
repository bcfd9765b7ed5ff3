package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events map[int64]domain.Event
	nextID int64
	gets   int
}

func newFakeEventStore(evs ...domain.Event) *fakeEventStore {
	s := &fakeEventStore{events: make(map[int64]domain.Event)}
	for _, ev := range evs {
		s.events[ev.ID] = ev
		if ev.ID > s.nextID {
			s.nextID = ev.ID
		}
	}
	return s
}

func (s *fakeEventStore) CreateEvent(_ context.Context, ev domain.Event) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	s.events[ev.ID] = ev
	return ev, nil
}

func (s *fakeEventStore) GetEvent(_ context.Context, id int64) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	ev, ok := s.events[id]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return ev, nil
}

func (s *fakeEventStore) ListEvents(context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out, nil
}

func (s *fakeEventStore) UpdateEvent(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; !ok {
		return domain.ErrEventNotFound
	}
	s.events[ev.ID] = ev
	return nil
}

func (s *fakeEventStore) DeleteEvent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return domain.ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.data[key]
	return val, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
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

func concert(id int64) domain.Event {
	return domain.Event{ID: id, Name: "Autumn Concert", Date: time.Now().Add(48 * time.Hour), MaxTickets: 100}
}

func TestCreateEventPublishes(t *testing.T) {
	store := newFakeEventStore()
	pub := &capturingPublisher{}
	svc := NewService(store, pub, nil, time.Minute)

	created, err := svc.CreateEvent(context.Background(), domain.Event{Name: "Gala", MaxTickets: 50})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	msgs := pub.msgs[events.QueueEventUpdates]
	require.Len(t, msgs, 1)
	msg := msgs[0].(events.EventUpdate)
	assert.Equal(t, "created", msg.Action)
	assert.Equal(t, created.ID, msg.EventID)
}

func TestGetEventReadThrough(t *testing.T) {
	store := newFakeEventStore(concert(1))
	c := newMemCache()
	svc := NewService(store, &capturingPublisher{}, c, time.Minute)

	first, err := svc.GetEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)

	second, err := svc.GetEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.gets, "second read should be served from cache")
}

func TestGetEventEvictsUndecodableEntry(t *testing.T) {
	store := newFakeEventStore(concert(1))
	c := newMemCache()
	require.NoError(t, c.Set(context.Background(), cacheKey(1), []byte("garbage"), time.Minute))
	svc := NewService(store, &capturingPublisher{}, c, time.Minute)

	ev, err := svc.GetEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Autumn Concert", ev.Name)

	raw, hit, _ := c.Get(context.Background(), cacheKey(1))
	require.True(t, hit)
	var cached domain.Event
	assert.NoError(t, json.Unmarshal(raw, &cached))
}

func TestUpdateEventInvalidatesCache(t *testing.T) {
	store := newFakeEventStore(concert(1))
	c := newMemCache()
	pub := &capturingPublisher{}
	svc := NewService(store, pub, c, time.Minute)

	_, err := svc.GetEvent(context.Background(), 1)
	require.NoError(t, err)

	updated := concert(1)
	updated.Name = "Winter Concert"
	_, err = svc.UpdateEvent(context.Background(), updated)
	require.NoError(t, err)

	got, err := svc.GetEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Winter Concert", got.Name)

	msgs := pub.msgs[events.QueueEventUpdates]
	require.Len(t, msgs, 1)
	assert.Equal(t, "updated", msgs[0].(events.EventUpdate).Action)
}

func TestDeleteUnknownEvent(t *testing.T) {
	svc := NewService(newFakeEventStore(), &capturingPublisher{}, nil, time.Minute)

	err := svc.DeleteEvent(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestPurchaseConsumerInvalidatesAndAcks(t *testing.T) {
	store := newFakeEventStore(concert(1))
	c := newMemCache()
	svc := NewService(store, &capturingPublisher{}, c, time.Minute)
	consumer := NewConsumer(svc)

	_, err := svc.GetEvent(context.Background(), 1)
	require.NoError(t, err)
	_, hit, _ := c.Get(context.Background(), cacheKey(1))
	require.True(t, hit)

	body, err := json.Marshal(events.TicketPurchase{TicketID: 9, UserID: 2, EventID: 1, TicketNumber: "TICKET-1-cafe0001"})
	require.NoError(t, err)
	require.NoError(t, consumer.handlePurchase(context.Background(), body))

	_, hit, _ = c.Get(context.Background(), cacheKey(1))
	assert.False(t, hit)
}

func TestPurchaseConsumerAcksUnknownEvent(t *testing.T) {
	svc := NewService(newFakeEventStore(), &capturingPublisher{}, nil, time.Minute)
	consumer := NewConsumer(svc)

	body, err := json.Marshal(events.TicketPurchase{TicketID: 9, EventID: 9999})
	require.NoError(t, err)
	assert.NoError(t, consumer.handlePurchase(context.Background(), body))
}

func TestPurchaseConsumerRejectsMalformedPayload(t *testing.T) {
	svc := NewService(newFakeEventStore(), &capturingPublisher{}, nil, time.Minute)
	consumer := NewConsumer(svc)

	assert.Error(t, consumer.handlePurchase(context.Background(), []byte("::")))
}
