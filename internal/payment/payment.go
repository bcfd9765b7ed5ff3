// Package payment models the external payment dependency behind a small
// interface so a real gateway can replace the simulator without touching
// the reservation engine.
package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/tixgo/platform/internal/domain"
)

// Gateway charges a user for one ticket on one event. A domain.
// ErrPaymentDeclined return means the charge was refused; any other error
// is an infrastructure failure.
type Gateway interface {
	Charge(ctx context.Context, userID, eventID int64) error
}

// Simulator fakes a payment provider: a fixed artificial latency followed
// by a random decline with the configured probability.
type Simulator struct {
	failureRate float64
	latency     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

type SimulatorOption func(*Simulator)

// WithRandSource makes declines deterministic; used by tests.
func WithRandSource(src rand.Source) SimulatorOption {
	return func(s *Simulator) {
		s.rnd = rand.New(src)
	}
}

// WithSleeper replaces the latency sleep; used by tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SimulatorOption {
	return func(s *Simulator) {
		s.sleep = sleep
	}
}

func NewSimulator(failureRate float64, latency time.Duration, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		failureRate: failureRate,
		latency:     latency,
		sleep:       sleepCtx,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Charge(ctx context.Context, userID, eventID int64) error {
	if err := s.sleep(ctx, s.latency); err != nil {
		return err
	}

	s.mu.Lock()
	declined := s.rnd.Float64() < s.failureRate
	s.mu.Unlock()

	if declined {
		return domain.ErrPaymentDeclined
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Declined is a gateway that always refuses; used by tests to force the
// payment-failure path.
type Declined struct{}

func (Declined) Charge(context.Context, int64, int64) error {
	return domain.ErrPaymentDeclined
}

// Accepted is a gateway that always succeeds.
type Accepted struct{}

func (Accepted) Charge(context.Context, int64, int64) error {
	return nil
}
