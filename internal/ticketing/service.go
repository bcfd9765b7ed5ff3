// Package ticketing is the reservation engine: capacity-bounded ticket
// purchase under concurrency, followed by best-effort propagation of the
// outcome over the broker.
package ticketing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/events"
	"github.com/tixgo/platform/internal/logging"
	"github.com/tixgo/platform/internal/metrics"
	"github.com/tixgo/platform/internal/payment"
)

// ticketNumberRetries bounds regeneration after a ticket_number collision.
const ticketNumberRetries = 3

// Repository is the persistence surface the engine needs. WithTx runs fn in
// a single transaction; the repository methods called from fn join it.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEventForUpdate(ctx context.Context, eventID int64) (domain.Event, error)
	CountTickets(ctx context.Context, eventID int64) (int, error)
	CreateTicket(ctx context.Context, t domain.Ticket) (int64, error)
	ListTicketsByUser(ctx context.Context, userID int64) ([]domain.Ticket, error)
}

// Publisher is the broker surface the engine needs.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type Service struct {
	repo    Repository
	gateway payment.Gateway
	pub     Publisher
	now     func() time.Time
}

func NewService(repo Repository, gateway payment.Gateway, pub Publisher) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		pub:     pub,
		now:     time.Now,
	}
}

// Purchase reserves one ticket for the user on the event.
//
// The capacity check, the charge and the insert all run inside one
// transaction holding a row lock on the event, so two purchases racing for
// the last slot serialize and exactly one wins. The ticket row is the
// source of truth: once the transaction commits the purchase has succeeded,
// and the confirmation publishes that follow are best effort.
func (s *Service) Purchase(ctx context.Context, eventID, userID int64) (domain.Ticket, error) {
	var ticket domain.Ticket

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		ev, err := s.repo.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		sold, err := s.repo.CountTickets(ctx, eventID)
		if err != nil {
			return err
		}
		if sold >= ev.MaxTickets {
			return domain.ErrCapacityExhausted
		}

		if err := s.gateway.Charge(ctx, userID, eventID); err != nil {
			return err
		}

		ticket = domain.Ticket{
			EventID:      eventID,
			UserID:       userID,
			PurchaseDate: s.now().UTC(),
		}
		for attempt := 0; ; attempt++ {
			ticket.TicketNumber = s.newTicketNumber()
			id, err := s.repo.CreateTicket(ctx, ticket)
			if err == nil {
				ticket.ID = id
				return nil
			}
			if !errors.Is(err, domain.ErrTicketNumberConflict) || attempt+1 >= ticketNumberRetries {
				return err
			}
		}
	})
	if err != nil {
		s.recordFailure(ctx, err, eventID, userID)
		return domain.Ticket{}, err
	}

	metrics.Purchases.WithLabelValues("success").Inc()
	s.publishConfirmation(ctx, ticket)
	return ticket, nil
}

func (s *Service) ListUserTickets(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	return s.repo.ListTicketsByUser(ctx, userID)
}

func (s *Service) recordFailure(ctx context.Context, err error, eventID, userID int64) {
	switch {
	case errors.Is(err, domain.ErrCapacityExhausted):
		metrics.Purchases.WithLabelValues("sold_out").Inc()
	case errors.Is(err, domain.ErrPaymentDeclined):
		metrics.Purchases.WithLabelValues("payment_declined").Inc()
		s.publishPaymentFailure(ctx, eventID, userID)
	case errors.Is(err, domain.ErrEventNotFound):
		metrics.Purchases.WithLabelValues("not_found").Inc()
	default:
		metrics.Purchases.WithLabelValues("error").Inc()
	}
}

// publishConfirmation runs after commit. Failures are logged and swallowed;
// the caller already holds a durable ticket.
func (s *Service) publishConfirmation(ctx context.Context, t domain.Ticket) {
	confirmation := events.TicketConfirmation{
		TicketID:     t.ID,
		UserID:       t.UserID,
		EventID:      t.EventID,
		TicketNumber: t.TicketNumber,
		Type:         events.ConfirmationTypeEmail,
	}
	if err := s.pub.Publish(ctx, events.QueueTicketConfirmation, confirmation); err != nil {
		logging.Error(ctx, "publish ticket confirmation", err,
			zap.Int64("ticket_id", t.ID), zap.String("ticket_number", t.TicketNumber))
	}

	purchase := events.TicketPurchase{
		TicketID:     t.ID,
		UserID:       t.UserID,
		EventID:      t.EventID,
		TicketNumber: t.TicketNumber,
	}
	if err := s.pub.Publish(ctx, events.QueueTicketPurchases, purchase); err != nil {
		logging.Error(ctx, "publish ticket purchase", err,
			zap.Int64("ticket_id", t.ID), zap.Int64("event_id", t.EventID))
	}
}

func (s *Service) publishPaymentFailure(ctx context.Context, eventID, userID int64) {
	notice := events.TicketConfirmation{
		UserID:  userID,
		EventID: eventID,
		Type:    events.ConfirmationTypePaymentFailed,
	}
	if err := s.pub.Publish(ctx, events.QueueTicketConfirmation, notice); err != nil {
		logging.Error(ctx, "publish payment failure notice", err,
			zap.Int64("event_id", eventID), zap.Int64("user_id", userID))
	}
}

func (s *Service) newTicketNumber() string {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		// crypto/rand only fails on a broken platform; fall back to the clock.
		return fmt.Sprintf("TICKET-%d-%08x", s.now().UnixMilli(), s.now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("TICKET-%d-%s", s.now().UnixMilli(), hex.EncodeToString(suffix[:]))
}
