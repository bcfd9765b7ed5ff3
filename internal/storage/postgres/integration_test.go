package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/testutil"
)

func seedEvent(t *testing.T, repo *EventRepository, maxTickets int) domain.Event {
	t.Helper()
	ev, err := repo.CreateEvent(context.Background(), domain.Event{
		Name:       "Integration Night",
		Date:       time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
		MaxTickets: maxTickets,
	})
	require.NoError(t, err)
	return ev
}

func TestTicketLifecycle(t *testing.T) {
	pool := testutil.PoolForTest(t)
	eventRepo := NewEventRepository(pool)
	ticketRepo := NewTicketRepository(pool)
	ctx := context.Background()

	ev := seedEvent(t, eventRepo, 10)

	err := ticketRepo.WithTx(ctx, func(ctx context.Context) error {
		locked, err := ticketRepo.GetEventForUpdate(ctx, ev.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, ev.MaxTickets, locked.MaxTickets)

		_, err = ticketRepo.CreateTicket(ctx, domain.Ticket{
			EventID:      ev.ID,
			UserID:       1,
			TicketNumber: "TICKET-1-00000001",
			PurchaseDate: time.Now().UTC(),
		})
		return err
	})
	require.NoError(t, err)

	count, err := ticketRepo.CountTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	tickets, err := ticketRepo.ListTicketsByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "TICKET-1-00000001", tickets[0].TicketNumber)
}

func TestDuplicateTicketNumber(t *testing.T) {
	pool := testutil.PoolForTest(t)
	eventRepo := NewEventRepository(pool)
	ticketRepo := NewTicketRepository(pool)
	ctx := context.Background()

	ev := seedEvent(t, eventRepo, 10)

	ticket := domain.Ticket{
		EventID: ev.ID, UserID: 1,
		TicketNumber: "TICKET-1-deadbeef",
		PurchaseDate: time.Now().UTC(),
	}
	_, err := ticketRepo.CreateTicket(ctx, ticket)
	require.NoError(t, err)

	ticket.UserID = 2
	_, err = ticketRepo.CreateTicket(ctx, ticket)
	assert.ErrorIs(t, err, domain.ErrTicketNumberConflict)
}

// TestTicketNumberConflictKeepsTransactionAlive asserts a unique violation
// does not abort the enclosing transaction: the same transaction retries
// with a fresh number and commits, the way the reservation engine does.
func TestTicketNumberConflictKeepsTransactionAlive(t *testing.T) {
	pool := testutil.PoolForTest(t)
	eventRepo := NewEventRepository(pool)
	ticketRepo := NewTicketRepository(pool)
	ctx := context.Background()

	ev := seedEvent(t, eventRepo, 10)

	taken := domain.Ticket{
		EventID: ev.ID, UserID: 1,
		TicketNumber: "TICKET-1-c0ffee00",
		PurchaseDate: time.Now().UTC(),
	}
	_, err := ticketRepo.CreateTicket(ctx, taken)
	require.NoError(t, err)

	var retriedID int64
	err = ticketRepo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := ticketRepo.GetEventForUpdate(ctx, ev.ID); err != nil {
			return err
		}

		colliding := taken
		colliding.UserID = 2
		_, err := ticketRepo.CreateTicket(ctx, colliding)
		if !errors.Is(err, domain.ErrTicketNumberConflict) {
			t.Fatalf("want ticket number conflict, got %v", err)
		}

		// The transaction must still be usable after the violation.
		colliding.TicketNumber = "TICKET-1-c0ffee01"
		retriedID, err = ticketRepo.CreateTicket(ctx, colliding)
		return err
	})
	require.NoError(t, err)
	assert.NotZero(t, retriedID)

	count, err := ticketRepo.CountTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestRowLockSerializesCapacityChecks races many transactions through the
// lock-count-insert sequence and asserts capacity holds. This is the same
// sequence the reservation engine runs.
func TestRowLockSerializesCapacityChecks(t *testing.T) {
	pool := testutil.PoolForTest(t)
	eventRepo := NewEventRepository(pool)
	ticketRepo := NewTicketRepository(pool)
	ctx := context.Background()

	const capacity = 3
	const buyers = 12
	ev := seedEvent(t, eventRepo, capacity)

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- ticketRepo.WithTx(ctx, func(ctx context.Context) error {
				locked, err := ticketRepo.GetEventForUpdate(ctx, ev.ID)
				if err != nil {
					return err
				}
				sold, err := ticketRepo.CountTickets(ctx, ev.ID)
				if err != nil {
					return err
				}
				if sold >= locked.MaxTickets {
					return domain.ErrCapacityExhausted
				}
				_, err = ticketRepo.CreateTicket(ctx, domain.Ticket{
					EventID:      ev.ID,
					UserID:       int64(n + 1),
					TicketNumber: "TICKET-race-" + time.Now().Format("150405.000000000") + "-" + string(rune('a'+n)),
					PurchaseDate: time.Now().UTC(),
				})
				return err
			})
		}(i)
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrCapacityExhausted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, won)

	count, err := ticketRepo.CountTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, count)
}

func TestUserRepositoryRoundTrip(t *testing.T) {
	pool := testutil.PoolForTest(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, domain.User{
		Username:     "alice",
		PasswordHash: "$2a$10$fakefakefakefakefakefake",
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, domain.User{
		Username:     "alice",
		PasswordHash: "other",
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	byName, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	byName.Role = domain.RoleOperator
	require.NoError(t, repo.UpdateUser(ctx, byName))

	require.NoError(t, repo.DeleteUser(ctx, created.ID))
	_, err = repo.GetUserByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestEventRepositoryNotFound(t *testing.T) {
	pool := testutil.PoolForTest(t)
	repo := NewEventRepository(pool)
	ctx := context.Background()

	_, err := repo.GetEvent(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	assert.ErrorIs(t, repo.UpdateEvent(ctx, domain.Event{ID: 9999, Name: "x"}), domain.ErrEventNotFound)
	assert.ErrorIs(t, repo.DeleteEvent(ctx, 9999), domain.ErrEventNotFound)
}
