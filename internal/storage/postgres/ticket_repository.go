package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tixgo/platform/internal/domain"
)

// TicketRepository persists tickets and serializes per-event capacity
// decisions through a row lock on the owning event.
type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// GetEventForUpdate locks the event row for the duration of the enclosing
// transaction. Two concurrent purchases for the same event serialize here;
// purchases for different events do not contend.
func (r *TicketRepository) GetEventForUpdate(ctx context.Context, eventID int64) (domain.Event, error) {
	const query = `SELECT id, name, date, max_tickets FROM events WHERE id = $1 FOR UPDATE`

	var ev domain.Event
	err := q(ctx, r.pool).QueryRow(ctx, query, eventID).
		Scan(&ev.ID, &ev.Name, &ev.Date, &ev.MaxTickets)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event for update: %w", err)
	}
	return ev, nil
}

func (r *TicketRepository) CountTickets(ctx context.Context, eventID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE event_id = $1`

	var count int
	if err := q(ctx, r.pool).QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return count, nil
}

// CreateTicket inserts the ticket and returns its id. The UNIQUE constraint
// on ticket_number is the collision backstop; a violation surfaces as
// domain.ErrTicketNumberConflict so the caller can regenerate and retry.
//
// Inside a transaction the insert runs under a savepoint: Postgres aborts
// the whole transaction on any statement error, so without one a 23505
// would poison the enclosing purchase transaction and no retry could ever
// succeed.
func (r *TicketRepository) CreateTicket(ctx context.Context, t domain.Ticket) (int64, error) {
	const stmt = `
INSERT INTO tickets (event_id, user_id, ticket_number, purchase_date)
VALUES ($1, $2, $3, $4)
RETURNING id`

	var id int64
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = func() error {
			sp, err := tx.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin savepoint: %w", err)
			}
			if err := sp.QueryRow(ctx, stmt, t.EventID, t.UserID, t.TicketNumber, t.PurchaseDate).Scan(&id); err != nil {
				_ = sp.Rollback(ctx)
				return err
			}
			return sp.Commit(ctx)
		}()
	} else {
		err = r.pool.QueryRow(ctx, stmt, t.EventID, t.UserID, t.TicketNumber, t.PurchaseDate).Scan(&id)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrTicketNumberConflict
		}
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	return id, nil
}

func (r *TicketRepository) ListTicketsByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	const query = `
SELECT id, event_id, user_id, ticket_number, purchase_date
FROM tickets
WHERE user_id = $1
ORDER BY purchase_date DESC`

	rows, err := q(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.EventID, &t.UserID, &t.TicketNumber, &t.PurchaseDate); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return tickets, nil
}
