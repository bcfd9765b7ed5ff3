package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tixgo/platform/internal/domain"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	const stmt = `INSERT INTO events (name, date, max_tickets) VALUES ($1, $2, $3) RETURNING id`

	if err := q(ctx, r.pool).QueryRow(ctx, stmt, ev.Name, ev.Date, ev.MaxTickets).Scan(&ev.ID); err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	const query = `SELECT id, name, date, max_tickets FROM events WHERE id = $1`

	var ev domain.Event
	err := q(ctx, r.pool).QueryRow(ctx, query, id).Scan(&ev.ID, &ev.Name, &ev.Date, &ev.MaxTickets)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (r *EventRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `SELECT id, name, date, max_tickets FROM events ORDER BY date`

	rows, err := q(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Date, &ev.MaxTickets); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, ev domain.Event) error {
	const stmt = `UPDATE events SET name = $2, date = $3, max_tickets = $4 WHERE id = $1`

	tag, err := q(ctx, r.pool).Exec(ctx, stmt, ev.ID, ev.Name, ev.Date, ev.MaxTickets)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) DeleteEvent(ctx context.Context, id int64) error {
	const stmt = `DELETE FROM events WHERE id = $1`

	tag, err := q(ctx, r.pool).Exec(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
