package domain

import "time"

// Event is a capacity-bounded sellable item. MaxTickets is never negative;
// the sold count lives in the tickets table, not here.
type Event struct {
	ID         int64
	Name       string
	Date       time.Time
	MaxTickets int
}
