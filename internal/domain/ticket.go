package domain

import "time"

// Ticket is a reservation record. Created exactly once per successful
// purchase and never mutated afterwards.
type Ticket struct {
	ID           int64
	EventID      int64
	UserID       int64
	TicketNumber string
	PurchaseDate time.Time
}
