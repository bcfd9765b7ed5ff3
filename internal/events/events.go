// Package events is the cross-service propagation contract: the fixed
// catalog of durable queues and the JSON payload carried by each one.
//
// Payloads have no schema version field; evolution is additive only, so a
// field may be added but never removed or repurposed.
package events

// Queue names. Every queue is declared durable and each carries exactly one
// payload shape.
const (
	QueueAuthEvents         = "auth_events"
	QueueUserUpdated        = "user_updated"
	QueueEventUpdates       = "event_updates"
	QueueTicketPurchases    = "ticket_purchases"
	QueueTicketConfirmation = "ticket_confirmation"
)

// Actions carried by AuthEvent.
const (
	AuthActionRegister = "register"
	AuthActionLogin    = "login"
)

// Types carried by TicketConfirmation.
const (
	ConfirmationTypeEmail         = "email"
	ConfirmationTypePaymentFailed = "payment_failed"
)

// AuthEvent is published by the identity service on register/login and
// consumed by the user, event and ticket services.
type AuthEvent struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Action   string `json:"action"`
}

// UserUpdate is published by the user service on profile mutation and
// consumed by the identity, event and ticket services.
type UserUpdate struct {
	UserID  int64          `json:"userId"`
	Action  string         `json:"action"`
	Details map[string]any `json:"details,omitempty"`
}

// EventUpdate is published by the event service on event mutation.
type EventUpdate struct {
	EventID int64          `json:"eventId"`
	Action  string         `json:"action"`
	Details map[string]any `json:"details"`
}

// TicketPurchase is published by the ticket service after a ticket is
// durably persisted and consumed by the event service.
type TicketPurchase struct {
	TicketID     int64  `json:"ticketId"`
	UserID       int64  `json:"userId"`
	EventID      int64  `json:"eventId"`
	TicketNumber string `json:"ticketNumber"`
}

// TicketConfirmation is published by the ticket service and consumed by the
// ticket service itself, simulating notification dispatch. Type
// discriminates purchase confirmations from payment-failure notices.
type TicketConfirmation struct {
	TicketID     int64  `json:"ticketId"`
	UserID       int64  `json:"userId"`
	EventID      int64  `json:"eventId"`
	TicketNumber string `json:"ticketNumber"`
	Type         string `json:"type"`
}
