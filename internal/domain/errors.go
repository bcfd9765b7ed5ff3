package domain

import "errors"

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrCapacityExhausted  = errors.New("no tickets available")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidID          = errors.New("invalid id")

	// ErrTicketNumberConflict surfaces the UNIQUE constraint on
	// tickets.ticket_number; callers regenerate the number and retry.
	ErrTicketNumberConflict = errors.New("ticket number already exists")
)
