// Package http holds the platform's HTTP handlers. Each handler is built
// around the narrowest service interface it needs, so tests can pass small
// fakes instead of wiring real services.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tixgo/platform/internal/domain"
)

var validate = validator.New()

// TicketService is what the ticket handlers need from the reservation
// engine.
type TicketService interface {
	Purchase(ctx context.Context, eventID, userID int64) (domain.Ticket, error)
	ListUserTickets(ctx context.Context, userID int64) ([]domain.Ticket, error)
}

type purchaseRequest struct {
	EventID int64 `json:"eventId" validate:"required,gt=0"`
}

type ticketResponse struct {
	ID           int64     `json:"id"`
	EventID      int64     `json:"eventId"`
	UserID       int64     `json:"userId"`
	TicketNumber string    `json:"ticketNumber"`
	PurchaseDate time.Time `json:"purchaseDate"`
}

func toTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:           t.ID,
		EventID:      t.EventID,
		UserID:       t.UserID,
		TicketNumber: t.TicketNumber,
		PurchaseDate: t.PurchaseDate,
	}
}

// HandlePurchase reserves a ticket for the authenticated user.
func HandlePurchase(svc TicketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		var req purchaseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "eventId must be a positive integer")
			return
		}

		ticket, err := svc.Purchase(r.Context(), req.EventID, claims.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toTicketResponse(ticket))
	}
}

// HandleListTickets returns the authenticated user's tickets, newest first.
func HandleListTickets(svc TicketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}

		tickets, err := svc.ListUserTickets(r.Context(), claims.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]ticketResponse, 0, len(tickets))
		for _, t := range tickets {
			out = append(out, toTicketResponse(t))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
