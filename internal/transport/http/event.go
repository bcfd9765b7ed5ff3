package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tixgo/platform/internal/domain"
)

// EventService is what the event handlers need from the catalog.
type EventService interface {
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}

type eventRequest struct {
	Name       string    `json:"name" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
	MaxTickets int       `json:"maxTickets" validate:"gte=0"`
}

type eventResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	MaxTickets int       `json:"maxTickets"`
}

func toEventResponse(ev domain.Event) eventResponse {
	return eventResponse{ID: ev.ID, Name: ev.Name, Date: ev.Date, MaxTickets: ev.MaxTickets}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func decodeEventRequest(w http.ResponseWriter, r *http.Request) (eventRequest, bool) {
	var req eventRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return eventRequest{}, false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "name and date are required, maxTickets must not be negative")
		return eventRequest{}, false
	}
	return req, true
}

func HandleCreateEvent(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeEventRequest(w, r)
		if !ok {
			return
		}

		created, err := svc.CreateEvent(r.Context(), domain.Event{
			Name:       req.Name,
			Date:       req.Date,
			MaxTickets: req.MaxTickets,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEventResponse(created))
	}
}

func HandleGetEvent(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		ev, err := svc.GetEvent(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEventResponse(ev))
	}
}

func HandleListEvents(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evs, err := svc.ListEvents(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]eventResponse, 0, len(evs))
		for _, ev := range evs {
			out = append(out, toEventResponse(ev))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func HandleUpdateEvent(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		req, ok := decodeEventRequest(w, r)
		if !ok {
			return
		}

		updated, err := svc.UpdateEvent(r.Context(), domain.Event{
			ID:         id,
			Name:       req.Name,
			Date:       req.Date,
			MaxTickets: req.MaxTickets,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEventResponse(updated))
	}
}

func HandleDeleteEvent(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if err := svc.DeleteEvent(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
