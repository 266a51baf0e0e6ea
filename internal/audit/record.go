// Package audit buffers authorization-outcome records and persists them in
// batches to durable storage.
package audit

import (
	"maps"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Status is the outcome class of an audited request.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
)

// StatusFor derives the outcome class from an HTTP status code.
func StatusFor(httpStatus int) Status {
	switch {
	case httpStatus == http.StatusUnauthorized, httpStatus == http.StatusForbidden, httpStatus == http.StatusTooManyRequests:
		return StatusRejected
	case httpStatus >= 200 && httpStatus < 400:
		return StatusSuccess
	default:
		return StatusError
	}
}

// Record is one immutable audit fact. ActorID is empty for requests rejected
// before authentication.
type Record struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	Status     Status         `json:"status"`
	Route      string         `json:"route"`
	Method     string         `json:"method"`
	HTTPStatus int            `json:"http_status"`
	At         time.Time      `json:"at"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewRecord builds a record describing the outcome of r.
func NewRecord(r *http.Request, actorID, action string, httpStatus int) Record {
	return Record{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Action:     action,
		Status:     StatusFor(httpStatus),
		Route:      routeOf(r),
		Method:     r.Method,
		HTTPStatus: httpStatus,
		At:         time.Now().UTC(),
	}
}

// WithDetails returns a copy of rec carrying details.
func (rec Record) WithDetails(details map[string]any) Record {
	rec.Details = maps.Clone(details)
	return rec
}

// WithError returns a copy of rec carrying a server-side error message.
func (rec Record) WithError(msg string) Record {
	rec.Error = msg
	return rec
}

func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
