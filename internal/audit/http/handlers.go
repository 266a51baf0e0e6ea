// Package audithttp serves the audit trail to administrators.
package audithttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nia-ro/workdesk/internal/audit"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

const (
	exportPageSize = 200
	maxExportRows  = 10000
	maxRange       = 90 * 24 * time.Hour
)

// Lister reads audit records.
type Lister interface {
	Recent(ctx context.Context, filters audit.Filters) (audit.Page, error)
}

// RouteGuard wraps handlers with authorization and auditing.
type RouteGuard interface {
	API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler
}

// Handler serves audit listing and CSV export.
type Handler struct {
	logger   *slog.Logger
	store    Lister
	guard    RouteGuard
	finisher *httpx.Finisher
	now      func() time.Time
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, store Lister, guard RouteGuard, finisher *httpx.Finisher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, guard: guard, finisher: finisher, now: time.Now}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, r, err)
		return
	}
	page, err := h.store.Recent(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, r, "list audit records", err)
		return
	}
	if page.Records == nil {
		page.Records = []audit.Record{}
	}
	h.finisher.JSON(w, r, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, r, err)
		return
	}
	filters.PageSize = exportPageSize
	var rows []audit.Record
	for filters.Page = 1; len(rows) < maxExportRows; filters.Page++ {
		page, err := h.store.Recent(r.Context(), filters)
		if err != nil {
			h.handleServerError(w, r, "export audit records", err)
			return
		}
		rows = append(rows, page.Records...)
		if !page.HasNext {
			break
		}
	}
	if len(rows) > maxExportRows {
		rows = rows[:maxExportRows]
	}
	body, err := writeCSV(rows)
	if err != nil {
		h.handleServerError(w, r, "encode csv", err)
		return
	}
	shared.Annotate(r.Context(), "rows", len(rows))
	name := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102"))
	h.finisher.Attachment(w, r, name, "text/csv; charset=utf-8", body)
}

func writeCSV(rows []audit.Record) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"at", "actor_id", "action", "status", "method", "route", "http_status", "error"}); err != nil {
		return nil, err
	}
	for _, rec := range rows {
		record := []string{
			rec.At.UTC().Format(time.RFC3339),
			rec.ActorID,
			rec.Action,
			string(rec.Status),
			rec.Method,
			rec.Route,
			strconv.Itoa(rec.HTTPStatus),
			rec.Error,
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		ActorID: strings.TrimSpace(q.Get("actor")),
		Action:  strings.TrimSpace(q.Get("action")),
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status := audit.Status(strings.ToLower(v))
		switch status {
		case audit.StatusSuccess, audit.StatusRejected, audit.StatusError:
			filters.Status = status
		default:
			return audit.Filters{}, validationError{field: "status"}
		}
	}
	now := h.now().UTC()
	filters.To = now
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.Filters{}, validationError{field: "to"}
		}
		filters.To = to.Add(24 * time.Hour)
	}
	filters.From = filters.To.Add(-7 * 24 * time.Hour)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.Filters{}, validationError{field: "from"}
		}
		filters.From = from
	}
	if !filters.From.Before(filters.To) || filters.To.Sub(filters.From) > maxRange {
		return audit.Filters{}, validationError{field: "range"}
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page <= 0 {
			return audit.Filters{}, validationError{field: "page"}
		}
		filters.Page = page
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return audit.Filters{}, validationError{field: "page_size"}
		}
		filters.PageSize = size
	}
	return filters.Normalize(), nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, r *http.Request, err error) {
	var v validationError
	if errors.As(err, &v) {
		h.finisher.Error(w, r, http.StatusBadRequest, httpx.Validation(map[string]string{v.field: "invalid"}))
		return
	}
	h.handleServerError(w, r, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	shared.AnnotateError(r.Context(), err)
	h.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
