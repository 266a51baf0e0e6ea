package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
	"github.com/nia-ro/workdesk/report"
)

const (
	maxReportBody   = 256 << 10
	maxUploadBytes  = 40 << 20
	maxSheetBytes   = 5 << 20
	maxSheets       = 10
	maxPDFBytes     = 20 << 20
	maxPDFs         = 20
	multipartMemory = 8 << 20
)

// Documents converts and merges documents.
type Documents interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
	MergePDFs(ctx context.Context, files []report.File) ([]byte, error)
}

// RouteGuard wraps handlers with authorization and auditing.
type RouteGuard interface {
	API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler
}

// Handler serves the workspace tools.
type Handler struct {
	logger    *slog.Logger
	guard     RouteGuard
	finisher  *httpx.Finisher
	documents Documents
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler builds the tools handler.
func NewHandler(logger *slog.Logger, guard RouteGuard, finisher *httpx.Finisher, documents Documents) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		guard:     guard,
		finisher:  finisher,
		documents: documents,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers the tool endpoints under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.API("workspace.read", rbac.PermWorkspaceRead)).Get("/workspace", h.handleWorkspace)
	r.With(h.guard.API("reports.accomplishment", rbac.PermReportsGenerate)).Post("/reports/accomplishment", h.handleAccomplishment)
	r.With(h.guard.API("billing.consolidate", rbac.PermBillingConsolidate)).Post("/billing/consolidate", h.handleBilling)
	r.With(h.guard.API("documents.merge", rbac.PermDocumentsMerge)).Post("/documents/merge", h.handleMerge)
}

func (h *Handler) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	h.finisher.JSON(w, r, http.StatusOK, map[string]any{
		"uid":         p.UID,
		"email":       p.Email,
		"role":        p.Claims.Role,
		"permissions": rbac.Granted(p.Claims),
		"tools":       Available(p),
	})
}

func (h *Handler) handleAccomplishment(w http.ResponseWriter, r *http.Request) {
	var req AccomplishmentRequest
	if err := httpx.DecodeJSON(w, r, &req, maxReportBody); err != nil {
		h.badRequest(w, r, map[string]string{"body": "invalid json"})
		return
	}
	if fields := h.validate(req); fields != nil {
		h.badRequest(w, r, fields)
		return
	}
	if _, _, err := req.Period(); err != nil {
		h.badRequest(w, r, map[string]string{"period_end": "before period_start"})
		return
	}
	shared.Annotate(r.Context(), "items", len(req.Items))

	now := h.now()
	if req.Format == "pdf" {
		html, err := AccomplishmentHTML(req, now)
		if err != nil {
			h.serverError(w, r, "render accomplishment html", err)
			return
		}
		pdf, err := h.documents.RenderHTML(r.Context(), html)
		if err != nil {
			h.upstreamError(w, r, "convert accomplishment", err)
			return
		}
		h.finisher.Attachment(w, r, req.Filename("pdf"), "application/pdf", pdf)
		return
	}
	body, err := AccomplishmentCSV(req, now)
	if err != nil {
		h.serverError(w, r, "render accomplishment csv", err)
		return
	}
	h.finisher.Attachment(w, r, req.Filename("csv"), "text/csv; charset=utf-8", body)
}

func (h *Handler) handleBilling(w http.ResponseWriter, r *http.Request) {
	files, fields := h.readUploads(w, r, maxSheets, maxSheetBytes)
	if fields != nil {
		h.badRequest(w, r, fields)
		return
	}
	sheets := make([]BillingSheet, 0, len(files))
	for _, f := range files {
		sheets = append(sheets, BillingSheet{Name: f.Name, Content: f.Content})
	}
	lines, err := ConsolidateBilling(sheets)
	if err != nil {
		if errors.Is(err, ErrBillingInput) {
			h.badRequest(w, r, map[string]string{"files": strings.TrimPrefix(err.Error(), ErrBillingInput.Error()+": ")})
			return
		}
		h.serverError(w, r, "consolidate billing", err)
		return
	}
	body, err := BillingCSV(lines)
	if err != nil {
		h.serverError(w, r, "render billing csv", err)
		return
	}
	shared.Annotate(r.Context(), "sheets", len(sheets))
	shared.Annotate(r.Context(), "accounts", len(lines))
	name := fmt.Sprintf("Consolidated Billing %s.csv", h.now().Format(dateLayout))
	h.finisher.Attachment(w, r, name, "text/csv; charset=utf-8", body)
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	files, fields := h.readUploads(w, r, maxPDFs, maxPDFBytes)
	if fields != nil {
		h.badRequest(w, r, fields)
		return
	}
	if len(files) < 2 {
		h.badRequest(w, r, map[string]string{"files": "at least two PDF files required"})
		return
	}
	for _, f := range files {
		if !bytes.HasPrefix(f.Content, []byte("%PDF-")) {
			h.badRequest(w, r, map[string]string{"files": "not a PDF: " + httpx.SanitizeFilename(f.Name, "file")})
			return
		}
	}
	merged, err := h.documents.MergePDFs(r.Context(), files)
	if err != nil {
		h.upstreamError(w, r, "merge documents", err)
		return
	}
	shared.Annotate(r.Context(), "files", len(files))
	name := strings.TrimSpace(r.FormValue("filename"))
	if name == "" {
		name = "merged.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	h.finisher.Attachment(w, r, name, "application/pdf", merged)
}

// readUploads reads every "files" part, enforcing count and size limits.
func (h *Handler) readUploads(w http.ResponseWriter, r *http.Request, maxFiles int, maxEach int64) ([]report.File, map[string]string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, map[string]string{"files": "invalid multipart body"}
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, map[string]string{"files": "required"}
	}
	if len(headers) > maxFiles {
		return nil, map[string]string{"files": fmt.Sprintf("at most %d files", maxFiles)}
	}
	out := make([]report.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxEach {
			return nil, map[string]string{"files": "file too large: " + httpx.SanitizeFilename(fh.Filename, "file")}
		}
		content, err := readPart(fh)
		if err != nil {
			return nil, map[string]string{"files": "unreadable file"}
		}
		out = append(out, report.File{Name: fh.Filename, Content: content})
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) validate(v any) map[string]string {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": "invalid"}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// Items[2].Target -> items.target
		ns := fe.StructNamespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		var b strings.Builder
		depth := 0
		for _, c := range ns {
			switch {
			case c == '[':
				depth++
			case c == ']':
				depth--
			case depth == 0:
				b.WriteRune(c)
			}
		}
		fields[toSnake(b.String())] = fe.Tag()
	}
	return fields
}

func toSnake(s string) string {
	var b strings.Builder
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			if i > 0 && s[i-1] != '.' {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	h.finisher.Error(w, r, http.StatusBadRequest, httpx.Validation(fields))
}

func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	shared.AnnotateError(r.Context(), err)
	if errors.Is(err, report.ErrUpstream) {
		h.finisher.Error(w, r, http.StatusBadGateway, httpx.ErrorBody{Error: "Bad Gateway", Message: "Document service unavailable"})
		return
	}
	h.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	shared.AnnotateError(r.Context(), err)
	h.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
}
