package controller

import (
	"net/http"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminController exposes callback audit inspection and replay to operators.
type AdminController struct {
	callbackService *service.CallbackService
}

func NewAdminController(callbackService *service.CallbackService) *AdminController {
	return &AdminController{callbackService: callbackService}
}

// ListCallbacks handles GET /api/v1/admin/callbacks
func (h *AdminController) ListCallbacks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query service.AuditQuery

	if s := q.Get("processed"); s != "" {
		processed, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, domainErrors.NewValidationError("processed", "must be true or false"))
			return
		}
		query.Processed = &processed
	}
	if s := q.Get("correlation_id"); s != "" {
		query.CorrelationID = &s
	}
	if s := q.Get("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			writeError(w, domainErrors.NewValidationError("older_than", "must be a positive duration"))
			return
		}
		query.OlderThan = d
	}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))
	if query.Offset < 0 {
		query.Offset = 0
	}

	audits, err := h.callbackService.ListAudits(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*AuditResponse, 0, len(audits))
	for _, a := range audits {
		resp = append(resp, FromAudit(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCallback handles GET /api/v1/admin/callbacks/{id}
func (h *AdminController) GetCallback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid callback id", Code: "invalid_id"})
		return
	}

	a, err := h.callbackService.GetAudit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAudit(a))
}

// ReplayCallback handles POST /api/v1/admin/callbacks/{id}/replay
func (h *AdminController) ReplayCallback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid callback id", Code: "invalid_id"})
		return
	}

	result, err := h.callbackService.Replay(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromHandleResult(result))
}

// ReplayPending handles POST /api/v1/admin/callbacks/replay
func (h *AdminController) ReplayPending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.callbackService.ReplayPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"scanned":   summary.Scanned,
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
}
