package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
	authzService   *service.AuthzService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(
	paymentService *service.PaymentService,
	authzService *service.AuthzService,
) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		authzService:   authzService,
	}
}

// Initiate handles POST /api/v1/payments/mpesa/initiate
func (h *PaymentController) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	svcReq, err := req.toService()
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.paymentService.Initiate(r.Context(), svcReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, InitiatePaymentResponse{
		CorrelationID: resp.CorrelationID,
		PaymentID:     resp.PaymentID.String(),
		Message:       resp.Message,
	})
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.authzService.AuthorizePayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// GetByCorrelation handles GET /api/v1/payments/correlation/{correlationId}
func (h *PaymentController) GetByCorrelation(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.GetByCorrelationID(r.Context(), chi.URLParam(r, "correlationId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authzService.VerifyPaymentOwnership(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payment.ListFilter{}

	if s := q.Get("status"); s != "" {
		status := payment.Status(s)
		filter.Status = &status
	}
	if s := q.Get("user_id"); s != "" {
		filter.UserID = &s
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.SortBy = q.Get("sort_by")
	filter.SortOrder = q.Get("sort_order")

	if err := h.authzService.ScopeFilter(r.Context(), &filter); err != nil {
		writeError(w, err)
		return
	}

	payments, err := h.paymentService.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelPayment handles POST /api/v1/payments/{id}/cancel
func (h *PaymentController) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	if _, err := h.authzService.AuthorizePayment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.paymentService.CancelPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}
