package controller

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/rs/zerolog/log"
)

// TruncatedHeader marks an audit row whose body exceeded the size limit.
const TruncatedHeader = "x-sokopay-body-truncated"

var (
	ackAccepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}
	ackFailed   = CallbackAck{ResultCode: 1, ResultDesc: "Failed"}
)

// CallbackController receives gateway result deliveries.
type CallbackController struct {
	callbackService *service.CallbackService
	maxBodyBytes    int64
}

func NewCallbackController(callbackService *service.CallbackService, maxBodyBytes int64) *CallbackController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &CallbackController{callbackService: callbackService, maxBodyBytes: maxBodyBytes}
}

// Receive handles POST /api/v1/payments/mpesa/callback. Every delivery is
// stored, including malformed and oversized ones. A 200 acknowledgement is
// only sent once the delivery is recorded and handled.
func (h *CallbackController) Receive(w http.ResponseWriter, r *http.Request) {
	headers := flattenHeaders(r.Header)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			log.Warn().Err(err).Int("body_bytes", len(body)).Msg("callback body read interrupted")
		}
		headers[TruncatedHeader] = "true"
	}

	if _, err := h.callbackService.Handle(r.Context(), body, headers); err != nil {
		writeJSON(w, http.StatusInternalServerError, ackFailed)
		return
	}
	writeJSON(w, http.StatusOK, ackAccepted)
}

// flattenHeaders lowercases names and joins repeated values.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}
