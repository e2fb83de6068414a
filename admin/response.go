package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/jwt"
	"github.com/MrEthical07/goSentinel/ledger"
	"github.com/MrEthical07/goSentinel/session"
	"github.com/MrEthical07/goSentinel/threat"
)

// Response is the envelope of every admin reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func successResponse(data any, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	r := Response{Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func (h *handler) respondWithJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *handler) respondWithError(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("admin request failed", zap.Error(err), zap.Int("status", status), zap.String("message", message))
	} else {
		h.logger.Debug("admin request refused", zap.Error(err), zap.Int("status", status), zap.String("message", message))
	}
	h.respondWithJSON(w, status, errorResponse(err, message))
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, goSentinel.ErrInvalidIP),
		errors.Is(err, goSentinel.ErrMissingReason),
		errors.Is(err, goSentinel.ErrInvalidUser),
		errors.Is(err, goSentinel.ErrInvalidEvent),
		errors.Is(err, goSentinel.ErrInvalidTriage),
		errors.Is(err, goSentinel.ErrInvalidRequest),
		errors.Is(err, threat.ErrInvalidPolicy):
		return http.StatusBadRequest
	case errors.Is(err, goSentinel.ErrEventNotFound),
		errors.Is(err, ledger.ErrAnchorNotFound),
		errors.Is(err, threat.ErrNotBlocked),
		errors.Is(err, session.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, goSentinel.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, goSentinel.ErrTokenExpired),
		errors.Is(err, goSentinel.ErrInvalidToken),
		errors.Is(err, jwt.ErrTokenInvalid),
		errors.Is(err, goSentinel.ErrSessionInvalid),
		errors.Is(err, goSentinel.ErrNoActiveSession):
		return http.StatusUnauthorized
	case errors.Is(err, goSentinel.ErrLedgerUnavailable),
		errors.Is(err, goSentinel.ErrBlockStoreUnavailable),
		errors.Is(err, audit.ErrAuditStoreUnavailable),
		errors.Is(err, audit.ErrPipelineClosed),
		errors.Is(err, goSentinel.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
