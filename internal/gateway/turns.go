package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/engine"
	"github.com/wellbridge/careguard/internal/httputil"
	"github.com/wellbridge/careguard/internal/store"
	"github.com/wellbridge/careguard/internal/types"
)

type turnRequest struct {
	Message string `json:"message"`
}

type turnResponse struct {
	Message types.Message `json:"message"`
	Sources []string      `json:"sources,omitempty"`
}

// CreateTurn handles POST /v1/sessions/{id}/turns. The reply is fully
// assembled and scanned before any byte is written, for JSON and SSE alike.
func (h *Handler) CreateTurn(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req turnRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	res, err := h.turns.Turn(r.Context(), engine.TurnRequest{
		Tenant:    tc,
		SessionID: chi.URLParam(r, "id"),
		Text:      req.Message,
	})
	if err != nil {
		writeTurnError(w, reqID, err)
		return
	}

	resp := turnResponse{Message: res.Message, Sources: res.Sources}
	if wantsEventStream(r) {
		streamFinal(w, reqID, resp)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func writeTurnError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, engine.ErrEmptyText):
		httputil.WriteBadRequestError(w, reqID, "message is required")
	case errors.Is(err, engine.ErrTextTooLong):
		httputil.WriteBadRequestError(w, reqID, "message is too long")
	case errors.Is(err, engine.ErrInvalidSession), errors.Is(err, store.ErrSessionNotFound):
		httputil.WriteNotFoundError(w, reqID, "Session not found")
	case errors.Is(err, engine.ErrInvalidTenant), errors.Is(err, store.ErrNoScope):
		httputil.WriteForbiddenError(w, reqID, "No tenant context")
	case errors.Is(err, context.Canceled):
		slog.Info("turn abandoned by caller", "request_id", reqID)
	default:
		slog.Error("turn failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to process message")
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
