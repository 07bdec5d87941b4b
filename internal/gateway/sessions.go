package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/httputil"
	"github.com/wellbridge/careguard/internal/types"
)

type createSessionRequest struct {
	Title    string `json:"title"`
	Timezone string `json:"timezone"`
}

type createSessionResponse struct {
	types.Session
	Opener *types.Message `json:"opener,omitempty"`
}

// CreateSession handles POST /v1/sessions. A new session starts with a
// fixed greeting from the assistant; failing to store it does not fail
// the request.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New conversation"
	}

	session, err := h.sessions.CreateSession(r.Context(), tc, title)
	if err != nil {
		slog.Error("create session failed", "request_id", reqID, "tenant_id", tc.TenantID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to create session")
		return
	}

	resp := createSessionResponse{Session: session}
	returning := false
	if prior, err := h.sessions.ListSessions(r.Context(), tc, 2); err == nil {
		returning = len(prior) > 1
	}
	opener := openerMessage(session.ID, localTime(h.now(), req.Timezone), returning)
	if saved, err := h.sessions.SaveMessage(r.Context(), tc, opener); err != nil {
		slog.Warn("save session opener failed", "request_id", reqID, "session_id", session.ID, "error", err)
	} else {
		resp.Opener = &saved
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	limit, err := queryLimit(r, 20, 100)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	sessions, err := h.sessions.ListSessions(r.Context(), tc, limit)
	if err != nil {
		slog.Error("list sessions failed", "request_id", reqID, "tenant_id", tc.TenantID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ListMessages handles GET /v1/sessions/{id}/messages. A session owned by
// someone else is reported exactly like a missing one.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	sessionID := chi.URLParam(r, "id")
	limit, err := queryLimit(r, 50, 200)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	exists, err := h.sessions.SessionExists(r.Context(), tc, sessionID)
	if err != nil {
		slog.Error("session lookup failed", "request_id", reqID, "session_id", sessionID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to load session")
		return
	}
	if !exists {
		httputil.WriteNotFoundError(w, reqID, "Session not found")
		return
	}

	msgs, err := h.sessions.History(r.Context(), tc, sessionID, limit)
	if err != nil {
		slog.Error("history load failed", "request_id", reqID, "session_id", sessionID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
