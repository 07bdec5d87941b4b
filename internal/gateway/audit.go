package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wellbridge/careguard/internal/audit"
	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/httputil"
	"github.com/wellbridge/careguard/internal/types"
)

// ListViolations handles GET /v1/audit/violations. Only auditors may read the
// trail, and only for their own tenant. There are no routes to change it.
func (h *Handler) ListViolations(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	q := r.URL.Query()
	var from, to time.Time
	var err error
	if s := q.Get("from"); s != "" {
		if from, err = parseTime(s); err != nil {
			httputil.WriteBadRequestError(w, reqID, "from must be YYYY-MM-DD or RFC 3339")
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = parseTime(s); err != nil {
			httputil.WriteBadRequestError(w, reqID, "to must be YYYY-MM-DD or RFC 3339")
			return
		}
	}
	limit, err := queryLimit(r, audit.DefaultExportLimit, audit.MaxExportLimit)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	out, err := h.exporter.Export(r.Context(), tc, from, to, limit)
	if errors.Is(err, audit.ErrNotAuditor) {
		httputil.WriteForbiddenError(w, reqID, "Auditor role required")
		return
	}
	if err != nil {
		slog.Error("violation export failed", "request_id", reqID, "tenant_id", tc.TenantID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to export violations")
		return
	}
	if out == nil {
		out = []types.Violation{}
	}
	slog.Info("violations exported", "request_id", reqID, "tenant_id", tc.TenantID, "user_id", tc.UserID, "count", len(out))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"violations": out})
}
