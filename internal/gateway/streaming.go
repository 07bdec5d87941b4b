package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wellbridge/careguard/internal/httputil"
)

// streamFinal delivers an already finalized reply over SSE: one `message`
// event carrying the whole payload, then `done`. Partial content is never
// written because the guardrail only sees complete candidates.
func streamFinal(w http.ResponseWriter, reqID string, payload any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode stream payload", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	fmt.Fprintf(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}
