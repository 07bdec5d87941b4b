package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/httputil"
	"github.com/wellbridge/careguard/internal/types"
)

type createRecordRequest struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	RecordType   string `json:"record_type"`
	ProviderName string `json:"provider_name"`
	RecordDate   string `json:"record_date"`
}

var recordTypes = map[string]bool{
	"visit_note":     true,
	"lab_result":     true,
	"imaging":        true,
	"prescription":   true,
	"discharge":      true,
	"referral":       true,
	"correspondence": true,
	"other":          true,
}

// CreateRecord handles POST /v1/records. The record is embedded for semantic
// search when an embedder is configured; if embedding fails it is still
// stored and stays reachable through full-text search.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req createRecordRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}
	rec, err := req.record()
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	var embedding []float32
	if h.embedder != nil {
		embedding, err = h.embedder.Embed(r.Context(), rec.Title+"\n\n"+rec.Content)
		if err != nil {
			slog.Warn("record embedding failed, storing for full-text search only",
				"request_id", reqID, "tenant_id", tc.TenantID, "error", err)
			embedding = nil
		}
	}

	saved, err := h.records.InsertRecord(r.Context(), tc, rec, embedding)
	if err != nil {
		slog.Error("insert record failed", "request_id", reqID, "tenant_id", tc.TenantID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to store record")
		return
	}
	slog.Info("record stored",
		"request_id", reqID,
		"tenant_id", tc.TenantID,
		"record_id", saved.ID,
		"record_type", saved.RecordType,
		"embedded", embedding != nil,
	)
	httputil.WriteJSON(w, http.StatusCreated, saved)
}

type requestError string

func (e requestError) Error() string { return string(e) }

func (req createRecordRequest) record() (types.Record, error) {
	rec := types.Record{
		Title:        strings.TrimSpace(req.Title),
		Content:      strings.TrimSpace(req.Content),
		RecordType:   strings.TrimSpace(req.RecordType),
		ProviderName: strings.TrimSpace(req.ProviderName),
	}
	if rec.Content == "" {
		return rec, requestError("content is required")
	}
	if rec.Title == "" {
		rec.Title = "Untitled record"
	}
	if rec.RecordType == "" {
		rec.RecordType = "other"
	}
	if !recordTypes[rec.RecordType] {
		return rec, requestError("unknown record_type " + rec.RecordType)
	}
	if req.RecordDate != "" {
		d, err := parseTime(req.RecordDate)
		if err != nil {
			return rec, requestError("record_date must be YYYY-MM-DD or RFC 3339")
		}
		rec.RecordDate = d
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
