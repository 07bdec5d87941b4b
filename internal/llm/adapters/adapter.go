package adapters

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wellbridge/careguard/internal/types"
)

// ProviderAdapter converts between the provider-neutral completion types and
// one provider's HTTP API. Responses are always read in full.
type ProviderAdapter interface {
	Name() string
	BuildRequest(ctx context.Context, req *types.CompletionRequest) (*http.Request, error)
	ParseResponse(resp *http.Response) (*types.Completion, error)
	// SendRequest sends an HTTP request using the provider's configured client.
	SendRequest(req *http.Request) (*http.Response, error)
}

// StatusError is returned by ParseResponse for non-200 provider replies.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the failure is worth one more attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
