package audit

import (
	"context"
	"errors"
	"time"

	"github.com/wellbridge/careguard/internal/types"
)

// ErrNotAuditor is returned when a non-auditor requests an export.
var ErrNotAuditor = errors.New("audit: auditor role required")

const (
	DefaultExportLimit = 100
	MaxExportLimit     = 1000
	DefaultWindow      = 30 * 24 * time.Hour
)

// ViolationReader lists violations within the caller's tenant.
type ViolationReader interface {
	ListViolations(ctx context.Context, tc types.TenantContext, from, to time.Time, limit int) ([]types.Violation, error)
}

type Exporter struct {
	reader ViolationReader
	now    func() time.Time
}

func NewExporter(reader ViolationReader) *Exporter {
	return &Exporter{reader: reader, now: time.Now}
}

// Export returns the tenant's violations in [from, to), newest first.
// A zero to means now; a zero from means DefaultWindow before to.
func (e *Exporter) Export(ctx context.Context, tc types.TenantContext, from, to time.Time, limit int) ([]types.Violation, error) {
	if !tc.IsAuditor() {
		return nil, ErrNotAuditor
	}
	if to.IsZero() {
		to = e.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}
	if !from.Before(to) {
		return nil, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultExportLimit
	case limit > MaxExportLimit:
		limit = MaxExportLimit
	}

	out, err := e.reader.ListViolations(ctx, tc, from, to, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.Violation{}
	}
	return out, nil
}
