package types

import "strings"

const (
	RolePatient = "patient"
	RoleAuditor = "auditor"
)

// TenantContext is the resolved identity scoping every data access for one request.
// It is built once per request by the auth package and passed by value.
type TenantContext struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role,omitempty"`
}

// Valid reports whether both identifiers are present.
func (tc TenantContext) Valid() bool {
	return strings.TrimSpace(tc.TenantID) != "" && strings.TrimSpace(tc.UserID) != ""
}

func (tc TenantContext) IsAuditor() bool {
	return tc.Role == RoleAuditor
}
