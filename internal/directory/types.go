package directory

import "strings"

// Tenant statuses. Tenants are never physically deleted on the resolution path.
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"
)

// Tenant is the top-level isolation boundary for a customer account.
type Tenant struct {
	ID     string `json:"id" yaml:"id"`
	Domain string `json:"domain" yaml:"domain"`
	Name   string `json:"name" yaml:"name"`
	Plan   string `json:"plan,omitempty" yaml:"plan"`
	Status string `json:"status" yaml:"status"`
	// Mode optionally overrides the system topology for this tenant. Empty means unset.
	Mode string `json:"mode,omitempty" yaml:"mode"`
}

// Active reports whether the tenant participates in domain resolution.
func (t Tenant) Active() bool {
	return t.Status == "" || t.Status == TenantStatusActive
}

// Organization is a workspace nested under a tenant.
type Organization struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Name     string `json:"name" yaml:"name"`
}

// User is an account acting on the platform. An empty TenantID marks a platform-level user.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Email    string `json:"email" yaml:"email"`
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id"`
	RoleID   string `json:"role_id,omitempty" yaml:"role_id"`
}

// Role groups capability strings under a unique name.
type Role struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

func (r Role) clone() Role {
	if r.Permissions != nil {
		r.Permissions = append([]string(nil), r.Permissions...)
	}
	return r
}

// UserWithRole is a user joined with its platform role. Role is nil when the user
// has no platform role or the referenced role row is missing.
type UserWithRole struct {
	User User
	Role *Role
}

// RoleOverride replaces a user's platform role inside a single tenant. Role is nil
// when the referenced role row is missing.
type RoleOverride struct {
	UserID   string
	TenantID string
	RoleID   string
	Role     *Role
}

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
