package directory

import "context"

// Lookup operation names, used in LookupError and failure metrics.
const (
	OpTenantByDomain   = "tenant_by_domain"
	OpTenantByID       = "tenant_by_id"
	OpUserWithRole     = "user_with_role"
	OpTenantOverride   = "tenant_role_override"
	OpOrganizationByID = "organization_by_id"
)

// Store is the read-only directory contract consumed by tenant resolution and
// permission evaluation. Misses return ErrNotFound; backend failures return an
// error matching ErrBackendUnavailable.
type Store interface {
	GetTenantByDomain(ctx context.Context, domain string) (Tenant, error)
	GetTenantByID(ctx context.Context, id string) (Tenant, error)
	GetUserWithRole(ctx context.Context, userID string) (UserWithRole, error)
	GetTenantRoleOverride(ctx context.Context, userID, tenantID string) (RoleOverride, error)
	// GetOrganizationByID constrains the match to tenantID when it is non-empty.
	GetOrganizationByID(ctx context.Context, id, tenantID string) (Organization, error)
}

// Pinger is implemented by stores that can report backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
