package tenancy

import (
	"context"
	"encoding/json"

	"tenantry.org/internal/directory"
)

// Scope is the isolation level a request operates at.
type Scope string

const (
	ScopeTenant       Scope = "tenant"
	ScopeOrganization Scope = "organization"
)

// TenantContext is the resolved scope of a request. It has exactly two
// implementations, MultiTenantContext and OrganizationOnlyContext, and is
// immutable once built.
type TenantContext interface {
	Mode() Mode
	// TenantID is empty when no tenant applies.
	TenantID() string
	// OrganizationID is empty when no organization applies.
	OrganizationID() string
	Scope() Scope
	isTenantContext()
}

// MultiTenantContext scopes a request to a tenant, optionally narrowed to one of
// its organizations.
type MultiTenantContext struct {
	Tenant       directory.Tenant
	Organization directory.Organization
}

func (MultiTenantContext) Mode() Mode               { return ModeMultiTenant }
func (c MultiTenantContext) TenantID() string       { return c.Tenant.ID }
func (c MultiTenantContext) OrganizationID() string { return c.Organization.ID }
func (MultiTenantContext) isTenantContext()         {}

// Scope is tenant when a tenant resolved, organization otherwise.
func (c MultiTenantContext) Scope() Scope {
	if c.Tenant.ID != "" {
		return ScopeTenant
	}
	return ScopeOrganization
}

func (c MultiTenantContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(View(c))
}

// OrganizationOnlyContext scopes a request to organizations under a single
// effective tenant. Platform is set when that tenant is the platform fallback.
type OrganizationOnlyContext struct {
	Tenant       directory.Tenant
	Organization directory.Organization
	Platform     bool
}

func (OrganizationOnlyContext) Mode() Mode               { return ModeOrganizationOnly }
func (c OrganizationOnlyContext) TenantID() string       { return c.Tenant.ID }
func (c OrganizationOnlyContext) OrganizationID() string { return c.Organization.ID }
func (OrganizationOnlyContext) Scope() Scope             { return ScopeOrganization }
func (OrganizationOnlyContext) isTenantContext()         {}

func (c OrganizationOnlyContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(View(c))
}

// ContextView is the wire form of a TenantContext. Absent ids are null.
type ContextView struct {
	Mode           Mode    `json:"mode"`
	Scope          Scope   `json:"scope"`
	TenantID       *string `json:"tenant_id"`
	OrganizationID *string `json:"organization_id"`
	Platform       bool    `json:"platform,omitempty"`
}

// View converts a TenantContext to its wire form.
func View(tc TenantContext) ContextView {
	v := ContextView{
		Mode:           tc.Mode(),
		Scope:          tc.Scope(),
		TenantID:       nullable(tc.TenantID()),
		OrganizationID: nullable(tc.OrganizationID()),
	}
	if oc, ok := tc.(OrganizationOnlyContext); ok {
		v.Platform = oc.Platform
	}
	return v
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type tenantContextKey struct{}

// ContextWith attaches the resolved TenantContext to ctx.
func ContextWith(ctx context.Context, tc TenantContext) context.Context {
	if tc == nil {
		return ctx
	}
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext returns the TenantContext attached by ContextWith.
func FromContext(ctx context.Context) (TenantContext, bool) {
	if ctx == nil {
		return nil, false
	}
	tc, ok := ctx.Value(tenantContextKey{}).(TenantContext)
	return tc, ok && tc != nil
}
