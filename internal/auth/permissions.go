package auth

import (
	"encoding/json"
	"sort"
	"strings"
)

// Capabilities known to the platform. The platform admin holds all of them.
const (
	PermCRMContactsRead  = "crm.contacts.read"
	PermCRMContactsWrite = "crm.contacts.write"
	PermCRMDealsRead     = "crm.deals.read"
	PermCRMDealsWrite    = "crm.deals.write"

	PermBillingInvoicesRead        = "billing.invoices.read"
	PermBillingInvoicesWrite       = "billing.invoices.write"
	PermBillingSubscriptionsManage = "billing.subscriptions.manage"

	PermBookingsRead   = "bookings.read"
	PermBookingsWrite  = "bookings.write"
	PermBookingsCancel = "bookings.cancel"

	PermReviewsRead     = "reviews.read"
	PermReviewsModerate = "reviews.moderate"

	PermPortalRead   = "portal.read"
	PermPortalManage = "portal.manage"

	PermTenantsRead         = "tenants.read"
	PermTenantsManage       = "tenants.manage"
	PermOrganizationsManage = "organizations.manage"

	PermUsersRead   = "users.read"
	PermUsersManage = "users.manage"
	PermRolesManage = "roles.manage"

	PermSettingsRead   = "settings.read"
	PermSettingsManage = "settings.manage"
)

// Capability describes one entry of the catalog.
type Capability struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Catalog is the full capability superset.
var Catalog = []Capability{
	{Key: PermCRMContactsRead, Description: "Read CRM contacts"},
	{Key: PermCRMContactsWrite, Description: "Create and edit CRM contacts"},
	{Key: PermCRMDealsRead, Description: "Read CRM deals"},
	{Key: PermCRMDealsWrite, Description: "Create and edit CRM deals"},
	{Key: PermBillingInvoicesRead, Description: "Read invoices"},
	{Key: PermBillingInvoicesWrite, Description: "Issue and edit invoices"},
	{Key: PermBillingSubscriptionsManage, Description: "Change plans and subscriptions"},
	{Key: PermBookingsRead, Description: "Read bookings"},
	{Key: PermBookingsWrite, Description: "Create and edit bookings"},
	{Key: PermBookingsCancel, Description: "Cancel bookings"},
	{Key: PermReviewsRead, Description: "Read reviews"},
	{Key: PermReviewsModerate, Description: "Approve, hide and reply to reviews"},
	{Key: PermPortalRead, Description: "View the consumer portal configuration"},
	{Key: PermPortalManage, Description: "Configure the consumer portal"},
	{Key: PermTenantsRead, Description: "List tenants"},
	{Key: PermTenantsManage, Description: "Create, suspend and delete tenants"},
	{Key: PermOrganizationsManage, Description: "Create and edit organizations"},
	{Key: PermUsersRead, Description: "List users"},
	{Key: PermUsersManage, Description: "Invite, edit and remove users"},
	{Key: PermRolesManage, Description: "Edit roles and tenant role overrides"},
	{Key: PermSettingsRead, Description: "Read settings"},
	{Key: PermSettingsManage, Description: "Change settings"},
}

// AllPermissions returns the keys of every catalog entry.
func AllPermissions() []string {
	out := make([]string, 0, len(Catalog))
	for _, c := range Catalog {
		out = append(out, c.Key)
	}
	return out
}

// DefaultAdminRoleName is the role name that carries unconditional authority.
const DefaultAdminRoleName = "Platform Admin"

// BuiltinRole is seed data for a fresh install. The evaluator never consults it.
type BuiltinRole struct {
	ID          string
	Name        string
	Permissions []string
}

// BuiltinRoles are seeded by migrations and fixtures.
var BuiltinRoles = []BuiltinRole{
	{
		ID:          "role-platform-admin",
		Name:        DefaultAdminRoleName,
		Permissions: AllPermissions(),
	},
	{
		ID:   "role-tenant-admin",
		Name: "Tenant Admin",
		Permissions: []string{
			PermCRMContactsRead, PermCRMContactsWrite, PermCRMDealsRead, PermCRMDealsWrite,
			PermBillingInvoicesRead, PermBillingInvoicesWrite, PermBillingSubscriptionsManage,
			PermBookingsRead, PermBookingsWrite, PermBookingsCancel,
			PermReviewsRead, PermReviewsModerate,
			PermPortalRead, PermPortalManage,
			PermOrganizationsManage, PermUsersRead, PermUsersManage, PermRolesManage,
			PermSettingsRead, PermSettingsManage,
		},
	},
	{
		ID:   "role-agent",
		Name: "Agent",
		Permissions: []string{
			PermCRMContactsRead, PermCRMContactsWrite, PermCRMDealsRead, PermCRMDealsWrite,
			PermBookingsRead, PermBookingsWrite, PermBookingsCancel,
			PermReviewsRead, PermReviewsModerate,
			PermPortalRead,
		},
	},
	{
		ID:   "role-viewer",
		Name: "Viewer",
		Permissions: []string{
			PermCRMContactsRead, PermCRMDealsRead, PermBillingInvoicesRead,
			PermBookingsRead, PermReviewsRead, PermPortalRead, PermSettingsRead,
		},
	},
}

// PermissionSet is an immutable set of capability strings.
type PermissionSet map[string]struct{}

// NewPermissionSet trims and deduplicates perms. Blank entries are dropped.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

// Has reports set membership.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Slice returns the members in sorted order.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}
