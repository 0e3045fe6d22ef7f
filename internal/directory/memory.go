package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process directory used for local runs without a database
// and in tests. Records returned to callers are copies.
type MemoryStore struct {
	mu            sync.RWMutex
	tenants       map[string]Tenant       // tenantID -> Tenant
	organizations map[string]Organization // organizationID -> Organization
	users         map[string]User         // userID -> User
	roles         map[string]Role         // roleID -> Role
	overrides     map[overrideKey]string  // (userID, tenantID) -> roleID
}

type overrideKey struct {
	userID   string
	tenantID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       map[string]Tenant{},
		organizations: map[string]Organization{},
		users:         map[string]User{},
		roles:         map[string]Role{},
		overrides:     map[overrideKey]string{},
	}
}

// PutTenant inserts or replaces a tenant. Domains must stay unique among active tenants.
func (s *MemoryStore) PutTenant(t Tenant) error {
	t.ID = strings.TrimSpace(t.ID)
	t.Domain = normalizeDomain(t.Domain)
	if t.ID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if t.Status == "" {
		t.Status = TenantStatusActive
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Active() && t.Domain != "" {
		for id, other := range s.tenants {
			if id != t.ID && other.Active() && other.Domain == t.Domain {
				return fmt.Errorf("%w: domain %q already used by tenant %s", ErrConflict, t.Domain, id)
			}
		}
	}
	s.tenants[t.ID] = t
	return nil
}

// PutOrganization inserts or replaces an organization.
func (s *MemoryStore) PutOrganization(o Organization) error {
	if strings.TrimSpace(o.ID) == "" || strings.TrimSpace(o.TenantID) == "" {
		return fmt.Errorf("%w: organization id and tenant_id are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[o.ID] = o
	return nil
}

// PutRole inserts or replaces a role. Role names are unique.
func (s *MemoryStore) PutRole(r Role) error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: role id and name are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.roles {
		if id != r.ID && other.Name == r.Name {
			return fmt.Errorf("%w: role name %q already used by role %s", ErrConflict, r.Name, id)
		}
	}
	s.roles[r.ID] = r.clone()
	return nil
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// PutOverride sets the tenant-scoped role for a user, replacing any previous one.
func (s *MemoryStore) PutOverride(userID, tenantID, roleID string) error {
	if userID == "" || tenantID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id, tenant_id and role_id are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{userID: userID, tenantID: tenantID}] = roleID
	return nil
}

func (s *MemoryStore) GetTenantByDomain(_ context.Context, domain string) (Tenant, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return Tenant{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Active() && t.Domain == domain {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (s *MemoryStore) GetTenantByID(_ context.Context, id string) (Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) GetUserWithRole(_ context.Context, userID string) (UserWithRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return UserWithRole{}, ErrNotFound
	}
	return UserWithRole{User: u, Role: s.roleLocked(u.RoleID)}, nil
}

func (s *MemoryStore) GetTenantRoleOverride(_ context.Context, userID, tenantID string) (RoleOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roleID, ok := s.overrides[overrideKey{userID: userID, tenantID: tenantID}]
	if !ok {
		return RoleOverride{}, ErrNotFound
	}
	return RoleOverride{
		UserID:   userID,
		TenantID: tenantID,
		RoleID:   roleID,
		Role:     s.roleLocked(roleID),
	}, nil
}

func (s *MemoryStore) GetOrganizationByID(_ context.Context, id, tenantID string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.organizations[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	if tenantID != "" && o.TenantID != tenantID {
		return Organization{}, ErrNotFound
	}
	return o, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) roleLocked(roleID string) *Role {
	if roleID == "" {
		return nil
	}
	r, ok := s.roles[roleID]
	if !ok {
		return nil
	}
	r = r.clone()
	return &r
}
