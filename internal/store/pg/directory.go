package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tenantry.org/internal/directory"
)

const tenantColumns = `id, domain, name, coalesce(plan, ''), status, coalesce(mode, '')`

func (s *Store) GetTenantByDomain(ctx context.Context, domain string) (directory.Tenant, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return directory.Tenant{}, directory.ErrNotFound
	}
	if s.db == nil {
		return directory.Tenant{}, directory.Unavailable(directory.OpTenantByDomain, errors.New("database connection unavailable"))
	}
	row := s.db.QueryRowContext(ctx, `
		select `+tenantColumns+`
		from tenants
		where lower(domain) = $1 and status = 'active'
	`, domain)
	t, err := scanTenant(row)
	if err != nil {
		return directory.Tenant{}, classify(directory.OpTenantByDomain, err)
	}
	return t, nil
}

func (s *Store) GetTenantByID(ctx context.Context, id string) (directory.Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return directory.Tenant{}, directory.ErrNotFound
	}
	if s.db == nil {
		return directory.Tenant{}, directory.Unavailable(directory.OpTenantByID, errors.New("database connection unavailable"))
	}
	row := s.db.QueryRowContext(ctx, `
		select `+tenantColumns+`
		from tenants
		where id = $1
	`, id)
	t, err := scanTenant(row)
	if err != nil {
		return directory.Tenant{}, classify(directory.OpTenantByID, err)
	}
	return t, nil
}

func (s *Store) GetUserWithRole(ctx context.Context, userID string) (directory.UserWithRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return directory.UserWithRole{}, directory.ErrNotFound
	}
	if s.db == nil {
		return directory.UserWithRole{}, directory.Unavailable(directory.OpUserWithRole, errors.New("database connection unavailable"))
	}
	var (
		u        directory.User
		tenantID sql.NullString
		roleID   sql.NullString
		role     nullableRole
	)
	err := s.db.QueryRowContext(ctx, `
		select u.id, u.email, u.tenant_id, u.role_id, r.id, r.name, r.permissions
		from users u
		left join roles r on r.id = u.role_id
		where u.id = $1
	`, userID).Scan(&u.ID, &u.Email, &tenantID, &roleID, &role.id, &role.name, &role.permissions)
	if err != nil {
		return directory.UserWithRole{}, classify(directory.OpUserWithRole, err)
	}
	u.TenantID = tenantID.String
	u.RoleID = roleID.String
	r, err := role.decode()
	if err != nil {
		return directory.UserWithRole{}, directory.Unavailable(directory.OpUserWithRole, err)
	}
	return directory.UserWithRole{User: u, Role: r}, nil
}

func (s *Store) GetTenantRoleOverride(ctx context.Context, userID, tenantID string) (directory.RoleOverride, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return directory.RoleOverride{}, directory.ErrNotFound
	}
	if s.db == nil {
		return directory.RoleOverride{}, directory.Unavailable(directory.OpTenantOverride, errors.New("database connection unavailable"))
	}
	var (
		ov   directory.RoleOverride
		role nullableRole
	)
	err := s.db.QueryRowContext(ctx, `
		select o.user_id, o.tenant_id, o.role_id, r.id, r.name, r.permissions
		from user_tenant_roles o
		left join roles r on r.id = o.role_id
		where o.user_id = $1 and o.tenant_id = $2
	`, userID, tenantID).Scan(&ov.UserID, &ov.TenantID, &ov.RoleID, &role.id, &role.name, &role.permissions)
	if err != nil {
		return directory.RoleOverride{}, classify(directory.OpTenantOverride, err)
	}
	r, err := role.decode()
	if err != nil {
		return directory.RoleOverride{}, directory.Unavailable(directory.OpTenantOverride, err)
	}
	ov.Role = r
	return ov, nil
}

func (s *Store) GetOrganizationByID(ctx context.Context, id, tenantID string) (directory.Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return directory.Organization{}, directory.ErrNotFound
	}
	if s.db == nil {
		return directory.Organization{}, directory.Unavailable(directory.OpOrganizationByID, errors.New("database connection unavailable"))
	}
	var org directory.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name
		from organizations
		where id = $1 and ($2 = '' or tenant_id = $2)
	`, id, strings.TrimSpace(tenantID)).Scan(&org.ID, &org.TenantID, &org.Name)
	if err != nil {
		return directory.Organization{}, classify(directory.OpOrganizationByID, err)
	}
	return org, nil
}

func scanTenant(row *sql.Row) (directory.Tenant, error) {
	var t directory.Tenant
	if err := row.Scan(&t.ID, &t.Domain, &t.Name, &t.Plan, &t.Status, &t.Mode); err != nil {
		return directory.Tenant{}, err
	}
	return t, nil
}

// nullableRole holds the left-joined role columns.
type nullableRole struct {
	id          sql.NullString
	name        sql.NullString
	permissions []byte
}

func (r nullableRole) decode() (*directory.Role, error) {
	if !r.id.Valid {
		return nil, nil
	}
	role := &directory.Role{ID: r.id.String, Name: r.name.String, Permissions: []string{}}
	if len(r.permissions) > 0 {
		if err := json.Unmarshal(r.permissions, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions of role %s: %w", r.id.String, err)
		}
	}
	return role, nil
}
