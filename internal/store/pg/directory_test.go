package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantry.org/internal/directory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

var tenantCols = []string{"id", "domain", "name", "plan", "status", "mode"}

func TestGetTenantByDomain(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`from tenants\s+where lower\(domain\) = \$1 and status = 'active'`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(tenantCols).AddRow("t-1", "acme", "Acme", "pro", "active", ""))

	tenant, err := s.GetTenantByDomain(context.Background(), " ACME. ")
	if err != nil {
		t.Fatalf("GetTenantByDomain: %v", err)
	}
	if tenant.ID != "t-1" || tenant.Plan != "pro" || tenant.Mode != "" {
		t.Fatalf("unexpected tenant: %+v", tenant)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTenantByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`from tenants\s+where id = \$1`).WithArgs("t-missing").WillReturnError(sql.ErrNoRows)

	_, err := s.GetTenantByID(context.Background(), "t-missing")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Blank keys never reach the database.
	if _, err := s.GetTenantByID(context.Background(), " "); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank id, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupErrorsAreClassified(t *testing.T) {
	s, mock := newMockStore(t)
	driverErr := errors.New("conn reset by peer")
	mock.ExpectQuery(`from tenants`).WithArgs("t-1").WillReturnError(driverErr)
	mock.ExpectQuery(`from tenants`).WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: pgErrInvalidTextRepresentation, Message: "invalid input syntax"})

	_, err := s.GetTenantByID(context.Background(), "t-1")
	if !errors.Is(err, directory.ErrBackendUnavailable) || !errors.Is(err, driverErr) {
		t.Fatalf("expected backend unavailable wrapping driver error, got %v", err)
	}
	var lookupErr *directory.LookupError
	if !errors.As(err, &lookupErr) || lookupErr.Op != directory.OpTenantByID {
		t.Fatalf("expected LookupError for %s, got %v", directory.OpTenantByID, err)
	}

	_, err = s.GetTenantByID(context.Background(), "not-a-uuid")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("malformed key must be a miss, got %v", err)
	}
}

func TestGetUserWithRole(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "email", "tenant_id", "role_id", "r_id", "r_name", "r_permissions"}
	mock.ExpectQuery(`from users u\s+left join roles r on r.id = u.role_id`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "u1@example.com", "t-1", "r-1", "r-1", "Agent", []byte(`["crm.contacts.read","bookings.read"]`)))
	mock.ExpectQuery(`from users u`).
		WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-2", "u2@example.com", nil, nil, nil, nil, nil))

	uw, err := s.GetUserWithRole(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetUserWithRole: %v", err)
	}
	if uw.User.TenantID != "t-1" || uw.Role == nil || uw.Role.Name != "Agent" || len(uw.Role.Permissions) != 2 {
		t.Fatalf("unexpected result: %+v role=%+v", uw.User, uw.Role)
	}

	uw, err = s.GetUserWithRole(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("GetUserWithRole platform user: %v", err)
	}
	if uw.User.TenantID != "" || uw.User.RoleID != "" || uw.Role != nil {
		t.Fatalf("expected platform user without role, got %+v role=%+v", uw.User, uw.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserWithRoleCorruptPermissions(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`from users u`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "tenant_id", "role_id", "r_id", "r_name", "r_permissions"}).
			AddRow("u-1", "u1@example.com", "t-1", "r-1", "r-1", "Agent", []byte(`{not json`)))

	_, err := s.GetUserWithRole(context.Background(), "u-1")
	if !errors.Is(err, directory.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestGetTenantRoleOverride(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"user_id", "tenant_id", "role_id", "r_id", "r_name", "r_permissions"}
	mock.ExpectQuery(`from user_tenant_roles o\s+left join roles r`).
		WithArgs("u-1", "t-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "t-1", "r-2", "r-2", "Viewer", []byte(`["reviews.read"]`)))
	mock.ExpectQuery(`from user_tenant_roles o`).
		WithArgs("u-1", "t-2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "t-2", "r-gone", nil, nil, nil))
	mock.ExpectQuery(`from user_tenant_roles o`).
		WithArgs("u-1", "t-3").
		WillReturnError(sql.ErrNoRows)

	ov, err := s.GetTenantRoleOverride(context.Background(), "u-1", "t-1")
	if err != nil {
		t.Fatalf("GetTenantRoleOverride: %v", err)
	}
	if ov.Role == nil || ov.Role.Name != "Viewer" {
		t.Fatalf("unexpected override: %+v", ov)
	}

	ov, err = s.GetTenantRoleOverride(context.Background(), "u-1", "t-2")
	if err != nil {
		t.Fatalf("GetTenantRoleOverride dangling: %v", err)
	}
	if ov.RoleID != "r-gone" || ov.Role != nil {
		t.Fatalf("expected dangling override, got %+v", ov)
	}

	if _, err := s.GetTenantRoleOverride(context.Background(), "u-1", "t-3"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrganizationByID(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`from organizations\s+where id = \$1 and \(\$2 = '' or tenant_id = \$2\)`).
		WithArgs("o-1", "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}).AddRow("o-1", "t-1", "Sales"))
	mock.ExpectQuery(`from organizations`).
		WithArgs("o-1", "t-9").
		WillReturnError(sql.ErrNoRows)

	org, err := s.GetOrganizationByID(context.Background(), "o-1", "t-1")
	if err != nil {
		t.Fatalf("GetOrganizationByID: %v", err)
	}
	if org.Name != "Sales" {
		t.Fatalf("unexpected org: %+v", org)
	}
	if _, err := s.GetOrganizationByID(context.Background(), "o-1", "t-9"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	if err := New(db).Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := (&Store{}).Ping(context.Background()); err == nil {
		t.Fatal("expected error without connection")
	}
}
