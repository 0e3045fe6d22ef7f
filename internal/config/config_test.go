package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tenantry", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Empty(t, cfg.Tenancy.SystemMode)
	assert.Equal(t, []string{"www", "admin", "app", "api"}, cfg.Tenancy.ReservedSubdomains)
	assert.Equal(t, "X-Tenant-ID", cfg.Tenancy.TenantHeader)
	assert.Equal(t, "platform", cfg.Tenancy.PlatformDomain)
	assert.Equal(t, "Platform Admin", cfg.Tenancy.AdminRoleName)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Empty(t, cfg.HTTP.CORSOrigins)
}

func TestLoad_WithEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTRY_SYSTEM_MODE", "organization-only")
	t.Setenv("TENANTRY_TENANCY_BASE_DOMAIN", "example.com")
	t.Setenv("TENANTRY_TENANCY_RESERVED_SUBDOMAINS", "www, console")
	t.Setenv("TENANTRY_HTTP_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("TENANTRY_DATABASE_MAX_OPEN_CONNS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "organization-only", cfg.Tenancy.SystemMode)
	assert.Equal(t, []string{"www", "console"}, cfg.Tenancy.ReservedSubdomains)
	assert.Len(t, cfg.HTTP.CORSOrigins, 2)
	assert.Equal(t, 7, cfg.Database.Pool().MaxOpenConns)

	carriers := cfg.Tenancy.Carriers()
	assert.Equal(t, "example.com", carriers.BaseDomain)
	assert.Equal(t, "tenant_id", carriers.TenantParam)
}

func TestLoad_RejectsUnknownSystemMode(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTRY_SYSTEM_MODE", "single-tenant")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid system mode")
}

func TestLoadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantry.env")
	content := "APP_NAME=tenantry-test\nLOG_LEVEL=debug\nDIRECTORY_FIXTURE=/etc/tenantry/fixture.yaml\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, "tenantry-test", cfg.App.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/etc/tenantry/fixture.yaml", cfg.Directory.FixturePath)

	_, err = LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate_Production(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTRY_APP_ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth secret must be changed")

	t.Setenv("TENANTRY_AUTH_SECRET", "prod-secret")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database dsn is required")

	t.Setenv("TENANTRY_DATABASE_DSN", "postgres://tenantry@db/tenantry")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
