package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tenantry.org/internal/signal"
	"tenantry.org/internal/store/pg"
	"tenantry.org/internal/tenancy"
)

// EnvPrefix is prepended to every environment variable, e.g. TENANTRY_SYSTEM_MODE.
const EnvPrefix = "TENANTRY"

const defaultAuthSecret = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Tenancy   TenancyConfig
	Log       LogConfig
	Directory DirectoryConfig
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Version     string
	Commit      string
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	RateLimitRPS    float64
	RateLimitBurst  int
	CORSOrigins     []string
}

// GRPCConfig holds gRPC server settings. An empty Addr disables the server.
type GRPCConfig struct {
	Addr string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Pool returns the pool settings for the directory adapter.
func (d DatabaseConfig) Pool() pg.PoolConfig {
	return pg.PoolConfig{
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// RedisConfig holds Redis connection settings. An empty Addr disables cookie sessions.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds token and session settings
type AuthConfig struct {
	Secret        string
	Issuer        string
	TokenTTL      time.Duration
	SessionCookie string
	SessionTTL    time.Duration
}

// TenancyConfig holds the tenant resolution carriers and distinguished names
type TenancyConfig struct {
	SystemMode         string
	BaseDomain         string
	ReservedSubdomains []string
	TenantParam        string
	TenantHeader       string
	OrganizationHeader string
	PlatformDomain     string
	AdminRoleName      string
}

// Carriers returns the signal carriers described by the config.
func (t TenancyConfig) Carriers() signal.Carriers {
	return signal.Carriers{
		BaseDomain:         t.BaseDomain,
		ReservedSubdomains: t.ReservedSubdomains,
		TenantParam:        t.TenantParam,
		TenantHeader:       t.TenantHeader,
		OrganizationHeader: t.OrganizationHeader,
	}
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // json or console
}

// DirectoryConfig selects the in-memory directory when no database is configured.
type DirectoryConfig struct {
	FixturePath string
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	return build(v)
}

// LoadWithPath loads configuration from a specific env-format file
func LoadWithPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "tenantry")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("APP_COMMIT", "none")

	// HTTP defaults
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "15s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("HTTP_MAX_BODY_BYTES", 1<<20)
	v.SetDefault("HTTP_RATE_LIMIT_RPS", 50)
	v.SetDefault("HTTP_RATE_LIMIT_BURST", 100)
	v.SetDefault("HTTP_CORS_ORIGINS", "")

	// gRPC defaults
	v.SetDefault("GRPC_ADDR", ":9090")

	// Database defaults
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 25)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "15m")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "5m")

	// Redis defaults
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Auth defaults
	v.SetDefault("AUTH_SECRET", defaultAuthSecret)
	v.SetDefault("AUTH_ISSUER", "tenantry")
	v.SetDefault("AUTH_TOKEN_TTL", "1h")
	v.SetDefault("AUTH_SESSION_COOKIE", "tenantry_session")
	v.SetDefault("AUTH_SESSION_TTL", "24h")

	// Tenancy defaults
	v.SetDefault("SYSTEM_MODE", "")
	v.SetDefault("TENANCY_BASE_DOMAIN", "")
	v.SetDefault("TENANCY_RESERVED_SUBDOMAINS", strings.Join(signal.DefaultReservedSubdomains, ","))
	v.SetDefault("TENANCY_TENANT_PARAM", signal.DefaultTenantParam)
	v.SetDefault("TENANCY_TENANT_HEADER", signal.DefaultTenantHeader)
	v.SetDefault("TENANCY_ORGANIZATION_HEADER", signal.DefaultOrganizationHeader)
	v.SetDefault("TENANCY_PLATFORM_DOMAIN", tenancy.DefaultPlatformDomain)
	v.SetDefault("TENANCY_ADMIN_ROLE_NAME", "Platform Admin")

	// Log defaults
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	// Directory defaults
	v.SetDefault("DIRECTORY_FIXTURE", "")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.Commit = v.GetString("APP_COMMIT")

	// HTTP
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	cfg.HTTP.ReadTimeout = v.GetDuration("HTTP_READ_TIMEOUT")
	cfg.HTTP.WriteTimeout = v.GetDuration("HTTP_WRITE_TIMEOUT")
	cfg.HTTP.IdleTimeout = v.GetDuration("HTTP_IDLE_TIMEOUT")
	cfg.HTTP.ShutdownTimeout = v.GetDuration("HTTP_SHUTDOWN_TIMEOUT")
	cfg.HTTP.MaxBodyBytes = v.GetInt64("HTTP_MAX_BODY_BYTES")
	cfg.HTTP.RateLimitRPS = v.GetFloat64("HTTP_RATE_LIMIT_RPS")
	cfg.HTTP.RateLimitBurst = v.GetInt("HTTP_RATE_LIMIT_BURST")
	cfg.HTTP.CORSOrigins = splitList(v.GetString("HTTP_CORS_ORIGINS"))

	// gRPC
	cfg.GRPC.Addr = v.GetString("GRPC_ADDR")

	// Database
	cfg.Database.DSN = v.GetString("DATABASE_DSN")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Auth
	cfg.Auth.Secret = v.GetString("AUTH_SECRET")
	cfg.Auth.Issuer = v.GetString("AUTH_ISSUER")
	cfg.Auth.TokenTTL = v.GetDuration("AUTH_TOKEN_TTL")
	cfg.Auth.SessionCookie = v.GetString("AUTH_SESSION_COOKIE")
	cfg.Auth.SessionTTL = v.GetDuration("AUTH_SESSION_TTL")

	// Tenancy
	cfg.Tenancy.SystemMode = strings.TrimSpace(v.GetString("SYSTEM_MODE"))
	cfg.Tenancy.BaseDomain = v.GetString("TENANCY_BASE_DOMAIN")
	cfg.Tenancy.ReservedSubdomains = splitList(v.GetString("TENANCY_RESERVED_SUBDOMAINS"))
	cfg.Tenancy.TenantParam = v.GetString("TENANCY_TENANT_PARAM")
	cfg.Tenancy.TenantHeader = v.GetString("TENANCY_TENANT_HEADER")
	cfg.Tenancy.OrganizationHeader = v.GetString("TENANCY_ORGANIZATION_HEADER")
	cfg.Tenancy.PlatformDomain = v.GetString("TENANCY_PLATFORM_DOMAIN")
	cfg.Tenancy.AdminRoleName = v.GetString("TENANCY_ADMIN_ROLE_NAME")

	// Log
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Format = v.GetString("LOG_FORMAT")

	// Directory
	cfg.Directory.FixturePath = v.GetString("DIRECTORY_FIXTURE")

	return nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http addr is required")
	}

	if c.Tenancy.SystemMode != "" {
		if _, ok := tenancy.ParseMode(c.Tenancy.SystemMode); !ok {
			return fmt.Errorf("invalid system mode %q: want %q or %q",
				c.Tenancy.SystemMode, tenancy.ModeMultiTenant, tenancy.ModeOrganizationOnly)
		}
	}

	if strings.TrimSpace(c.Tenancy.PlatformDomain) == "" {
		return fmt.Errorf("platform domain is required")
	}

	if strings.TrimSpace(c.Tenancy.AdminRoleName) == "" {
		return fmt.Errorf("admin role name is required")
	}

	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}

	if c.IsProduction() {
		if c.Auth.Secret == defaultAuthSecret {
			return fmt.Errorf("auth secret must be changed in production")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
