package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"tenantry.org/internal/audit"
	"tenantry.org/internal/auth"
	"tenantry.org/internal/config"
	"tenantry.org/internal/directory"
	"tenantry.org/internal/grpcapi"
	"tenantry.org/internal/httpapi"
	"tenantry.org/internal/obs"
	"tenantry.org/internal/session"
	"tenantry.org/internal/store/pg"
	"tenantry.org/internal/tenancy"
)

const healthInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.App.Name)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(cfg.App.Version, cfg.App.Commit)

	store, closeStore, err := openDirectory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	resolver, err := tenancy.NewContextResolver(store,
		tenancy.WithSystemMode(cfg.Tenancy.SystemMode),
		tenancy.WithCarriers(cfg.Tenancy.Carriers()),
		tenancy.WithPlatformDomain(cfg.Tenancy.PlatformDomain),
		tenancy.WithLogger(logger.Named("tenancy")),
		tenancy.WithTracer(otel.Tracer("tenantry/tenancy")),
	)
	if err != nil {
		return fmt.Errorf("context resolver: %w", err)
	}
	evaluator, err := auth.NewEvaluator(store,
		auth.WithAdminRoleName(cfg.Tenancy.AdminRoleName),
		auth.WithLogger(logger.Named("auth")),
		auth.WithTracer(otel.Tracer("tenantry/auth")),
	)
	if err != nil {
		return fmt.Errorf("evaluator: %w", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	auditLog := audit.New(logger)

	ready := httpapi.ReadyProbe{}
	if p, ok := store.(directory.Pinger); ok {
		ready.Directory = p
	}

	var sessions *session.Store
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout+time.Second)
		client, err := session.Dial(ctx, session.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		sessions = session.NewStore(client, cfg.Auth.SessionTTL)
		ready.Sessions = sessions
		logger.Info("cookie sessions enabled", zap.String("redis", cfg.Redis.Addr))
	}

	opts := []httpapi.Option{
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins...),
		httpapi.WithSessionCookie(cfg.Auth.SessionCookie),
	}
	if cfg.HTTP.RateLimitRPS > 0 && cfg.HTTP.RateLimitBurst > 0 {
		opts = append(opts, httpapi.WithRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst))
	}
	if cfg.HTTP.MaxBodyBytes > 0 {
		opts = append(opts, httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes))
	}
	api, err := httpapi.New(httpapi.Deps{
		Resolver:  resolver,
		Evaluator: evaluator,
		Tokens:    tokens,
		Sessions:  sessions,
		Audit:     auditLog,
		Logger:    logger.Named("http"),
		Ready:     ready,
		Version:   cfg.App.Version,
	}, opts...)
	if err != nil {
		return fmt.Errorf("http api: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		ic, err := grpcapi.NewInterceptors(resolver, evaluator, tokens,
			grpcapi.WithLogger(logger.Named("grpc")),
			grpcapi.WithAudit(auditLog),
		)
		if err != nil {
			return fmt.Errorf("grpc interceptors: %w", err)
		}
		health := grpcapi.NewHealth(ready, logger.Named("grpc"))
		grpcServer = grpcapi.NewServer(ic, health)

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go health.Run(ctx, healthInterval)
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("starting tenantry-api",
			zap.String("version", cfg.App.Version),
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.App.Environment),
			zap.String("system_mode", cfg.Tenancy.SystemMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	// graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// openDirectory selects the directory backend: Postgres when a DSN is set,
// otherwise a YAML fixture, otherwise an in-memory directory holding only the
// builtin roles and the platform tenant.
func openDirectory(cfg *config.Config, logger *zap.Logger) (directory.Store, func(), error) {
	switch {
	case cfg.Database.DSN != "":
		st, err := pg.Open(cfg.Database.DSN, cfg.Database.Pool())
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		logger.Info("directory: postgres")
		return st, func() { _ = st.Close() }, nil
	case cfg.Directory.FixturePath != "":
		st, err := directory.LoadFixtureFile(cfg.Directory.FixturePath)
		if err != nil {
			return nil, nil, fmt.Errorf("load fixture: %w", err)
		}
		logger.Info("directory: fixture", zap.String("path", cfg.Directory.FixturePath))
		return st, func() {}, nil
	default:
		st := directory.NewMemoryStore()
		for _, r := range auth.BuiltinRoles {
			if err := st.PutRole(directory.Role{ID: r.ID, Name: r.Name, Permissions: r.Permissions}); err != nil {
				return nil, nil, err
			}
		}
		if err := st.PutTenant(directory.Tenant{
			ID:     "tenant-platform",
			Domain: cfg.Tenancy.PlatformDomain,
			Name:   "Platform",
			Mode:   string(tenancy.ModeOrganizationOnly),
		}); err != nil {
			return nil, nil, err
		}
		logger.Warn("directory: empty in-memory store, set TENANTRY_DATABASE_DSN or TENANTRY_DIRECTORY_FIXTURE")
		return st, func() {}, nil
	}
}
