package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tenantry.org/internal/audit"
	"tenantry.org/internal/auth"
	"tenantry.org/internal/directory"
	"tenantry.org/internal/obs"
	"tenantry.org/internal/session"
	"tenantry.org/internal/tenancy"
)

const (
	serviceName = "tenantry-api"

	DefaultSessionCookie = "tenantry_session"
	defaultMaxBodyBytes  = 1 << 20
	defaultRatePerSec    = 50
	defaultRateBurst     = 100
)

// Pinger reports whether a backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks every configured backend. Nil members are skipped.
type ReadyProbe struct {
	Directory Pinger
	Sessions  Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Directory != nil {
		if err := rp.Directory.Ping(ctx); err != nil {
			return err
		}
	}
	if rp.Sessions != nil {
		return rp.Sessions.Ping(ctx)
	}
	return nil
}

// Deps are the collaborators the HTTP layer delegates to. Sessions is optional.
type Deps struct {
	Resolver  *tenancy.ContextResolver
	Evaluator *auth.Evaluator
	Tokens    *auth.TokenIssuer
	Sessions  *session.Store
	Audit     *audit.Logger
	Logger    *zap.Logger
	Ready     ReadyProbe
	Version   string
}

// Option configures the API.
type Option func(*API) error

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) error {
		if perSecond <= 0 || burst <= 0 {
			return errors.New("httpapi: rate limit must be positive")
		}
		a.ratePerSec = perSecond
		a.rateBurst = burst
		return nil
	}
}

// WithCORSOrigins lists the browser origins allowed to call the API.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) error {
		a.corsOrigins = append([]string(nil), origins...)
		return nil
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) error {
		if n <= 0 {
			return errors.New("httpapi: max body bytes must be positive")
		}
		a.maxBodyBytes = n
		return nil
	}
}

// WithSessionCookie names the cookie that carries the session id.
func WithSessionCookie(name string) Option {
	return func(a *API) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("httpapi: session cookie name must not be empty")
		}
		a.sessionCookie = name
		return nil
	}
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	resolver  *tenancy.ContextResolver
	evaluator *auth.Evaluator
	tokens    *auth.TokenIssuer
	sessions  *session.Store
	audit     *audit.Logger
	logger    *zap.Logger
	ready     ReadyProbe
	version   string

	ratePerSec    float64
	rateBurst     int
	maxBodyBytes  int64
	corsOrigins   []string
	sessionCookie string
}

func New(deps Deps, opts ...Option) (*API, error) {
	if deps.Resolver == nil || deps.Evaluator == nil || deps.Tokens == nil {
		return nil, errors.New("httpapi: resolver, evaluator and token issuer are required")
	}
	a := &API{
		mux:           http.NewServeMux(),
		resolver:      deps.Resolver,
		evaluator:     deps.Evaluator,
		tokens:        deps.Tokens,
		sessions:      deps.Sessions,
		audit:         deps.Audit,
		logger:        deps.Logger,
		ready:         deps.Ready,
		version:       deps.Version,
		ratePerSec:    defaultRatePerSec,
		rateBurst:     defaultRateBurst,
		maxBodyBytes:  defaultMaxBodyBytes,
		sessionCookie: DefaultSessionCookie,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.audit == nil {
		a.audit = audit.New(a.logger)
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// tenancy and authorization
	a.mux.HandleFunc("/v1/context", a.handleContext)
	a.mux.HandleFunc("/v1/me/permissions", a.handleMyPermissions)
	a.mux.HandleFunc("/v1/authorize", a.handleAuthorize)
	a.mux.HandleFunc("/v1/capabilities", a.handleCapabilities)
	a.mux.Handle("/v1/tenant", RequireTenant(a.RequirePermission(auth.PermSettingsRead)(http.HandlerFunc(a.handleTenant))))
	if a.sessions != nil {
		a.mux.HandleFunc("/v1/session", a.handleSession)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})

	return a, nil
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.tenantContext(h)
	h = a.authenticate(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins, a.resolver.Carriers().TenantHeader, a.resolver.Carriers().OrganizationHeader)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = Logging(h, a.logger)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// tenantRecords unpacks the records carried by either context variant.
func tenantRecords(tc tenancy.TenantContext) (directory.Tenant, directory.Organization) {
	switch c := tc.(type) {
	case tenancy.MultiTenantContext:
		return c.Tenant, c.Organization
	case tenancy.OrganizationOnlyContext:
		return c.Tenant, c.Organization
	}
	return directory.Tenant{}, directory.Organization{}
}
