package tenancy

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tenantry.org/internal/directory"
	"tenantry.org/internal/obs"
	"tenantry.org/internal/signal"
)

// DefaultPlatformDomain is the reserved domain of the platform tenant.
const DefaultPlatformDomain = "platform"

// ContextResolver builds the TenantContext for a request. It holds no
// per-request state and is safe for concurrent use.
type ContextResolver struct {
	store          directory.Store
	carriers       signal.Carriers
	systemMode     string
	platformDomain string
	logger         *zap.Logger
	tracer         trace.Tracer

	tenants *Resolver
	modes   *ModeSelector
	orgs    *OrganizationResolver
}

// Option configures a ContextResolver.
type Option func(*ContextResolver) error

// WithSystemMode injects the process-wide topology. Empty leaves it unset.
func WithSystemMode(mode string) Option {
	return func(c *ContextResolver) error {
		mode = strings.TrimSpace(mode)
		if mode == "" {
			c.systemMode = ""
			return nil
		}
		if _, ok := ParseMode(mode); !ok {
			return errors.New("tenancy: unknown system mode " + strconv.Quote(mode))
		}
		c.systemMode = mode
		return nil
	}
}

// WithCarriers sets where tenant and organization signals are read from.
func WithCarriers(carriers signal.Carriers) Option {
	return func(c *ContextResolver) error {
		c.carriers = carriers
		return nil
	}
}

// WithPlatformDomain overrides the reserved domain of the platform tenant.
func WithPlatformDomain(domain string) Option {
	return func(c *ContextResolver) error {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			return errors.New("tenancy: platform domain must not be empty")
		}
		c.platformDomain = domain
		return nil
	}
}

// WithLogger sets the logger used for degraded lookups.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ContextResolver) error {
		if logger == nil {
			return errors.New("tenancy: logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *ContextResolver) error {
		if tracer == nil {
			return errors.New("tenancy: tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// NewContextResolver wires tenant resolution, mode selection and organization
// lookup over store.
func NewContextResolver(store directory.Store, opts ...Option) (*ContextResolver, error) {
	if store == nil {
		return nil, errors.New("tenancy: store is required")
	}
	c := &ContextResolver{
		store:          store,
		carriers:       signal.DefaultCarriers(),
		platformDomain: DefaultPlatformDomain,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer("tenantry.org/internal/tenancy"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	extract := signal.New(c.carriers)
	c.tenants = NewResolver(store, extract, c.logger)
	c.modes = NewModeSelector(store, c.systemMode, c.logger)
	c.orgs = NewOrganizationResolver(store, extract, c.logger)
	return c, nil
}

// Carriers returns the signal carriers in effect.
func (c *ContextResolver) Carriers() signal.Carriers { return c.carriers }

// PlatformLookup records the fallback to the platform tenant in
// organization-only mode.
type PlatformLookup struct {
	Attempted bool              `json:"attempted"`
	Domain    string            `json:"domain,omitempty"`
	Outcome   directory.Outcome `json:"outcome"`
	// Rejected is set when the platform tenant exists but is not organization-only.
	Rejected bool  `json:"rejected,omitempty"`
	Err      error `json:"-"`

	tenant directory.Tenant
}

// Explanation is a TenantContext together with how it was reached.
type Explanation struct {
	Context      TenantContext      `json:"context"`
	Resolution   Resolution         `json:"resolution"`
	Mode         Mode               `json:"mode"`
	ModeSource   ModeSource         `json:"mode_source"`
	Platform     PlatformLookup     `json:"platform"`
	Organization OrganizationLookup `json:"organization"`
}

// Degraded reports whether any lookup behind the context hit an unavailable backend.
func (e Explanation) Degraded() bool {
	return e.Resolution.Degraded() ||
		e.Platform.Outcome == directory.OutcomeUnavailable ||
		e.Organization.Outcome == directory.OutcomeUnavailable
}

// Resolve returns the TenantContext for req.
func (c *ContextResolver) Resolve(ctx context.Context, req Request) TenantContext {
	return c.Explain(ctx, req).Context
}

// Explain resolves req and keeps the diagnostics of every step.
func (c *ContextResolver) Explain(ctx context.Context, req Request) Explanation {
	ctx, span := c.tracer.Start(ctx, "tenancy.Resolve")
	defer span.End()

	var exp Explanation
	exp.Resolution = c.tenants.Resolve(ctx, req)

	var resolved *directory.Tenant
	if exp.Resolution.Found() {
		resolved = &exp.Resolution.Tenant
	}
	exp.Mode, exp.ModeSource = c.modes.forTenant(resolved)

	switch exp.Mode {
	case ModeOrganizationOnly:
		oc := OrganizationOnlyContext{}
		if resolved != nil {
			oc.Tenant = *resolved
		} else {
			exp.Platform = c.platformTenant(ctx)
			if exp.Platform.Outcome == directory.OutcomeFound && !exp.Platform.Rejected {
				oc.Tenant = exp.Platform.tenant
				oc.Platform = true
			}
		}
		exp.Organization = c.orgs.Resolve(ctx, req.Header, oc.Tenant.ID)
		oc.Organization = exp.Organization.Organization
		exp.Context = oc
	default:
		mc := MultiTenantContext{}
		if resolved != nil {
			mc.Tenant = *resolved
		}
		exp.Organization = c.orgs.Resolve(ctx, req.Header, mc.Tenant.ID)
		mc.Organization = exp.Organization.Organization
		exp.Context = mc
	}

	degraded := exp.Degraded()
	obs.ObserveResolution(string(exp.Resolution.Source), degraded)
	span.SetAttributes(
		attribute.String("tenancy.source", string(exp.Resolution.Source)),
		attribute.String("tenancy.mode", string(exp.Mode)),
		attribute.String("tenancy.scope", string(exp.Context.Scope())),
		attribute.String("tenancy.tenant_id", exp.Context.TenantID()),
		attribute.Bool("tenancy.degraded", degraded),
	)
	return exp
}

func (c *ContextResolver) platformTenant(ctx context.Context) PlatformLookup {
	t, err := c.store.GetTenantByDomain(ctx, c.platformDomain)
	pl := PlatformLookup{Attempted: true, Domain: c.platformDomain, Outcome: directory.Classify(err), Err: err}
	switch pl.Outcome {
	case directory.OutcomeFound:
		if m, ok := ParseMode(t.Mode); !ok || m != ModeOrganizationOnly {
			pl.Rejected = true
			c.logger.Warn("platform tenant is not organization-only, ignoring it",
				zap.String("tenant_id", t.ID),
				zap.String("mode", t.Mode),
			)
			return pl
		}
		pl.tenant = t
	case directory.OutcomeUnavailable:
		obs.ObserveLookupFailure(directory.OpTenantByDomain)
		c.logger.Warn("platform tenant lookup unavailable", zap.String("domain", c.platformDomain), zap.Error(err))
	}
	return pl
}
