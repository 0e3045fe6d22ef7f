package tenancy

import (
	"context"

	"go.uber.org/zap"

	"tenantry.org/internal/directory"
	"tenantry.org/internal/obs"
	"tenantry.org/internal/signal"
)

// Attempt is one directory lookup made while resolving a tenant.
type Attempt struct {
	Source    Source            `json:"source"`
	Op        string            `json:"op"`
	Candidate string            `json:"candidate"`
	Outcome   directory.Outcome `json:"outcome"`
	Err       error             `json:"-"`
}

// Resolution is the result of tenant resolution. TenantID is empty and Source is
// SourceNone when no signal matched a tenant.
type Resolution struct {
	Tenant   directory.Tenant `json:"-"`
	TenantID string           `json:"tenant_id"`
	Source   Source           `json:"source"`
	Attempts []Attempt        `json:"attempts"`
}

// Found reports whether a tenant was resolved.
func (r Resolution) Found() bool { return r.TenantID != "" }

// Degraded reports whether any lookup failed because the backend was unavailable.
func (r Resolution) Degraded() bool {
	for _, a := range r.Attempts {
		if a.Outcome == directory.OutcomeUnavailable {
			return true
		}
	}
	return false
}

// Resolver turns request signals into a tenant. Signals are tried in a fixed
// order and the first one that names an existing tenant wins.
type Resolver struct {
	store   directory.Store
	extract *signal.Extractor
	logger  *zap.Logger
}

func NewResolver(store directory.Store, extract *signal.Extractor, logger *zap.Logger) *Resolver {
	if extract == nil {
		extract = signal.New(signal.DefaultCarriers())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, extract: extract, logger: logger}
}

// Resolve applies subdomain, url-param, header and session signals in that order.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	res := Resolution{Source: SourceNone}

	if domain, ok := r.extract.FromHostname(req.Hostname); ok {
		t, err := r.store.GetTenantByDomain(ctx, domain)
		if r.record(&res, SourceSubdomain, directory.OpTenantByDomain, domain, err) {
			return res.won(t, SourceSubdomain)
		}
	}

	if id, ok := r.extract.FromURL(req.URL); ok {
		t, err := r.store.GetTenantByID(ctx, id)
		if r.record(&res, SourceURLParam, directory.OpTenantByID, id, err) {
			return res.won(t, SourceURLParam)
		}
	}

	if id, ok := r.extract.FromHeaders(req.Header); ok {
		t, err := r.store.GetTenantByID(ctx, id)
		if r.record(&res, SourceHeader, directory.OpTenantByID, id, err) {
			return res.won(t, SourceHeader)
		}
	}

	if req.UserID != "" {
		uw, err := r.store.GetUserWithRole(ctx, req.UserID)
		if r.record(&res, SourceSession, directory.OpUserWithRole, req.UserID, err) && uw.User.TenantID != "" {
			t, err := r.store.GetTenantByID(ctx, uw.User.TenantID)
			if r.record(&res, SourceSession, directory.OpTenantByID, uw.User.TenantID, err) {
				return res.won(t, SourceSession)
			}
		}
	}

	return res
}

// record appends the attempt and reports whether the lookup found a record.
func (r *Resolver) record(res *Resolution, src Source, op, candidate string, err error) bool {
	outcome := directory.Classify(err)
	res.Attempts = append(res.Attempts, Attempt{
		Source:    src,
		Op:        op,
		Candidate: candidate,
		Outcome:   outcome,
		Err:       err,
	})
	if outcome == directory.OutcomeUnavailable {
		obs.ObserveLookupFailure(op)
		r.logger.Warn("tenant lookup unavailable, trying next signal",
			zap.String("source", string(src)),
			zap.String("op", op),
			zap.String("candidate", candidate),
			zap.Error(err),
		)
	}
	return outcome == directory.OutcomeFound
}

func (res Resolution) won(t directory.Tenant, src Source) Resolution {
	res.Tenant = t
	res.TenantID = t.ID
	res.Source = src
	return res
}
