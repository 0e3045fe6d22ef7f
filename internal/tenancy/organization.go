package tenancy

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"tenantry.org/internal/directory"
	"tenantry.org/internal/obs"
	"tenantry.org/internal/signal"
)

// OrganizationLookup is the outcome of resolving the organization header.
// Attempted is false when the request carried no organization signal.
type OrganizationLookup struct {
	Organization directory.Organization `json:"-"`
	Candidate    string                 `json:"candidate,omitempty"`
	Attempted    bool                   `json:"attempted"`
	Outcome      directory.Outcome      `json:"outcome"`
	Err          error                  `json:"-"`
}

// Found reports whether an organization was resolved.
func (l OrganizationLookup) Found() bool { return l.Organization.ID != "" }

// OrganizationResolver looks up the organization named by the request header.
type OrganizationResolver struct {
	store   directory.Store
	extract *signal.Extractor
	logger  *zap.Logger
}

func NewOrganizationResolver(store directory.Store, extract *signal.Extractor, logger *zap.Logger) *OrganizationResolver {
	if extract == nil {
		extract = signal.New(signal.DefaultCarriers())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationResolver{store: store, extract: extract, logger: logger}
}

// Resolve returns the organization in header, constrained to scopeTenantID when
// it is non-empty. A missing header, a miss, a foreign organization or an
// outage all yield no organization.
func (o *OrganizationResolver) Resolve(ctx context.Context, header http.Header, scopeTenantID string) OrganizationLookup {
	id, ok := o.extract.OrganizationFromHeaders(header)
	if !ok {
		return OrganizationLookup{Outcome: directory.OutcomeNotFound}
	}
	org, err := o.store.GetOrganizationByID(ctx, id, scopeTenantID)
	lookup := OrganizationLookup{Candidate: id, Attempted: true, Outcome: directory.Classify(err), Err: err}
	switch lookup.Outcome {
	case directory.OutcomeFound:
		// Never admit an organization from another tenant, whatever the adapter returned.
		if scopeTenantID != "" && org.TenantID != scopeTenantID {
			lookup.Outcome = directory.OutcomeNotFound
			return lookup
		}
		lookup.Organization = org
	case directory.OutcomeUnavailable:
		obs.ObserveLookupFailure(directory.OpOrganizationByID)
		o.logger.Warn("organization lookup unavailable",
			zap.String("organization_id", id),
			zap.String("tenant_id", scopeTenantID),
			zap.Error(err),
		)
	}
	return lookup
}
