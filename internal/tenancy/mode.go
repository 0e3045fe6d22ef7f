package tenancy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"tenantry.org/internal/directory"
)

// Mode is the system topology a request is served under.
type Mode string

const (
	ModeMultiTenant      Mode = "multi-tenant"
	ModeOrganizationOnly Mode = "organization-only"
)

// ParseMode accepts the two known topologies, case-insensitively.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMultiTenant:
		return ModeMultiTenant, true
	case ModeOrganizationOnly:
		return ModeOrganizationOnly, true
	default:
		return "", false
	}
}

// ModeSource records which rule picked the mode.
type ModeSource string

const (
	ModeFromConfig  ModeSource = "config"
	ModeFromTenant  ModeSource = "tenant"
	ModeFromDefault ModeSource = "default"
)

// ModeSelector picks the topology: the process-wide setting, then the tenant's
// stored mode, then multi-tenant.
type ModeSelector struct {
	system Mode
	store  directory.Store
	logger *zap.Logger
}

// NewModeSelector builds a selector. An empty or unknown system value counts as unset.
func NewModeSelector(store directory.Store, system string, logger *zap.Logger) *ModeSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, _ := ParseMode(system)
	return &ModeSelector{system: m, store: store, logger: logger}
}

// Select chooses the mode for tenantID, reading the tenant when the system
// setting does not decide.
func (s *ModeSelector) Select(ctx context.Context, tenantID string) (Mode, ModeSource) {
	if s.system != "" {
		return s.system, ModeFromConfig
	}
	if tenantID == "" || s.store == nil {
		return ModeMultiTenant, ModeFromDefault
	}
	t, err := s.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		if directory.Classify(err) == directory.OutcomeUnavailable {
			s.logger.Warn("tenant mode lookup unavailable", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		return ModeMultiTenant, ModeFromDefault
	}
	return s.forTenant(&t)
}

// forTenant applies the same rules to an already loaded tenant.
func (s *ModeSelector) forTenant(t *directory.Tenant) (Mode, ModeSource) {
	if s.system != "" {
		return s.system, ModeFromConfig
	}
	if t != nil {
		if m, ok := ParseMode(t.Mode); ok {
			return m, ModeFromTenant
		}
	}
	return ModeMultiTenant, ModeFromDefault
}
