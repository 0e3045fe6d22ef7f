package auth

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tenantry.org/internal/directory"
	"tenantry.org/internal/obs"
)

// Evaluator computes a user's effective permissions in a tenant scope. It keeps
// no state between calls, so a changed override applies on the next evaluation.
type Evaluator struct {
	store     directory.Store
	adminRole string
	logger    *zap.Logger
	tracer    trace.Tracer
}

// EvaluatorOption configures Evaluator behavior.
type EvaluatorOption func(*Evaluator) error

// WithAdminRoleName overrides the role name that carries platform admin authority.
func WithAdminRoleName(name string) EvaluatorOption {
	return func(e *Evaluator) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("auth: admin role name must not be empty")
		}
		e.adminRole = name
		return nil
	}
}

// WithLogger sets the logger used for directory outages.
func WithLogger(logger *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) error {
		if logger == nil {
			return errors.New("auth: logger must not be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) EvaluatorOption {
	return func(e *Evaluator) error {
		if tracer == nil {
			return errors.New("auth: tracer must not be nil")
		}
		e.tracer = tracer
		return nil
	}
}

// NewEvaluator constructs an Evaluator over store.
func NewEvaluator(store directory.Store, opts ...EvaluatorOption) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	e := &Evaluator{
		store:     store,
		adminRole: DefaultAdminRoleName,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("tenantry.org/internal/auth"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AdminRoleName is the role name treated as platform admin.
func (e *Evaluator) AdminRoleName() string { return e.adminRole }

// Evaluate returns the decision for userID in tenantID. An empty tenantID
// evaluates the platform role alone. Every failure denies.
func (e *Evaluator) Evaluate(ctx context.Context, userID, tenantID string) Decision {
	ctx, span := e.tracer.Start(ctx, "auth.Evaluate")
	defer span.End()

	d := e.evaluate(ctx, userID, tenantID)

	obs.ObserveDecision(string(d.Outcome))
	span.SetAttributes(
		attribute.String("auth.outcome", string(d.Outcome)),
		attribute.String("auth.role", d.Role),
		attribute.String("auth.source", string(d.Source)),
		attribute.Bool("auth.platform_admin", d.IsPlatformAdmin),
	)
	return d
}

func (e *Evaluator) evaluate(ctx context.Context, userID, tenantID string) Decision {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" {
		return denied(userID, tenantID, OutcomeUserNotFound, directory.ErrNotFound)
	}

	uw, err := e.store.GetUserWithRole(ctx, userID)
	switch directory.Classify(err) {
	case directory.OutcomeNotFound:
		return denied(userID, tenantID, OutcomeUserNotFound, err)
	case directory.OutcomeUnavailable:
		e.unavailable(directory.OpUserWithRole, userID, tenantID, err)
		return denied(userID, tenantID, OutcomeBackendUnavailable, err)
	}

	if uw.Role != nil && uw.Role.Name == e.adminRole {
		return Decision{
			UserID:          userID,
			TenantID:        tenantID,
			RoleID:          uw.Role.ID,
			Role:            uw.Role.Name,
			Source:          RoleFromPlatform,
			Permissions:     NewPermissionSet(AllPermissions()...),
			IsPlatformAdmin: true,
			Outcome:         OutcomeGranted,
		}
	}

	if tenantID != "" {
		ov, err := e.store.GetTenantRoleOverride(ctx, userID, tenantID)
		switch directory.Classify(err) {
		case directory.OutcomeFound:
			if ov.Role == nil {
				return denied(userID, tenantID, OutcomeRoleNotFound, directory.ErrNotFound)
			}
			return granted(userID, tenantID, *ov.Role, RoleFromOverride)
		case directory.OutcomeUnavailable:
			e.unavailable(directory.OpTenantOverride, userID, tenantID, err)
			return denied(userID, tenantID, OutcomeBackendUnavailable, err)
		}
	}

	if uw.Role == nil {
		return denied(userID, tenantID, OutcomeRoleNotFound, directory.ErrNotFound)
	}
	return granted(userID, tenantID, *uw.Role, RoleFromPlatform)
}

func granted(userID, tenantID string, role directory.Role, src RoleSource) Decision {
	return Decision{
		UserID:      userID,
		TenantID:    tenantID,
		RoleID:      role.ID,
		Role:        role.Name,
		Source:      src,
		Permissions: NewPermissionSet(role.Permissions...),
		Outcome:     OutcomeGranted,
	}
}

func (e *Evaluator) unavailable(op, userID, tenantID string, err error) {
	obs.ObserveLookupFailure(op)
	e.logger.Warn("permission lookup unavailable, denying",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.String("tenant_id", tenantID),
		zap.Error(err),
	)
}

// HasPermission evaluates and checks a single permission.
func (e *Evaluator) HasPermission(ctx context.Context, userID, tenantID, perm string) bool {
	return e.Evaluate(ctx, userID, tenantID).Has(perm)
}

// HasAnyPermission evaluates and checks that at least one of perms is granted.
func (e *Evaluator) HasAnyPermission(ctx context.Context, userID, tenantID string, perms ...string) bool {
	return e.Evaluate(ctx, userID, tenantID).HasAny(perms...)
}

// HasAllPermissions evaluates and checks that every one of perms is granted.
func (e *Evaluator) HasAllPermissions(ctx context.Context, userID, tenantID string, perms ...string) bool {
	return e.Evaluate(ctx, userID, tenantID).HasAll(perms...)
}
