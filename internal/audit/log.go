package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"tenantry.org/internal/auth"
	"tenantry.org/internal/tenancy"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Logger writes audit entries on a dedicated named zap logger.
type Logger struct {
	log *zap.Logger
}

// New returns an audit Logger. A nil base logs nowhere.
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{log: base.Named("audit")}
}

// LogEvent writes an audit log entry enriched with request and user context.
func (l *Logger) LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := make([]zap.Field, 0, len(fields)+3)
	entry = append(entry, zap.String("type", "audit"), zap.String("event", event))
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry = append(entry, zap.String("user_id", userID))
	}
	entry = append(entry, fields...)
	l.log.Info("audit", entry...)
	return nil
}

// Decision records the outcome of a permission check. Outage denials are
// logged at warn so they stand out from policy denials.
func (l *Logger) Decision(ctx context.Context, d auth.Decision, tc tenancy.TenantContext, required []string, allowed bool) {
	fields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", "authz.decision"),
		zap.Bool("allowed", allowed),
		zap.String("outcome", string(d.Outcome)),
		zap.String("subject", d.UserID),
		zap.String("role", d.Role),
		zap.String("role_source", string(d.Source)),
		zap.Bool("platform_admin", d.IsPlatformAdmin),
		zap.Strings("required", required),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	if tc != nil {
		fields = append(fields,
			zap.String("mode", string(tc.Mode())),
			zap.String("scope", string(tc.Scope())),
			zap.String("tenant_id", tc.TenantID()),
			zap.String("organization_id", tc.OrganizationID()),
		)
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}

	switch {
	case allowed:
		l.log.Info("authorization granted", fields...)
	case d.Unavailable():
		l.log.Warn("authorization denied: directory unavailable", fields...)
	default:
		l.log.Info("authorization denied", fields...)
	}
}
