package auth

import (
	"context"
	"strings"
)

type userIDContextKey struct{}
type decisionContextKey struct{}

// ContextWithUser attaches the authenticated user id to the context.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithDecision stores an evaluated decision for downstream handlers.
func ContextWithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey{}, &d)
}

// DecisionFromContext returns the decision stored by ContextWithDecision.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	if ctx == nil {
		return Decision{}, false
	}
	v, ok := ctx.Value(decisionContextKey{}).(*Decision)
	if !ok || v == nil {
		return Decision{}, false
	}
	return *v, true
}
