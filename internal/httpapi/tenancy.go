package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tenantry.org/internal/auth"
	"tenantry.org/internal/tenancy"
)

type explanationKey struct{}

// tenantContext resolves the tenant context for every /v1 request and stores
// it for handlers. Resolution never fails the request; handlers decide whether
// a missing tenant matters.
func (a *API) tenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		exp := a.resolver.Explain(r.Context(), tenancy.RequestFromHTTP(r, userID))

		ctx := tenancy.ContextWith(r.Context(), exp.Context)
		ctx = context.WithValue(ctx, explanationKey{}, exp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func explanationFromContext(ctx context.Context) (tenancy.Explanation, bool) {
	exp, ok := ctx.Value(explanationKey{}).(tenancy.Explanation)
	return exp, ok
}

// RequireTenant rejects requests whose context carries no tenant. A directory
// outage during resolution yields 503 instead of 400.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenancy.FromContext(r.Context())
		if ok && tc.TenantID() != "" {
			next.ServeHTTP(w, r)
			return
		}
		if exp, ok := explanationFromContext(r.Context()); ok && exp.Degraded() {
			writeError(w, r, http.StatusServiceUnavailable, "tenant directory unavailable")
			return
		}
		writeError(w, r, http.StatusBadRequest, "tenant could not be resolved")
	})
}

// RequirePermission evaluates the caller in the resolved tenant scope and lets
// the request through only when every perm is granted. The decision is stored
// for downstream handlers.
func (a *API) RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			tc, _ := tenancy.FromContext(r.Context())
			tenantID := ""
			if tc != nil {
				tenantID = tc.TenantID()
			}

			d := a.evaluator.Evaluate(r.Context(), userID, tenantID)
			err := d.Require(perms...)
			a.audit.Decision(r.Context(), d, tc, perms, err == nil)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(auth.ContextWithDecision(r.Context(), d)))
			case errors.Is(err, auth.ErrBackendUnavailable):
				writeError(w, r, http.StatusServiceUnavailable, "permissions could not be evaluated")
			default:
				writeError(w, r, http.StatusForbidden, "forbidden")
			}
		})
	}
}
