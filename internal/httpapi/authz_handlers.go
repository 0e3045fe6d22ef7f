package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tenantry.org/internal/auth"
	"tenantry.org/internal/tenancy"
)

type authorizeRequest struct {
	Permissions []string `json:"permissions"`
	// Match is "all" (default) or "any".
	Match string `json:"match"`
}

type authorizeResponse struct {
	Allowed bool                `json:"allowed"`
	Outcome auth.Outcome        `json:"outcome"`
	Role    string              `json:"role,omitempty"`
	Source  auth.RoleSource     `json:"source,omitempty"`
	Missing []string            `json:"missing,omitempty"`
	Context tenancy.ContextView `json:"context"`
}

type permissionsResponse struct {
	UserID   string              `json:"user_id"`
	Context  tenancy.ContextView `json:"context"`
	Decision auth.Decision       `json:"decision"`
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	exp, ok := explanationFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant context missing")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	tc, _ := tenancy.FromContext(r.Context())
	d := a.evaluator.Evaluate(r.Context(), userID, tenantIDOf(tc))

	code := http.StatusOK
	if d.Unavailable() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, permissionsResponse{
		UserID:   userID,
		Context:  viewOf(tc),
		Decision: d,
	})
}

func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms := make([]string, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		writeError(w, r, http.StatusBadRequest, "permissions are required")
		return
	}
	match := strings.ToLower(strings.TrimSpace(req.Match))
	if match != "" && match != "all" && match != "any" {
		writeError(w, r, http.StatusBadRequest, `match must be "all" or "any"`)
		return
	}

	tc, _ := tenancy.FromContext(r.Context())
	d := a.evaluator.Evaluate(r.Context(), userID, tenantIDOf(tc))
	allowed := d.HasAll(perms...)
	if match == "any" {
		allowed = d.HasAny(perms...)
	}
	a.audit.Decision(r.Context(), d, tc, perms, allowed)

	resp := authorizeResponse{
		Allowed: allowed,
		Outcome: d.Outcome,
		Role:    d.Role,
		Source:  d.Source,
		Context: viewOf(tc),
	}
	if !allowed {
		for _, p := range perms {
			if !d.Has(p) {
				resp.Missing = append(resp.Missing, p)
			}
		}
	}
	code := http.StatusOK
	if d.Unavailable() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (a *API) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireUser(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": auth.Catalog})
}

// handleTenant returns the records behind the resolved context. Mounted behind
// RequireTenant and RequirePermission.
func (a *API) handleTenant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tc, _ := tenancy.FromContext(r.Context())
	tenant, org := tenantRecords(tc)
	body := map[string]any{
		"mode":   tc.Mode(),
		"scope":  tc.Scope(),
		"tenant": tenant,
	}
	if org.ID != "" {
		body["organization"] = org
	} else {
		body["organization"] = nil
	}
	writeJSON(w, http.StatusOK, body)
}

// handleSession exchanges a bearer token for a cookie session (POST) or ends
// the current cookie session (DELETE).
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		sess, err := a.sessions.Create(r.Context(), userID)
		if err != nil {
			a.logger.Warn("session create failed", zap.Error(err))
			writeError(w, r, http.StatusServiceUnavailable, "session store unavailable")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     a.sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			Expires:  sess.ExpiresAt,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		_ = a.audit.LogEvent(r.Context(), "session.created", zap.Time("expires_at", sess.ExpiresAt))
		writeJSON(w, http.StatusCreated, map[string]any{
			"user_id":    sess.UserID,
			"expires_at": sess.ExpiresAt.Format(time.RFC3339),
		})
	case http.MethodDelete:
		cookie, err := r.Cookie(a.sessionCookie)
		if err == nil && cookie.Value != "" {
			if err := a.sessions.Delete(r.Context(), cookie.Value); err != nil {
				a.logger.Warn("session delete failed", zap.Error(err))
				writeError(w, r, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
			_ = a.audit.LogEvent(r.Context(), "session.deleted")
		}
		http.SetCookie(w, &http.Cookie{
			Name:     a.sessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func tenantIDOf(tc tenancy.TenantContext) string {
	if tc == nil {
		return ""
	}
	return tc.TenantID()
}

func viewOf(tc tenancy.TenantContext) tenancy.ContextView {
	if tc == nil {
		return tenancy.ContextView{}
	}
	return tenancy.View(tc)
}
