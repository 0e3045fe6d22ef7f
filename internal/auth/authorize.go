package auth

import (
	"fmt"
)

// Outcome explains how a Decision was reached.
type Outcome string

const (
	OutcomeGranted            Outcome = "granted"
	OutcomeUserNotFound       Outcome = "user_not_found"
	OutcomeRoleNotFound       Outcome = "role_not_found"
	OutcomeBackendUnavailable Outcome = "backend_unavailable"
)

// RoleSource says which assignment supplied the effective role.
type RoleSource string

const (
	RoleFromPlatform RoleSource = "platform"
	RoleFromOverride RoleSource = "override"
)

// Decision is the effective authority of a user in a scope. A denied decision
// has no role and an empty permission set.
type Decision struct {
	UserID          string        `json:"user_id"`
	TenantID        string        `json:"tenant_id,omitempty"`
	RoleID          string        `json:"role_id,omitempty"`
	Role            string        `json:"role,omitempty"`
	Source          RoleSource    `json:"source,omitempty"`
	Permissions     PermissionSet `json:"permissions"`
	IsPlatformAdmin bool          `json:"is_platform_admin"`
	Outcome         Outcome       `json:"outcome"`
	Err             error         `json:"-"`
}

func denied(userID, tenantID string, outcome Outcome, err error) Decision {
	return Decision{
		UserID:      userID,
		TenantID:    tenantID,
		Permissions: PermissionSet{},
		Outcome:     outcome,
		Err:         err,
	}
}

// Unavailable reports whether the decision was denied because the directory
// could not be read.
func (d Decision) Unavailable() bool {
	return d.Outcome == OutcomeBackendUnavailable
}

// Has reports whether the decision grants perm. Platform admins hold every permission.
func (d Decision) Has(perm string) bool {
	if d.IsPlatformAdmin {
		return true
	}
	return d.Permissions.Has(perm)
}

// HasAny reports whether at least one of perms is granted.
func (d Decision) HasAny(perms ...string) bool {
	if d.IsPlatformAdmin {
		return true
	}
	for _, p := range perms {
		if d.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of perms is granted.
func (d Decision) HasAll(perms ...string) bool {
	if d.IsPlatformAdmin {
		return true
	}
	for _, p := range perms {
		if !d.Permissions.Has(p) {
			return false
		}
	}
	return true
}

// Require returns nil when every one of perms is granted. Otherwise it returns
// an error matching ErrBackendUnavailable for outage denials, or ErrForbidden.
func (d Decision) Require(perms ...string) error {
	if d.HasAll(perms...) {
		return nil
	}
	if d.Unavailable() {
		return fmt.Errorf("%w: permissions for user %s could not be evaluated", ErrBackendUnavailable, d.UserID)
	}
	for _, p := range perms {
		if !d.Permissions.Has(p) {
			return fmt.Errorf("%w: missing %s", ErrForbidden, p)
		}
	}
	return ErrForbidden
}
