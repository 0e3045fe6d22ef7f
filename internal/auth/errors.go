package auth

import (
	"errors"

	"tenantry.org/internal/directory"
)

var (
	ErrForbidden       = errors.New("auth: forbidden")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrInvalidInput    = errors.New("auth: invalid input")

	// ErrBackendUnavailable is the directory sentinel, so errors.Is matches
	// across package boundaries.
	ErrBackendUnavailable = directory.ErrBackendUnavailable
)
