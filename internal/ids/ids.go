package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// maxRequestIDLen bounds request ids accepted from callers.
const maxRequestIDLen = 128

// New returns a lexicographically sortable identifier suitable for request ids
// and log correlation. It is not a secret.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsULID reports whether s is a well-formed ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// RequestID returns the caller-supplied id when it is printable and short,
// otherwise a fresh one.
func RequestID(incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" || len(incoming) > maxRequestIDLen {
		return New()
	}
	for _, r := range incoming {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return incoming
}
