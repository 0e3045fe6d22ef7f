// Package tenancy resolves which tenant and organization an inbound request
// operates in. Resolution never fails: absent signals, lookup misses and backend
// outages all degrade to an empty scope, and each outcome is recorded so callers
// can tell a miss from an outage.
package tenancy

import (
	"net/http"
)

// Request carries the parts of an inbound call that may hold tenant signals.
// Every field is optional.
type Request struct {
	Hostname string
	URL      string
	Header   http.Header
	// UserID is the authenticated user, used for the session fallback.
	UserID string
}

// RequestFromHTTP builds a Request from an HTTP request and an already
// authenticated user id.
func RequestFromHTTP(r *http.Request, userID string) Request {
	req := Request{Header: r.Header, UserID: userID, Hostname: r.Host}
	if r.URL != nil {
		req.URL = r.URL.RequestURI()
	}
	return req
}

// Source names the signal that produced the resolved tenant.
type Source string

const (
	SourceSubdomain Source = "subdomain"
	SourceURLParam  Source = "url-param"
	SourceHeader    Source = "header"
	SourceSession   Source = "session"
	SourceNone      Source = "none"
)
