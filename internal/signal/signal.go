// Package signal extracts candidate tenant and organization identifiers from the
// parts of an inbound request. Extractors are pure: they never touch the directory.
package signal

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultTenantParam        = "tenant_id"
	DefaultTenantHeader       = "X-Tenant-ID"
	DefaultOrganizationHeader = "X-Organization-ID"
)

// DefaultReservedSubdomains are host labels that never name a tenant.
var DefaultReservedSubdomains = []string{"www", "admin", "app", "api"}

// Carriers names the reserved places a request may carry tenant signals.
type Carriers struct {
	// BaseDomain is the shared suffix stripped from hostnames, e.g. "example.com".
	BaseDomain         string
	ReservedSubdomains []string
	TenantParam        string
	TenantHeader       string
	OrganizationHeader string
}

// DefaultCarriers returns the carriers used when nothing is configured.
func DefaultCarriers() Carriers {
	return Carriers{
		ReservedSubdomains: append([]string(nil), DefaultReservedSubdomains...),
		TenantParam:        DefaultTenantParam,
		TenantHeader:       DefaultTenantHeader,
		OrganizationHeader: DefaultOrganizationHeader,
	}
}

// Extractor applies a fixed set of Carriers. The zero value is not usable; build
// one with New.
type Extractor struct {
	baseDomain   string
	reserved     map[string]struct{}
	tenantParam  string
	tenantHeader string
	orgHeader    string
}

// New builds an Extractor, filling blank carrier names with defaults.
func New(c Carriers) *Extractor {
	e := &Extractor{
		baseDomain:   normalizeHost(c.BaseDomain),
		reserved:     make(map[string]struct{}, len(c.ReservedSubdomains)),
		tenantParam:  strings.TrimSpace(c.TenantParam),
		tenantHeader: strings.TrimSpace(c.TenantHeader),
		orgHeader:    strings.TrimSpace(c.OrganizationHeader),
	}
	reserved := c.ReservedSubdomains
	if reserved == nil {
		reserved = DefaultReservedSubdomains
	}
	for _, label := range reserved {
		label = strings.ToLower(strings.TrimSpace(label))
		if label != "" {
			e.reserved[label] = struct{}{}
		}
	}
	if e.tenantParam == "" {
		e.tenantParam = DefaultTenantParam
	}
	if e.tenantHeader == "" {
		e.tenantHeader = DefaultTenantHeader
	}
	if e.orgHeader == "" {
		e.orgHeader = DefaultOrganizationHeader
	}
	return e
}

// FromHostname returns the tenant domain candidate carried by host, if any.
func (e *Extractor) FromHostname(host string) (string, bool) {
	host = normalizeHost(host)
	if host == "" || net.ParseIP(host) != nil {
		return "", false
	}

	var rest string
	switch {
	case e.baseDomain != "":
		if !strings.HasSuffix(host, "."+e.baseDomain) {
			return "", false
		}
		rest = strings.TrimSuffix(host, "."+e.baseDomain)
	case strings.HasSuffix(host, ".localhost"):
		rest = strings.TrimSuffix(host, ".localhost")
	default:
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return "", false
		}
		rest = strings.Join(labels[:len(labels)-2], ".")
	}

	label, _, _ := strings.Cut(rest, ".")
	if label == "" {
		return "", false
	}
	if _, ok := e.reserved[label]; ok {
		return "", false
	}
	return label, true
}

// FromURL returns the tenant id carried by the reserved query parameter.
func (e *Extractor) FromURL(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return nonEmpty(u.Query().Get(e.tenantParam))
}

// FromHeaders returns the tenant id carried by the reserved tenant header.
func (e *Extractor) FromHeaders(h http.Header) (string, bool) {
	if h == nil {
		return "", false
	}
	return nonEmpty(h.Get(e.tenantHeader))
}

// OrganizationFromHeaders returns the organization id carried by the reserved header.
func (e *Extractor) OrganizationFromHeaders(h http.Header) (string, bool) {
	if h == nil {
		return "", false
	}
	return nonEmpty(h.Get(e.orgHeader))
}

// TenantHeader is the canonical name of the tenant header.
func (e *Extractor) TenantHeader() string { return http.CanonicalHeaderKey(e.tenantHeader) }

// OrganizationHeader is the canonical name of the organization header.
func (e *Extractor) OrganizationHeader() string { return http.CanonicalHeaderKey(e.orgHeader) }

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(host, ".")
}

func nonEmpty(v string) (string, bool) {
	v = strings.TrimSpace(v)
	return v, v != ""
}
