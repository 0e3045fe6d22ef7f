package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zapcore"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/metrics":                "/metrics",
		"/v1/context":             "/v1/context",
		"/v1/context/":            "/v1/context",
		"/v1/me/permissions?x=1":  "/v1/me/permissions",
		"/v1/authorize":           "/v1/authorize",
		"/v1/tenant":              "/v1/tenant",
		"/v1/tenants/abc":         "other",
		"/healthz":                "/healthz",
		"/definitely/not/a/route": "other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveHelpers(t *testing.T) {
	before := testutil.ToFloat64(tenantResolutions.WithLabelValues("header", "true"))
	ObserveResolution("header", true)
	if got := testutil.ToFloat64(tenantResolutions.WithLabelValues("header", "true")); got != before+1 {
		t.Fatalf("resolutions=%v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(directoryLookupFailures.WithLabelValues("tenant_by_id"))
	ObserveLookupFailure("tenant_by_id")
	if got := testutil.ToFloat64(directoryLookupFailures.WithLabelValues("tenant_by_id")); got != before+1 {
		t.Fatalf("lookup failures=%v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(permissionDecisions.WithLabelValues("granted"))
	ObserveDecision("granted")
	if got := testutil.ToFloat64(permissionDecisions.WithLabelValues("granted")); got != before+1 {
		t.Fatalf("decisions=%v, want %v", got, before+1)
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "418"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "418")); got != before+1 {
		t.Fatalf("requests=%v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Fatalf("in flight=%v, want 0", got)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	InitBuildInfo("test", "abc")
	InitBuildInfo("test", "abc")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", input, got, want)
		}
	}
	if NewLogger("debug", "json", "tenantry") == nil {
		t.Fatal("expected logger")
	}
}
