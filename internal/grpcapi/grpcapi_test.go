package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"tenantry.org/internal/auth"
	"tenantry.org/internal/directory"
	"tenantry.org/internal/tenancy"
)

const cancelMethod = "/bookings.v1.Bookings/Cancel"

type flakyStore struct {
	*directory.MemoryStore
	down bool
}

func (s *flakyStore) GetUserWithRole(ctx context.Context, userID string) (directory.UserWithRole, error) {
	if s.down {
		return directory.UserWithRole{}, directory.Unavailable(directory.OpUserWithRole, errors.New("timeout"))
	}
	return s.MemoryStore.GetUserWithRole(ctx, userID)
}

type fixture struct {
	store  *flakyStore
	tokens *auth.TokenIssuer
	ic     *Interceptors
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := directory.NewMemoryStore()
	for _, r := range auth.BuiltinRoles {
		require.NoError(t, mem.PutRole(directory.Role{ID: r.ID, Name: r.Name, Permissions: r.Permissions}))
	}
	require.NoError(t, mem.PutTenant(directory.Tenant{ID: "t-acme", Domain: "acme"}))
	require.NoError(t, mem.PutUser(directory.User{ID: "u-agent", TenantID: "t-acme", RoleID: "role-agent"}))
	require.NoError(t, mem.PutUser(directory.User{ID: "u-viewer", TenantID: "t-acme", RoleID: "role-viewer"}))
	store := &flakyStore{MemoryStore: mem}

	resolver, err := tenancy.NewContextResolver(store)
	require.NoError(t, err)
	evaluator, err := auth.NewEvaluator(store)
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("grpc-secret")
	require.NoError(t, err)
	ic, err := NewInterceptors(resolver, evaluator, tokens,
		WithMethodPermissions(map[string][]string{cancelMethod: {auth.PermBookingsCancel}}))
	require.NoError(t, err)
	return &fixture{store: store, tokens: tokens, ic: ic}
}

func (f *fixture) incoming(t *testing.T, userID string, kv ...string) context.Context {
	t.Helper()
	md := metadata.Pairs(kv...)
	if userID != "" {
		tok, _, err := f.tokens.Issue(userID, time.Hour)
		require.NoError(t, err)
		md.Append("authorization", "Bearer "+tok)
	}
	return metadata.NewIncomingContext(context.Background(), md)
}

func (f *fixture) call(ctx context.Context, method string) (context.Context, error) {
	var seen context.Context
	_, err := f.ic.Unary()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, _ any) (any, error) {
		seen = ctx
		return nil, nil
	})
	return seen, err
}

func TestUnaryResolvesTenantFromAuthority(t *testing.T) {
	f := newFixture(t)
	ctx, err := f.call(f.incoming(t, "", ":authority", "acme.example.com:443"), "/svc.A/Get")
	require.NoError(t, err)

	tc, ok := tenancy.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "t-acme", tc.TenantID())
	_, ok = auth.UserIDFromContext(ctx)
	assert.False(t, ok)
}

func TestUnaryUsesSessionUserAndHeaders(t *testing.T) {
	f := newFixture(t)

	ctx, err := f.call(f.incoming(t, "u-agent"), "/svc.A/Get")
	require.NoError(t, err)
	userID, _ := auth.UserIDFromContext(ctx)
	assert.Equal(t, "u-agent", userID)
	tc, _ := tenancy.FromContext(ctx)
	assert.Equal(t, "t-acme", tc.TenantID())

	ctx, err = f.call(f.incoming(t, "", "x-tenant-id", "t-acme"), "/svc.A/Get")
	require.NoError(t, err)
	tc, _ = tenancy.FromContext(ctx)
	assert.Equal(t, "t-acme", tc.TenantID())
}

func TestUnaryRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"Bearer junk", "Basic abc", "Bearer"} {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", raw))
		_, err := f.call(ctx, "/svc.A/Get")
		assert.Equal(t, codes.Unauthenticated, status.Code(err), raw)
	}
}

func TestMethodPermissions(t *testing.T) {
	f := newFixture(t)

	ctx, err := f.call(f.incoming(t, "u-agent"), cancelMethod)
	require.NoError(t, err)
	d, ok := auth.DecisionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "Agent", d.Role)

	_, err = f.call(f.incoming(t, "u-viewer"), cancelMethod)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = f.call(f.incoming(t, ""), cancelMethod)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	f.store.down = true
	_, err = f.call(f.incoming(t, "u-agent", ":authority", "acme.example.com"), cancelMethod)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestHealthMethodsBypassResolution(t *testing.T) {
	f := newFixture(t)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer junk"))
	seen, err := f.call(ctx, "/grpc.health.v1.Health/Check")
	require.NoError(t, err)
	_, ok := tenancy.FromContext(seen)
	assert.False(t, ok)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestStreamInterceptor(t *testing.T) {
	f := newFixture(t)
	ss := fakeStream{ctx: f.incoming(t, "", ":authority", "acme.example.com")}

	var tenantID string
	err := f.ic.Stream()(nil, ss, &grpc.StreamServerInfo{FullMethod: "/svc.A/Watch"}, func(_ any, stream grpc.ServerStream) error {
		tc, ok := tenancy.FromContext(stream.Context())
		if ok {
			tenantID = tc.TenantID()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t-acme", tenantID)

	err = f.ic.Stream()(nil, fakeStream{ctx: f.incoming(t, "u-viewer")}, &grpc.StreamServerInfo{FullMethod: cancelMethod},
		func(any, grpc.ServerStream) error { return nil })
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRequestFromMetadata(t *testing.T) {
	md := metadata.Pairs(":authority", "acme.example.com", "x-organization-id", "o-1", "host", "ignored.example.com")
	req := RequestFromMetadata(md, "u-1")
	assert.Equal(t, "acme.example.com", req.Hostname)
	assert.Equal(t, "o-1", req.Header.Get("X-Organization-ID"))
	assert.Equal(t, "u-1", req.UserID)
	assert.Empty(t, req.Header.Get(":authority"))

	req = RequestFromMetadata(metadata.Pairs("host", "beta.example.com"), "")
	assert.Equal(t, "beta.example.com", req.Hostname)
}

func TestNewInterceptorsValidation(t *testing.T) {
	_, err := NewInterceptors(nil, nil, nil)
	assert.Error(t, err)

	f := newFixture(t)
	_, err = NewInterceptors(f.ic.resolver, f.ic.evaluator, f.ic.tokens,
		WithMethodPermissions(map[string][]string{"NoSlash": {"x"}}))
	assert.Error(t, err)
}

type probeFunc func(context.Context) error

func (p probeFunc) Check(ctx context.Context) error { return p(ctx) }

func TestHealthService(t *testing.T) {
	f := newFixture(t)
	var failing bool
	h := NewHealth(probeFunc(func(context.Context) error {
		if failing {
			return errors.New("db down")
		}
		return nil
	}), nil)

	listener := bufconn.Listen(1 << 20)
	server := NewServer(f.ic, h)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	require.NoError(t, h.Refresh(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	failing = true
	assert.Error(t, h.Refresh(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
