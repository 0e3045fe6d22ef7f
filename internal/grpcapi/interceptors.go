// Package grpcapi carries tenant resolution and authorization onto gRPC
// services through server interceptors.
package grpcapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tenantry.org/internal/audit"
	"tenantry.org/internal/auth"
	"tenantry.org/internal/ids"
	"tenantry.org/internal/tenancy"
)

const (
	healthMethodPrefix     = "/grpc.health.v1.Health/"
	reflectionMethodPrefix = "/grpc.reflection."
	requestIDKey           = "x-request-id"
)

// Interceptors authenticate callers from metadata, resolve their tenant
// context and enforce per-method permissions.
type Interceptors struct {
	resolver  *tenancy.ContextResolver
	evaluator *auth.Evaluator
	tokens    *auth.TokenIssuer
	logger    *zap.Logger
	audit     *audit.Logger
	perms     map[string][]string
}

// Option configures Interceptors.
type Option func(*Interceptors) error

// WithLogger sets the logger for authentication failures.
func WithLogger(logger *zap.Logger) Option {
	return func(ic *Interceptors) error {
		if logger == nil {
			return errors.New("grpcapi: logger must not be nil")
		}
		ic.logger = logger
		return nil
	}
}

// WithAudit sets the audit logger for permission decisions.
func WithAudit(l *audit.Logger) Option {
	return func(ic *Interceptors) error {
		if l == nil {
			return errors.New("grpcapi: audit logger must not be nil")
		}
		ic.audit = l
		return nil
	}
}

// WithMethodPermissions maps full method names to the permissions they require.
func WithMethodPermissions(perms map[string][]string) Option {
	return func(ic *Interceptors) error {
		for method, list := range perms {
			if !strings.HasPrefix(method, "/") {
				return errors.New("grpcapi: method names must be fully qualified")
			}
			ic.perms[method] = append([]string(nil), list...)
		}
		return nil
	}
}

func NewInterceptors(resolver *tenancy.ContextResolver, evaluator *auth.Evaluator, tokens *auth.TokenIssuer, opts ...Option) (*Interceptors, error) {
	if resolver == nil || evaluator == nil || tokens == nil {
		return nil, errors.New("grpcapi: resolver, evaluator and token issuer are required")
	}
	ic := &Interceptors{
		resolver:  resolver,
		evaluator: evaluator,
		tokens:    tokens,
		logger:    zap.NewNop(),
		perms:     map[string][]string{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(ic); err != nil {
			return nil, err
		}
	}
	if ic.audit == nil {
		ic.audit = audit.New(ic.logger)
	}
	return ic, nil
}

// Unary returns the unary server interceptor.
func (ic *Interceptors) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := ic.establish(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (ic *Interceptors) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := ic.establish(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &scopedStream{ServerStream: ss, ctx: ctx})
	}
}

type scopedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedStream) Context() context.Context { return s.ctx }

func (ic *Interceptors) establish(ctx context.Context, method string) (context.Context, error) {
	if strings.HasPrefix(method, healthMethodPrefix) || strings.HasPrefix(method, reflectionMethodPrefix) {
		return ctx, nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = audit.WithRequestID(ctx, ids.RequestID(first(md, requestIDKey)))

	userID, err := ic.authenticate(md)
	if err != nil {
		ic.logger.Debug("grpc authentication failed", zap.String("method", method), zap.Error(err))
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	ctx = auth.ContextWithUser(ctx, userID)

	tc := ic.resolver.Resolve(ctx, RequestFromMetadata(md, userID))
	ctx = tenancy.ContextWith(ctx, tc)

	perms := ic.perms[method]
	if len(perms) == 0 {
		return ctx, nil
	}
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	d := ic.evaluator.Evaluate(ctx, userID, tc.TenantID())
	err = d.Require(perms...)
	ic.audit.Decision(ctx, d, tc, perms, err == nil)
	switch {
	case err == nil:
		return auth.ContextWithDecision(ctx, d), nil
	case errors.Is(err, auth.ErrBackendUnavailable):
		return nil, status.Error(codes.Unavailable, "permissions could not be evaluated")
	default:
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}
}

func (ic *Interceptors) authenticate(md metadata.MD) (string, error) {
	raw := strings.TrimSpace(first(md, "authorization"))
	if raw == "" {
		return "", nil
	}
	const scheme = "bearer "
	if len(raw) <= len(scheme) || !strings.EqualFold(raw[:len(scheme)], scheme) {
		return "", auth.ErrUnauthenticated
	}
	claims, err := ic.tokens.ParseAndValidate(raw[len(scheme):])
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequestFromMetadata maps incoming metadata onto a resolution request. The
// :authority pseudo-header plays the role of the HTTP host.
func RequestFromMetadata(md metadata.MD, userID string) tenancy.Request {
	header := make(http.Header, len(md))
	for k, vs := range md {
		if strings.HasPrefix(k, ":") {
			continue
		}
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	host := first(md, ":authority")
	if host == "" {
		host = first(md, "host")
	}
	return tenancy.Request{Hostname: host, Header: header, UserID: userID}
}

func first(md metadata.MD, key string) string {
	if vs := md.Get(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}
