package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptor.
type InterceptorConfig struct {
	// RequireAuth rejects requests without a uid in metadata. When false,
	// requests proceed and UserIDFromContext returns "".
	RequireAuth bool

	// PublicMethods exempts full method names ("/pkg.Service/Method") from
	// the RequireAuth check.
	PublicMethods map[string]bool
}

// NewPublicMethodsConfig requires auth everywhere except the named methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	cfg := &InterceptorConfig{
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		cfg.PublicMethods[method] = true
	}
	return cfg
}

// UnaryAuthInterceptor enforces the InterceptorConfig on unary calls.
func UnaryAuthInterceptor(cfg *InterceptorConfig) grpc.UnaryServerInterceptor {
	if cfg == nil {
		cfg = NewPublicMethodsConfig()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.RequireAuth && !cfg.PublicMethods[info.FullMethod] {
			if UserIDFromContext(ctx) == "" {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor enforces the InterceptorConfig on streaming calls.
func StreamAuthInterceptor(cfg *InterceptorConfig) grpc.StreamServerInterceptor {
	if cfg == nil {
		cfg = NewPublicMethodsConfig()
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.RequireAuth && !cfg.PublicMethods[info.FullMethod] {
			if UserIDFromContext(ss.Context()) == "" {
				return status.Error(codes.Unauthenticated, "authentication required")
			}
		}
		return handler(srv, ss)
	}
}
