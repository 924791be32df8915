package middleware

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
)

// Metadata keys mirroring the HTTP identity headers.
const (
	MetadataAuthorization = "authorization"
	MetadataUserID        = "x-user-id"
	MetadataUserRole      = "x-user-role"
)

// Methods under these prefixes never require identity.
var publicGRPCPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

// UnaryAuthInterceptor attaches the caller identity to the handler context.
// With a nil verifier identity is read from x-user-id / x-user-role metadata.
func UnaryAuthInterceptor(verifier *TokenVerifier, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		for _, p := range publicGRPCPrefixes {
			if strings.HasPrefix(info.FullMethod, p) {
				return handler(ctx, req)
			}
		}

		md, _ := metadata.FromIncomingContext(ctx)
		if verifier == nil {
			if userID := first(md, MetadataUserID); userID != "" {
				role := domain.Role(strings.ToLower(first(md, MetadataUserRole)))
				ctx = WithIdentity(ctx, Identity{UserID: userID, Role: role})
			}
			return handler(ctx, req)
		}

		id, err := verifier.Verify(BearerToken(first(md, MetadataAuthorization)))
		if err != nil {
			log.Warn().Err(err).Str("method", info.FullMethod).Msg("Rejected unauthenticated gRPC call")
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(WithIdentity(ctx, id), req)
	}
}

// UnaryLoggingInterceptor logs each call with its resulting status code.
func UnaryLoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		code := status.Code(err)
		evt := log.Debug()
		if code != codes.OK {
			evt = log.Warn()
		}
		evt.Str("method", info.FullMethod).Str("code", code.String()).Msg("gRPC call")
		return resp, err
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
