package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/middleware"
)

// forwardMetadata propagates the caller's bearer token and identity
// metadata from an incoming request to outgoing calls, so the approval
// service authorizes the original user rather than this process.
func forwardMetadata(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if in, ok := metadata.FromIncomingContext(ctx); ok {
		out, _ := metadata.FromOutgoingContext(ctx)
		out = out.Copy()
		for _, key := range []string{middleware.MetadataAuthorization, middleware.MetadataUserID, middleware.MetadataUserRole} {
			if vals := in.Get(key); len(vals) > 0 && len(out.Get(key)) == 0 {
				out.Set(key, vals...)
			}
		}
		ctx = metadata.NewOutgoingContext(ctx, out)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// WithBearerToken attaches a bearer token to outgoing calls made with ctx.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, middleware.MetadataAuthorization, "Bearer "+token)
}
