package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
)

// UnaryServerInterceptor wraps a unary gRPC handler with a server span named
// after the full method, a no-op when tracing is disabled.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !Enabled() {
			return handler(ctx, req)
		}

		ctx, span := StartServerSpan(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			SetSpanError(span, err)
		} else {
			SetSpanOK(span)
		}
		return resp, err
	}
}

// StreamServerInterceptor wraps a streaming gRPC handler with a server span,
// covering GetTasks/TaskExecution/LaunchTask (§4.6).
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !Enabled() {
			return handler(srv, ss)
		}

		ctx, span := StartServerSpan(ss.Context(), info.FullMethod,
			attribute.Bool("rpc.grpc.client_stream", info.IsClientStream),
			attribute.Bool("rpc.grpc.server_stream", info.IsServerStream),
		)
		defer span.End()

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		if err != nil {
			SetSpanError(span, err)
		} else {
			SetSpanOK(span)
		}
		return err
	}
}

type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context { return s.ctx }
