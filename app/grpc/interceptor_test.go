package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestRequestIDFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, "grpc-abc"))
	if got := requestIDFromMetadata(ctx); got != "grpc-abc" {
		t.Fatalf("expected grpc-abc, got %q", got)
	}
}

func TestRequestIDInterceptorRequiresHeader(t *testing.T) {
	interceptor := RequestIDInterceptor()

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing x-request-id, got %v", err)
	}
}

func TestRequestIDInterceptorUsesIncomingHeader(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, "grpc-fixed"))
	interceptor := RequestIDInterceptor()

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		if got := RequestIDFromContext(ctx); got != "grpc-fixed" {
			t.Fatalf("expected grpc-fixed, got %q", got)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecoveryInterceptorConvertsPanicToInternal(t *testing.T) {
	interceptor := RecoveryInterceptor()
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/logistics.CampaignProgress/Watch"}, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected codes.Internal, got %v", err)
	}
}

func TestLoggingInterceptorPassThrough(t *testing.T) {
	interceptor := LoggingInterceptor()
	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/logistics.CampaignProgress/Get"}, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context {
	return s.ctx
}

func TestStreamRequestIDInterceptorWrapsContext(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, "grpc-stream"))
	interceptor := StreamRequestIDInterceptor()

	err := interceptor(nil, &fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/logistics.CampaignProgress/Watch"}, func(_ interface{}, ss grpc.ServerStream) error {
		if got := RequestIDFromContext(ss.Context()); got != "grpc-stream" {
			t.Fatalf("expected grpc-stream, got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStreamRecoveryInterceptorConvertsPanicToInternal(t *testing.T) {
	interceptor := StreamRecoveryInterceptor()
	err := interceptor(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/logistics.CampaignProgress/Watch"}, func(interface{}, grpc.ServerStream) error {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected codes.Internal, got %v", err)
	}
}

func TestStreamFromUnaryRejectsBeforeHandler(t *testing.T) {
	deny := func(context.Context, interface{}, *grpc.UnaryServerInfo, grpc.UnaryHandler) (interface{}, error) {
		return nil, status.Error(codes.PermissionDenied, "no access")
	}
	called := false
	err := StreamFromUnary(deny)(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/logistics.CampaignProgress/Watch"}, func(interface{}, grpc.ServerStream) error {
		called = true
		return nil
	})
	if status.Code(err) != codes.PermissionDenied || called {
		t.Fatalf("expected PermissionDenied without handler call, got %v called=%v", err, called)
	}

	allow := func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(ctx, req)
	}
	err = StreamFromUnary(allow)(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, func(interface{}, grpc.ServerStream) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected handler call, got %v called=%v", err, called)
	}
}

func TestSkipUnaryBypassesMatchingMethods(t *testing.T) {
	interceptor := SkipUnary("/grpc.health.v1.Health/", RequestIDInterceptor())
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler); err != nil {
		t.Fatalf("expected health check to skip request id, got %v", err)
	}
	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/logistics.CampaignProgress/Get"}, handler); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for other methods, got %v", err)
	}
}

func TestSkipStreamBypassesMatchingMethods(t *testing.T) {
	interceptor := SkipStream("/grpc.health.v1.Health/", StreamRequestIDInterceptor())
	handler := func(interface{}, grpc.ServerStream) error { return nil }

	if err := interceptor(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}, handler); err != nil {
		t.Fatalf("expected health watch to skip request id, got %v", err)
	}
	if err := interceptor(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/logistics.CampaignProgress/Watch"}, handler); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for other methods, got %v", err)
	}
}
