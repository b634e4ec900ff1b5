package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// UnaryLoggingInterceptor 记录每次 block 读取的耗时、偏移和返回大小
func UnaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []slog.Attr{
		slog.String("method", info.FullMethod),
		slog.Duration("dur", time.Since(start)),
	}
	if in, ok := req.(*wrapperspb.Int64Value); ok {
		attrs = append(attrs, slog.Int64("offset", in.GetValue()))
	}
	if out, ok := resp.(*wrapperspb.BytesValue); ok && out != nil {
		attrs = append(attrs, slog.Int("bytes", len(out.GetValue())))
	}

	code := status.Code(err)
	attrs = append(attrs, slog.String("code", code.String()))
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	slog.LogAttrs(ctx, levelFor(code), "block request", attrs...)
	return resp, err
}

// StreamLoggingInterceptor 流式方法只记录方法名和耗时
func StreamLoggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	code := status.Code(err)
	slog.LogAttrs(ss.Context(), levelFor(code), "block stream",
		slog.String("method", info.FullMethod),
		slog.Duration("dur", time.Since(start)),
		slog.String("code", code.String()),
	)
	return err
}

// levelFor 客户端造成的错误记 Warn，服务端内部错误记 Error
func levelFor(code codes.Code) slog.Level {
	switch code {
	case codes.OK:
		return slog.LevelDebug
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// UnaryRecoveryInterceptor 把 handler 里的 panic 转成 Internal 错误
func UnaryRecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicStatus(info.FullMethod, r)
		}
	}()
	return handler(ctx, req)
}

// StreamRecoveryInterceptor 同上，用于流式方法
func StreamRecoveryInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicStatus(info.FullMethod, r)
		}
	}()
	return handler(srv, ss)
}

func panicStatus(method string, p any) error {
	slog.Error("panic in block handler",
		slog.String("method", method),
		slog.Any("panic", p),
		slog.String("stack", string(debug.Stack())),
	)
	return status.Errorf(codes.Internal, "internal server error: panic recovered")
}
