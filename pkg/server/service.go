package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"zarrvault/pkg/container"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "zarrvault.v1.BlockService"
	ReadBlockMethod = "/" + ServiceName + "/ReadBlock"

	// MaxMessageSize 是最大 block 加上 protobuf 封装的余量
	MaxMessageSize = container.MaxBlockSize + 64<<10
)

// BlockServer 按偏移读取容器中的 block
// 请求和响应都使用 protobuf 的 wrapper 类型，不需要额外的 .proto 文件
type BlockServer interface {
	ReadBlock(ctx context.Context, offset *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error)
}

// ServiceDesc 手写的服务描述，等价于 protoc 生成的 _grpc.pb.go
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BlockServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ReadBlock",
			Handler:    readBlockHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zarrvault/v1/block.proto",
}

func readBlockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockServer).ReadBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ReadBlockMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BlockServer).ReadBlock(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

// Register 注册 BlockService
func Register(s grpc.ServiceRegistrar, srv BlockServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewGRPCServer 创建挂好拦截器的 gRPC Server
// 注意顺序：Recovery 在最外层，保证 logging 里的 panic 也能被捕获
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryRecoveryInterceptor, UnaryLoggingInterceptor),
		grpc.ChainStreamInterceptor(StreamRecoveryInterceptor, StreamLoggingInterceptor),
		grpc.MaxSendMsgSize(MaxMessageSize),
		grpc.MaxRecvMsgSize(MaxMessageSize),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// BlockService 对外提供一个容器文件的 block
type BlockService struct {
	uri string
}

var _ BlockServer = (*BlockService)(nil)

// NewBlockService 校验容器后创建服务
func NewBlockService(ctx context.Context, path string) (*BlockService, error) {
	f, err := container.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	slog.Info("serving container", slog.String("uri", f.URI()), slog.Int("blocks", f.NumBlocks()))
	return &BlockService{uri: f.URI()}, nil
}

func (s *BlockService) ReadBlock(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error) {
	data, err := container.ReadBlock(ctx, s.uri, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// toStatus 把领域错误映射为 gRPC 状态码
func toStatus(err error) error {
	switch {
	case errors.Is(err, container.ErrInvalidBlock):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, container.ErrChecksum):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
