package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zarrvault/pkg/container"
	"zarrvault/pkg/server"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Scheme 是远端 block 服务的 URI scheme，形如 grpc://host:port
const Scheme = "grpc"

func init() {
	container.RegisterScheme(Scheme, readRemoteBlock)
}

// BlockClient 封装了与 block 服务的连接
type BlockClient struct {
	conn *grpc.ClientConn
}

// New 创建客户端
// 它只负责创建对象，连接在第一次调用时才真正建立
func New(addr string, opts ...grpc.DialOption) (*BlockClient, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(server.MaxMessageSize),
			grpc.MaxCallSendMsgSize(server.MaxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &BlockClient{conn: conn}, nil
}

// NewWithConn 复用一个已有的连接 (测试里用 bufconn)
func NewWithConn(conn *grpc.ClientConn) *BlockClient {
	return &BlockClient{conn: conn}
}

// ReadBlock 读取远端容器在 offset 处的 block
func (c *BlockClient) ReadBlock(ctx context.Context, offset int64) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, server.ReadBlockMethod, wrapperspb.Int64(offset), out); err != nil {
		return nil, fromStatus(err)
	}
	return out.GetValue(), nil
}

// Close 关闭底层连接
func (c *BlockClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// fromStatus 把状态码还原成容器包的哨兵错误，调用方可以继续用 errors.Is 判断
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.OutOfRange, codes.InvalidArgument:
		return fmt.Errorf("%w: %s", container.ErrInvalidBlock, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", container.ErrChecksum, st.Message())
	default:
		return err
	}
}

// readRemoteBlock 每次读取建立一次连接，读完就释放
func readRemoteBlock(ctx context.Context, uri string, offset int64) ([]byte, error) {
	addr := strings.TrimPrefix(uri, Scheme+"://")
	addr = strings.TrimSuffix(addr, "/")
	if addr == "" {
		return nil, fmt.Errorf("empty address in uri %q", uri)
	}
	c, err := New(addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.ReadBlock(ctx, offset)
}
