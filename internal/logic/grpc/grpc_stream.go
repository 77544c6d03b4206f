package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Syoongy/sniffer/internal/config"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/logx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// TxUpdate 一笔推送交易及其 slot
type TxUpdate struct {
	Slot       uint64
	Tx         *pb.SubscribeUpdateTransactionInfo
	ReceivedAt time.Time
}

type GrpcStreamManager struct {
	mu                    sync.Mutex                // 互斥锁，保护并发安全
	conn                  *grpc.ClientConn          // gRPC 连接对象
	client                pb.GeyserClient           // gRPC 客户端
	stream                pb.Geyser_SubscribeClient // gRPC 订阅流
	stopped               bool                      // 标记是否已经停止
	reconnectAttempts     int                       // 已重连次数
	reconnectInterval     time.Duration             // 重连基础间隔
	xToken                string                    // 认证用的 x-token
	streamPingIntervalSec int                       // Stream心跳包发送间隔（秒）
	txChan                chan<- *TxUpdate          // 交易数据通道
	connCtx               context.Context           // 当前连接的 context
	connCancel            context.CancelFunc        // 当前连接的 cancel 函数
	recvTimeout           time.Duration             // 无任何推送（含 pong）的最长时间
	lastRecv              atomic.Int64              // 最近一次收到推送的时间（UnixNano）
	sendTimeout           time.Duration             // gRPC发送超时时间
	request               *pb.SubscribeRequest      // 订阅请求
	logx.Logger
}

func NewGrpcStreamManager(grpcConf config.GrpcConfig, programIDs []string, txChan chan<- *TxUpdate) (*GrpcStreamManager, error) {
	if len(programIDs) == 0 {
		return nil, errors.New("no program to subscribe")
	}

	configTls := &tls.Config{
		InsecureSkipVerify: true,
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(grpcConf.ConnectTimeoutSec)*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		grpcConf.Endpoint,
		grpc.WithTransportCredentials(credentials.NewTLS(configTls)),
		grpc.WithInitialWindowSize(int32(grpcConf.InitialWindowSize)),
		grpc.WithInitialConnWindowSize(int32(grpcConf.InitialConnWindowSize)),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(grpcConf.MaxCallSendMsgSize),
			grpc.MaxCallRecvMsgSize(grpcConf.MaxCallRecvMsgSize),
		),
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(grpcConf.KeepalivePingIntervalSec) * time.Second,
			Timeout:             time.Duration(grpcConf.KeepalivePingTimeoutSec) * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return newStreamManager(conn, pb.NewGeyserClient(conn), grpcConf, programIDs, txChan), nil
}

func newStreamManager(conn *grpc.ClientConn, client pb.GeyserClient, grpcConf config.GrpcConfig, programIDs []string, txChan chan<- *TxUpdate) *GrpcStreamManager {
	recvTimeout := time.Duration(grpcConf.RecvTimeoutSec) * time.Second
	if recvTimeout <= 0 {
		recvTimeout = 60 * time.Second
	}
	sendTimeout := time.Duration(grpcConf.SendTimeoutSec) * time.Second
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	pingSec := grpcConf.StreamPingIntervalSec
	if pingSec <= 0 {
		pingSec = 10
	}
	return &GrpcStreamManager{
		conn:                  conn,
		client:                client,
		reconnectInterval:     time.Duration(grpcConf.ReconnectIntervalSec) * time.Second,
		xToken:                grpcConf.XToken,
		streamPingIntervalSec: pingSec,
		txChan:                txChan,
		recvTimeout:           recvTimeout,
		sendTimeout:           sendTimeout,
		request:               buildSubscribeRequest(programIDs, grpcConf.IncludeFailed),
		Logger:                logx.WithContext(context.Background()).WithFields(logx.Field("service", "grpc_stream")),
	}
}

func (m *GrpcStreamManager) Start() {
	m.mustConnect()
}

func (m *GrpcStreamManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// 内部循环直到连接成功
func (m *GrpcStreamManager) mustConnect() {
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		attempts := m.reconnectAttempts
		m.mu.Unlock()

		if attempts > 0 {
			if attempts > 3 {
				time.Sleep(m.reconnectInterval * 2)
			} else {
				time.Sleep(m.reconnectInterval)
			}
		}
		m.Infof("[grpc::mustConnect] connecting, attempt %d", attempts+1)
		m.mu.Lock()
		m.reconnectAttempts++
		m.mu.Unlock()

		err := m.connect()
		if err == nil {
			return
		}
		m.Errorf("[grpc::mustConnect] connect failed: %v, will retry", err)
	}
}

// buildSubscribeRequest 订阅涉及任一被追踪程序的交易，投票交易总是排除
func buildSubscribeRequest(programIDs []string, includeFailed bool) *pb.SubscribeRequest {
	filter := &pb.SubscribeRequestFilterTransactions{
		Vote:           boolPtr(false),
		AccountInclude: append([]string(nil), programIDs...),
	}
	if !includeFailed {
		filter.Failed = boolPtr(false)
	}
	commitment := pb.CommitmentLevel_CONFIRMED
	return &pb.SubscribeRequest{
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			"sniffer": filter,
		},
		Commitment: &commitment,
	}
}

// connect 只尝试一次连接
func (m *GrpcStreamManager) connect() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return errors.New("manager is stopped")
	}
	defer m.mu.Unlock()

	// 先关闭旧的 context，优雅退出旧 goroutine
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.connCtx, m.connCancel = context.WithCancel(context.Background())

	metaCtx := metadata.NewOutgoingContext(
		m.connCtx,
		metadata.New(map[string]string{"x-token": m.xToken}),
	)
	stream, err := m.client.Subscribe(metaCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := sendWithTimeout(m.connCtx, stream.Send, m.request, m.sendTimeout); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	m.stream = stream
	m.reconnectAttempts = 0
	m.Infof("[grpc::connect] connection established, programs=%v",
		m.request.Transactions["sniffer"].AccountInclude)

	go m.pingLoop(m.connCtx, stream)
	go m.recvLoop(m.connCtx, stream)
	return nil
}

// recvLoop 任何推送（含 pong）都刷新 lastRecv；流出错即重连，静默超时由 pingLoop 检测
func (m *GrpcStreamManager) recvLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	m.lastRecv.Store(time.Now().UnixNano())
	for {
		update, err := stream.Recv()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.Infof("[grpc::recvLoop] stream closed by server (EOF), will reconnect")
			} else {
				m.Errorf("[grpc::recvLoop] stream error: %v, will reconnect", err)
			}
			m.reconnect()
			return
		}

		now := time.Now()
		m.lastRecv.Store(now.UnixNano())
		if !m.handleUpdate(ctx, update, now) {
			return
		}
	}
}

// handleUpdate 返回 false 表示 ctx 已结束
func (m *GrpcStreamManager) handleUpdate(ctx context.Context, update *pb.SubscribeUpdate, now time.Time) bool {
	u, ok := update.GetUpdateOneof().(*pb.SubscribeUpdate_Transaction)
	if !ok || u.Transaction == nil || u.Transaction.Transaction == nil {
		return true // pong 等其他推送只用于保活
	}
	select {
	case m.txChan <- &TxUpdate{Slot: u.Transaction.Slot, Tx: u.Transaction.Transaction, ReceivedAt: now}:
		return true
	case <-ctx.Done():
		return false
	}
}

// 带超时的 Send
func sendWithTimeout[T any](ctx context.Context, sendFunc func(T) error, req T, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sendFunc(req)
	}()

	select {
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	case err := <-done:
		return err
	}
}

// 心跳：服务端回 pong，同时检测连接是否静默超过 recvTimeout
func (m *GrpcStreamManager) pingLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	ticker := time.NewTicker(time.Duration(m.streamPingIntervalSec) * time.Second)
	defer ticker.Stop()
	var id int32
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if m.idle(now) {
				m.Errorf("[grpc::pingLoop] no update for %v, reconnecting", m.recvTimeout)
				m.reconnect()
				return
			}
			id++
			pingReq := &pb.SubscribeRequest{
				Ping: &pb.SubscribeRequestPing{Id: id},
			}
			if err := sendWithTimeout(ctx, stream.Send, pingReq, m.sendTimeout); err != nil {
				m.Errorf("[grpc::pingLoop] ping failed: %v", err)
			}
		}
	}
}

func (m *GrpcStreamManager) idle(now time.Time) bool {
	last := m.lastRecv.Load()
	return last > 0 && now.Sub(time.Unix(0, last)) > m.recvTimeout
}

func (m *GrpcStreamManager) reconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.mu.Unlock()

	go m.mustConnect()
}

func boolPtr(b bool) *bool {
	return &b
}
