// Package admission provides a gRPC ops transport.
package admission

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// GRPCTransport exposes health checking over gRPC so orchestrators can
// probe the process without the HTTP surface.
type GRPCTransport struct {
	addr  string
	lis   net.Listener
	srv   *grpc.Server
	ready func() bool
	cfg   grpcTransportConfig
	mu    sync.Mutex
}

type grpcTransportConfig struct {
	keepAlive time.Duration
	manager   *Manager
	logger    Logger
	metrics   Metrics
}

// NewGRPCTransport constructs a transport bound to an address.
func NewGRPCTransport(addr string, ready func() bool, cfg grpcTransportConfig) *GRPCTransport {
	if addr == "" {
		addr = ":9090"
	}
	if ready == nil {
		ready = func() bool { return false }
	}
	if cfg.keepAlive <= 0 {
		cfg.keepAlive = 60 * time.Second
	}
	return &GRPCTransport{addr: addr, ready: ready, cfg: cfg}
}

// Start begins serving gRPC requests.
func (t *GRPCTransport) Start() error {
	if t == nil {
		return errors.New("grpc transport is nil")
	}
	t.mu.Lock()
	listener := t.lis
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", t.addr)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		t.lis = listener
	}
	if t.srv == nil {
		opts := []grpc.ServerOption{
			grpc.ChainUnaryInterceptor(
				grpcRequestIDInterceptor(t.cfg.logger, t.cfg.metrics),
			),
			grpc.KeepaliveParams(keepalive.ServerParameters{Time: t.cfg.keepAlive}),
		}
		t.srv = grpc.NewServer(opts...)
		grpc_health_v1.RegisterHealthServer(t.srv, &grpcHealthServer{ready: t.ready, manager: t.cfg.manager})
	}
	srv := t.srv
	t.mu.Unlock()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown stops the gRPC server, waiting for in-flight calls.
func (t *GRPCTransport) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return ctx.Err()
	}
}

// Addr returns the bound listener address for testing.
func (t *GRPCTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lis == nil {
		return t.addr
	}
	return t.lis.Addr().String()
}

func grpcRequestIDInterceptor(logger Logger, metrics Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := uuid.NewString()
		start := time.Now()
		resp, err := handler(ctx, req)
		if metrics != nil {
			metrics.ObserveLatency("grpc", time.Since(start))
		}
		if logger != nil {
			fields := map[string]any{
				"method":      info.FullMethod,
				"request_id":  requestID,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
				logger.Error("grpc request error", fields)
			} else {
				logger.Debug("grpc request", fields)
			}
		}
		return resp, err
	}
}

// grpcHealthServer reports SERVING only when the app is started and the
// manager self-check passes.
type grpcHealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	ready   func() bool
	manager *Manager
}

func (s *grpcHealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: s.statusNow()}, nil
}

func (s *grpcHealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	last := s.statusNow()
	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stream.Context().Done():
			return status.Error(codes.Canceled, "watch canceled")
		case <-ticker.C:
			current := s.statusNow()
			if current == last {
				continue
			}
			last = current
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
		}
	}
}

func (s *grpcHealthServer) statusNow() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s.ready != nil && !s.ready() {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	if s.manager != nil && !s.manager.Healthy() {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}
