// Package server exposes one scoring session over gRPC.
//
// The session's network is single-threaded; ScoreService serializes requests
// onto it. GRPCServer adds the standard health service and a unary
// interceptor bounding each request by server.request_timeout.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/solatis/scorekeeper/internal/core/config"
)

// GRPCServer owns the grpc.Server and its health status.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config config.ServerConfig
	log    *slog.Logger
}

// NewGRPCServer registers service and reports it SERVING: the session is
// already built when the server is created.
func NewGRPCServer(cfg config.ServerConfig, service *ScoreService, log *slog.Logger) (*GRPCServer, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			UnaryInterceptor(log, cfg.RequestTimeout),
		),
	}

	server := grpc.NewServer(opts...)
	RegisterScoreServiceServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
		log:    log,
	}, nil
}

// Start binds host:port and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener until Shutdown.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.log.Info("score service listening", "addr", listener.Addr().String())
	return s.server.Serve(listener)
}

// Shutdown reports NOT_SERVING, then drains in-flight requests. When ctx
// ends first the remaining connections are closed.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("graceful shutdown interrupted, forced stop: %w", ctx.Err())
	}
}

// UnaryInterceptor bounds every request by timeout and logs its outcome.
func UnaryInterceptor(log *slog.Logger, timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		attrs := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		if err != nil {
			log.Warn("request failed", append(attrs, "error", err)...)
		} else {
			log.Debug("request served", attrs...)
		}
		return resp, err
	}
}
