package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

// Server wraps the gRPC server exposing the standard health service.
type Server struct {
	gsrv        *grpc.Server
	health      *health.Server
	logger      domain.Logger
	cfgProvider config.Provider
	appCtx      context.Context
	cancelCtx   context.CancelFunc
}

// NewServer creates a new gRPC server instance. Every service starts as NOT_SERVING
// until SetServing is called.
func NewServer(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) (*Server, error) {
	gsrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gsrv, hs)
	reflection.Register(gsrv)

	serviceName := cfgProvider.Get().App.ServiceName
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	serverLifecycleCtx, serverLifecycleCancel := context.WithCancel(appCtx)
	return &Server{
		gsrv:        gsrv,
		health:      hs,
		logger:      logger,
		cfgProvider: cfgProvider,
		appCtx:      serverLifecycleCtx,
		cancelCtx:   serverLifecycleCancel,
	}, nil
}

// SetServing flips the overall and per-service health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.cfgProvider.Get().App.ServiceName, status)
}

// Start listens on the configured port and serves in a new goroutine.
func (s *Server) Start() error {
	grpcPort := s.cfgProvider.Get().Server.GRPCPort
	if grpcPort == 0 {
		s.logger.Warn(s.appCtx, "gRPC port is not configured or is 0. gRPC server will not start.")
		return errors.New("gRPC port not configured")
	}
	addr := fmt.Sprintf(":%d", grpcPort)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error(s.appCtx, "Failed to listen for gRPC", "address", addr, "error", err.Error())
		return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
	}
	s.logger.Info(s.appCtx, "gRPC server starting", "address", addr)

	safego.Execute(s.appCtx, s.logger, "GRPCServerServe", func() {
		if err := s.gsrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error(s.appCtx, "gRPC server failed to serve", "error", err.Error())
		}
		s.cancelCtx()
	})

	safego.Execute(s.appCtx, s.logger, "GRPCServerContextWatcher", func() {
		<-s.appCtx.Done()
		s.health.Shutdown()
		s.gsrv.GracefulStop()
		s.logger.Info(context.Background(), "gRPC server gracefully stopped")
	})
	return nil
}

// GracefulStop cancels the server context, which stops the server.
func (s *Server) GracefulStop() {
	s.cancelCtx()
}
