// Package health exposes readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key for the analysis pipeline.
const ServiceName = "rizzcoach.Analysis"

// Server wraps a gRPC health server and mirrors its status for HTTP checks.
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	serving atomic.Bool
}

// New creates a health server reporting SERVING.
func New() *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(true)
	return s
}

// SetServing updates the overall and analysis service status.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.serving.Store(ok)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serving reports the current readiness.
func (s *Server) Serving() bool {
	return s.serving.Load()
}

// ReportFatal marks the service NOT_SERVING after an unrecoverable error.
func (s *Server) ReportFatal(err error) {
	slog.Error("Fatal error reported, marking service not serving", "error", err)
	s.SetServing(false)
}

// Serve accepts gRPC connections on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
