package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes grpc.health.v1 and mirrors the readiness checks into
// the overall serving status.
type GRPCServer struct {
	srv     *grpc.Server
	health  *health.Server
	checker *Checker
	logger  zerolog.Logger
}

func NewGRPCServer(checker *Checker, logger *zerolog.Logger) *GRPCServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	g := &GRPCServer{
		srv:     grpc.NewServer(),
		health:  health.NewServer(),
		checker: checker,
		logger:  logger.With().Str("component", "grpc_health").Logger(),
	}
	healthpb.RegisterHealthServer(g.srv, g.health)
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// Refresh runs the readiness checks and updates the serving status.
func (g *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.checker.Ready(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("Readiness check failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
}

// Serve accepts connections on lis, refreshing the status every interval,
// until ctx is done. On return every service reports NOT_SERVING.
func (g *GRPCServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	g.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.srv.GracefulStop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()

	g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return g.srv.Serve(lis)
}

// ListenAndServe listens on port and calls Serve.
func (g *GRPCServer) ListenAndServe(ctx context.Context, port int, interval time.Duration) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return g.Serve(ctx, lis, interval)
}
