package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/conn"
	"github.com/matheus3301/wabot/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SessionService is the health service name that follows the backend link.
// The empty service name reports the daemon process itself.
const SessionService = session.HealthService

// Server manages the gRPC health endpoint on the instance's Unix domain socket.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger

	unsub func()
	stop  chan struct{}
	done  chan struct{}
}

// NewServer creates a gRPC server bound to the instance's Unix domain socket.
func NewServer(p Params, b *bus.Bus, logger *zap.Logger) (*Server, error) {
	socketPath := p.paths().Socket

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(SessionService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	ch, unsub := b.Subscribe(bus.KindStatusChanged, 64)
	s.unsub = unsub
	go s.follow(ch)
	return s, nil
}

func (s *Server) follow(ch <-chan bus.Event) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case evt := <-ch:
			change, ok := evt.Payload.(conn.StatusChange)
			if !ok {
				continue
			}
			st := healthpb.HealthCheckResponse_NOT_SERVING
			if change.To == conn.Connected {
				st = healthpb.HealthCheckResponse_SERVING
			}
			s.health.SetServingStatus(SessionService, st)
		}
	}
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.unsub()
	close(s.stop)
	<-s.done
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
