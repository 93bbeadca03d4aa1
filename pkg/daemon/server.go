package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
)

// Config holds daemon configuration.
type Config struct {
	SocketPath string
	// StateDir holds the PID and status files.
	StateDir string
}

// Server is the pkgsized gRPC server.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	listener net.Listener
	service  *Service
}

// NewServer listens on the configured socket and registers svc.
func NewServer(cfg Config, svc *Service, opts ...grpc.ServerOption) (*Server, error) {
	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
			return nil, err
		}
	}

	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		grpc:     grpc.NewServer(opts...),
		listener: listener,
		service:  svc,
	}
	RegisterAnalyzerServer(srv.grpc, svc)

	logger.Info("listening", "socket", cfg.SocketPath)
	return srv, nil
}

// Service returns the registered service.
func (s *Server) Service() *Service {
	return s.service
}

// Serve starts the gRPC server. Blocks until stopped.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.listener)
}

// Close ends progress streams, stops the server after in-flight RPCs
// finish and removes the socket.
func (s *Server) Close() error {
	s.service.Close()
	s.grpc.GracefulStop()
	return os.RemoveAll(s.cfg.SocketPath)
}
