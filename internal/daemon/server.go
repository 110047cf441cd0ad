package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/matheus3301/simchat/internal/api"
	"github.com/matheus3301/simchat/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ErrSocketInUse is returned when another process answers on the control
// socket.
var ErrSocketInUse = errors.New("control socket in use")

// Server exposes the engine service on the profile's Unix socket.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	path   string
	logger *zap.Logger

	started bool
	done    chan struct{}
}

// NewServer binds the control socket, replacing a stale socket file left
// by a crashed daemon. The socket is readable only by the owner.
func NewServer(p Params, logger *zap.Logger, svc *api.Service) (*Server, error) {
	path := p.SocketPath
	if path == "" {
		path = session.SocketPath(p.ProfileName)
	}
	if err := clearStaleSocket(path); err != nil {
		return nil, err
	}

	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = lis.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}

	gs := grpc.NewServer()
	api.Register(gs, svc)
	return &Server{
		grpc:   gs,
		lis:    lis,
		path:   path,
		logger: logger.Named("control"),
		done:   make(chan struct{}),
	}, nil
}

func clearStaleSocket(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if c, err := net.DialTimeout("unix", path, 200*time.Millisecond); err == nil {
		_ = c.Close()
		return fmt.Errorf("%w: %s", ErrSocketInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	s.logger.Info("serving", zap.String("socket", s.path))
	s.started = true
	go func() {
		defer close(s.done)
		if err := s.grpc.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("serve", zap.Error(err))
		}
	}()
}

// Stop drains in-flight calls until ctx is done, then cuts open streams
// and removes the socket file. Start and Stop are not safe to call
// concurrently.
func (s *Server) Stop(ctx context.Context) {
	if !s.started {
		_ = s.lis.Close()
		_ = os.Remove(s.path)
		return
	}
	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("forcing stop with open streams")
		s.grpc.Stop()
		<-drained
	}
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	_ = os.Remove(s.path)
	s.logger.Info("stopped")
}
