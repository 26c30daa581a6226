package fanout

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
)

// Server owns the gRPC server hosting the fan-out service.
type Server struct {
	svc  *Service
	grpc *grpc.Server
	lis  net.Listener
}

func NewServer(svc *Service, opts ...grpc.ServerOption) *Server {
	s := &Server{svc: svc, grpc: grpc.NewServer(opts...)}
	RegisterRelayStreamServer(s.grpc, svc)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.stop(stopTimeout)
		return nil
	case err := <-errCh:
		return err
	}
}

// stop ends open calls, then waits up to timeout for them to drain before
// closing the remaining connections.
func (s *Server) stop(timeout time.Duration) {
	s.svc.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.grpc.Stop()
		<-done
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.stop(stopTimeout)
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
