package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Server is an embedded NATS server with JetStream enabled, used when the
// process hosts the match state itself instead of joining an external cluster.
type Server struct {
	ns *server.Server

	startupTimeout time.Duration
	host           string
	port           int
	storeDir       string
}

// NewServer configures an embedded server. It does not start listening until Start.
func NewServer(opts ...Opt) (*Server, error) {
	s := &Server{
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
		port:           server.DEFAULT_PORT,
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:      s.host,
		Port:      s.port,
		JetStream: true,
		StoreDir:  s.storeDir,
		NoSigs:    true, // Let the application handle signals
	})
	if err != nil {
		return nil, err
	}
	s.ns = ns

	return s, nil
}

// Start launches the server and blocks until it accepts connections.
func (s *Server) Start(ctx context.Context) error {
	s.ns.Start()

	if !s.ns.ReadyForConnections(s.startupTimeout) {
		s.ns.Shutdown()
		return fmt.Errorf("nats server not ready for connections")
	}

	slog.InfoContext(ctx, "nats server listening", "addr", s.ns.Addr().String(), "jetstream", s.ns.JetStreamEnabled())
	return nil
}

// ClientURL returns the URL clients should connect to.
func (s *Server) ClientURL() string {
	return s.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *Server) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
