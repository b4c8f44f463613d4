package broker

import "time"

// Opt configures a Server before it is created.
type Opt func(*Server)

// WithStartTimeout bounds how long Start waits for the listener to accept clients.
func WithStartTimeout(d time.Duration) Opt {
	return func(s *Server) { s.startupTimeout = d }
}

// WithHost sets the listen address.
func WithHost(host string) Opt {
	return func(s *Server) { s.host = host }
}

// WithPort sets the client port; -1 lets the server pick a free one.
func WithPort(port int) Opt {
	return func(s *Server) { s.port = port }
}

// WithStoreDir sets where JetStream keeps its state.
func WithStoreDir(dir string) Opt {
	return func(s *Server) { s.storeDir = dir }
}
