// Package server implements §4F: the TCP accept loop, the bearer-token auth
// state machine, per-connection line framing, the per-connection event
// subscriber, and the request-concurrency semaphore. It is the only package
// that touches the wire directly; everything else is reached through
// internal/dispatcher.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/workspace/codexmonitord/internal/dispatcher"
	"github.com/workspace/codexmonitord/internal/eventbus"
)

// maxConcurrentRequests bounds how many RPC jobs a single connection may
// have in flight at once (§4F: "suggested capacity: tens").
const maxConcurrentRequests = 32

// Server owns the listener and every live connection's teardown.
type Server struct {
	listen         string
	token          string
	insecureNoAuth bool

	dispatcher *dispatcher.Dispatcher
	bus        *eventbus.Bus
	log        *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
}

// Config bundles the construction-time parameters of Server.
type Config struct {
	Listen         string
	Token          string
	InsecureNoAuth bool
	Dispatcher     *dispatcher.Dispatcher
	Bus            *eventbus.Bus
	Log            *slog.Logger
}

// New constructs a Server bound to addr but does not yet listen.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		listen:         cfg.Listen,
		token:          cfg.Token,
		insecureNoAuth: cfg.InsecureNoAuth,
		dispatcher:     cfg.Dispatcher,
		bus:            cfg.Bus,
		log:            log,
		conns:          make(map[*conn]struct{}),
	}
}

// Start binds the listener and runs the accept loop until it is closed by
// Stop or the listener errors. It blocks the calling goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("daemon listening", "addr", ln.Addr().String())
	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.listener == nil
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}
		c := s.newConn(nc)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.serve(c)
	}
}

// Addr returns the listener's bound address, or "" before Start has bound
// one. Useful for tests and logging when Listen names an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) serve(c *conn) {
	c.run()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Stop closes the listener and every live connection. Sessions and the
// registry are unaffected (§4F: "client disconnects do not touch them").
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) newConn(nc net.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		server:  s,
		nc:      nc,
		ctx:     ctx,
		cancel:  cancel,
		outCh:   make(chan []byte, 256),
		sem:     make(chan struct{}, maxConcurrentRequests),
		authed:  s.insecureNoAuth,
	}
}
