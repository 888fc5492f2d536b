/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package server owns the listening sockets spec.md §4.1 describes — a
// plain/TLS TCP listener plus the SPEC_FULL.md §3 WebSocket addition — and
// wires each accepted connection into a c2s.Stream registered against a
// shared router.Router and eventloop.Loop.
package server

import (
	"crypto/tls"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/ortuman/xmppd/authdir"
	"github.com/ortuman/xmppd/c2s"
	"github.com/ortuman/xmppd/config"
	"github.com/ortuman/xmppd/eventloop"
	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/router"
	"github.com/ortuman/xmppd/transport"
	"github.com/pkg/errors"
)

// Server owns the accept loop(s) for one configured endpoint.
type Server struct {
	cfg    *config.Config
	tlsCfg *tls.Config
	router *router.Router
	dir    *authdir.Directory
	loop   *eventloop.Loop

	ln   net.Listener
	wsSv *http.Server
}

// New creates a Server bound to cfg, ready to Start. tlsCfg is nil when
// cfg.TLS.Enabled is false.
func New(cfg *config.Config, tlsCfg *tls.Config, r *router.Router, dir *authdir.Directory) *Server {
	return &Server{
		cfg:    cfg,
		tlsCfg: tlsCfg,
		router: r,
		dir:    dir,
		loop:   eventloop.New(),
	}
}

// LoadTLSConfig reads the certificate/key pair named by cfg, producing the
// *tls.Config New expects. Wrapped with pkg/errors for consistency with the
// rest of the ambient stack's error reporting.
func LoadTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertificatePath, cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "server: loading TLS certificate")
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// Start begins accepting connections. It returns an error if the plain
// listener cannot be opened; otherwise it blocks on the accept loop and
// returns nil once Shutdown closes the listener. The WebSocket listener (if
// enabled) runs on its own goroutine.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.ListenAddr, strconv.Itoa(s.cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "server: listening on %s", addr)
	}
	s.ln = ln
	log.Infof("server: listening for c2s connections at %s", addr)

	if s.cfg.WebSocket.Enabled {
		go s.startWebSocket()
	}
	return s.acceptLoop()
}

// acceptLoop implements spec.md §4.8's accept-failure policy: a single
// failed accept is logged and the loop continues; only the listener's own
// closure (Shutdown) ends it.
func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error(errors.Wrap(err, "server: accept failed"))
			continue
		}
		log.Infof("server: accepted connection from %s", conn.RemoteAddr())
		tr := transport.NewSocketTransport(conn)
		c2s.New(tr, s.tlsCfg, s.cfg, s.router, s.dir, s.loop)
	}
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"xmpp"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

func (s *Server) startWebSocket() {
	mux := http.NewServeMux()
	path := s.cfg.WebSocket.Path
	if path == "" {
		path = "/xmpp-websocket"
	}
	mux.HandleFunc(path, s.handleWebSocketUpgrade)

	addr := net.JoinHostPort(s.cfg.WebSocket.Addr, strconv.Itoa(s.cfg.WebSocket.Port))
	s.wsSv = &http.Server{Addr: addr, Handler: mux}
	log.Infof("server: listening for websocket connections at %s%s", addr, path)

	var err error
	if s.tlsCfg != nil {
		s.wsSv.TLSConfig = s.tlsCfg
		err = s.wsSv.ListenAndServeTLS("", "")
	} else {
		err = s.wsSv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Error(errors.Wrap(err, "server: websocket listener stopped"))
	}
}

func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(errors.Wrap(err, "server: websocket upgrade failed"))
		return
	}
	secure := r.TLS != nil
	tr := transport.NewWebSocketTransport(conn, secure)
	c2s.New(tr, nil, s.cfg, s.router, s.dir, s.loop)
}

// Shutdown stops accepting new connections on both listeners and begins
// draining the routing tables (spec.md §4.5).
func (s *Server) Shutdown() {
	s.router.BeginShutdown()
	if s.ln != nil {
		s.ln.Close()
	}
	if s.wsSv != nil {
		s.wsSv.Close()
	}
}

