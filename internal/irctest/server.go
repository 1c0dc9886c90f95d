// Package irctest provides a loopback IRC server and certificate helpers
// for testing clients.
package irctest

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// ioTimeout bounds every read and write a Peer performs.
const ioTimeout = 5 * time.Second

// Handler serves one accepted client connection.
// The connection is closed when the handler returns.
type Handler func(peer *Peer)

// Server is a TCP server on 127.0.0.1 that hands every accepted connection
// to a Handler on its own goroutine.
type Server struct {
	listener net.Listener
	handler  Handler
	t        testing.TB

	mu       sync.Mutex
	shutdown bool
	peers    []*Peer
	wg       sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	tlsConfig *tls.Config
}

// TLSOption serves TLS with config instead of plain TCP.
func TLSOption(config *tls.Config) ServerOption {
	return func(o *serverOptions) {
		o.tlsConfig = config
	}
}

// NewServer starts serving handler on an ephemeral loopback port. The
// server is closed when the test finishes.
func NewServer(t testing.TB, handler Handler, opts ...ServerOption) *Server {
	t.Helper()

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if o.tlsConfig != nil {
		listener = tls.NewListener(listener, o.tlsConfig)
	}

	s := &Server{listener: listener, handler: handler, t: t}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() { _ = s.Close() })

	return s
}

// serve accepts connections until the server is closed.
func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				return
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.t.Logf("irctest: accept: %v", err)
			return
		}

		peer := newPeer(conn)
		s.mu.Lock()
		s.peers = append(s.peers, peer)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer peer.Close()

			if err := peer.handshake(); err != nil {
				s.t.Logf("irctest: tls handshake: %v", err)
				return
			}
			s.handler(peer)
		}()
	}
}

// Close stops accepting, closes every open peer and waits for the handlers
// to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	peers := s.peers
	s.mu.Unlock()

	err := s.listener.Close()
	for _, p := range peers {
		_ = p.Close()
	}
	s.wg.Wait()

	return err
}

// Addr returns the listener's network address.
func (s *Server) Addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}

// Host returns the listening IP address.
func (s *Server) Host() string {
	return s.Addr().IP.String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.Addr().Port
}

// Peer is the server side of one client connection.
type Peer struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

func newPeer(conn net.Conn) *Peer {
	return &Peer{conn: conn, reader: bufio.NewReader(conn)}
}

// handshake completes the TLS handshake up front so that clients see it
// finish even when the handler only writes.
func (p *Peer) handshake() error {
	tc, ok := p.conn.(*tls.Conn)
	if !ok {
		return nil
	}
	_ = tc.SetDeadline(time.Now().Add(ioTimeout))
	defer tc.SetDeadline(time.Time{})
	return tc.Handshake()
}

// ReadLine returns the next line sent by the client without its CRLF.
func (p *Peer) ReadLine() (string, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ExpectLine reads lines until one equal to want arrives.
func (p *Peer) ExpectLine(want string) error {
	for {
		line, err := p.ReadLine()
		if err != nil {
			return err
		}
		if line == want {
			return nil
		}
	}
}

// Discard reads and drops everything the client sends until the connection
// ends, without a deadline.
func (p *Peer) Discard() error {
	_ = p.conn.SetReadDeadline(time.Time{})
	_, err := io.Copy(io.Discard, p.reader)
	return err
}

// WriteLine sends line followed by CRLF.
func (p *Peer) WriteLine(line string) error {
	return p.Write(line + "\r\n")
}

// Write sends raw as is, letting tests split lines across writes.
func (p *Peer) Write(raw string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err := p.conn.Write([]byte(raw))
	return err
}

// ConnectionState returns the TLS state of the peer, false on plain TCP.
func (p *Peer) ConnectionState() (tls.ConnectionState, bool) {
	tc, ok := p.conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

// Close closes the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
