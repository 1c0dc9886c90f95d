package irc

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Dialer opens the byte stream a Conn runs over. Implementations include
// plain TCP, an SSH-tunnelled dialer and IRC over WebSocket.
type Dialer interface {
	// Dial connects to address, a "host:port" pair.
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// TLSDialer is implemented by transports that negotiate TLS themselves
// rather than running it over the plain stream, such as WebSocket.
// The returned connection must implement ConnectionState.
type TLSDialer interface {
	DialTLS(ctx context.Context, address string, config *tls.Config) (net.Conn, error)
}

// connectionStater reports the TLS state of a connection.
type connectionStater interface {
	ConnectionState() tls.ConnectionState
}

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return dialer.DialContext(ctx, "tcp", address)
}

// SSHDialer reaches the server through an established SSH connection,
// for servers only reachable from a bastion host.
type SSHDialer struct {
	Client *ssh.Client
}

// Dial opens a direct-tcpip channel to address. A channel that opens after
// ctx is done is closed.
func (d *SSHDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	if d.Client == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "ssh dialer has no client")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := d.Client.Dial("tcp", address)
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// WebSocketDialer carries IRC lines in WebSocket text frames, the way
// Twitch serves chat on irc-ws.chat.twitch.tv. Each write is sent as one
// frame; frames are read back as a continuous stream.
type WebSocketDialer struct {
	// Path is the request path, "/" when empty.
	Path             string
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Dial connects to ws://address.
func (d *WebSocketDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	return d.dial(ctx, "ws", address, nil)
}

// DialTLS connects to wss://address using config for the TLS handshake.
func (d *WebSocketDialer) DialTLS(ctx context.Context, address string, config *tls.Config) (net.Conn, error) {
	return d.dial(ctx, "wss", address, config)
}

func (d *WebSocketDialer) dial(ctx context.Context, scheme, address string, config *tls.Config) (net.Conn, error) {
	path := d.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: scheme, Host: address, Path: path}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  config,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return &wsConn{Conn: conn}, nil
}

// wsConn adapts a WebSocket connection to net.Conn.
type wsConn struct {
	*websocket.Conn

	readMu sync.Mutex
	reader io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// ConnectionState returns the state of the wss handshake. It is the zero
// value for ws connections.
func (c *wsConn) ConnectionState() tls.ConnectionState {
	if tc, ok := c.NetConn().(*tls.Conn); ok {
		return tc.ConnectionState()
	}
	return tls.ConnectionState{}
}
