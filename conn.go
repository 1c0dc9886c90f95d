// Package irc provides a line-oriented IRC client for Go.
// It parses and serializes protocol messages, runs a connection over TCP,
// TLS, WebSocket or an SSH tunnel, delivers received messages to
// subscribers from a background goroutine and correlates sent commands
// with the replies that follow them.
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// State is the lifecycle state of a Conn.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSecured
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSecured:
		return "secured"
	case StateClosing:
		return "closing"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Default configuration values.
const (
	defaultReplyQueueSize = 64
	defaultReplyTimeout   = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultKeepAlive      = 10 * time.Second
	// minMessageMaxSize is the longest line RFC 1459 allows.
	minMessageMaxSize = 512
	tracerName        = "github.com/Zereker/irc"
)

// Conn is a client connection to an IRC server.
//
// A Conn is opened with Open and torn down with Close; it may be opened
// again afterwards. While open, one background goroutine reads the
// transport, emits a MessageReceived notification per message and queues
// every batch for SendAndAwaitReply.
type Conn struct {
	opts   options
	logger Logger
	events events

	state atomic.Int32

	mu   sync.Mutex
	sess *session

	writeMu sync.Mutex

	// inflight allows one SendAndAwaitReply at a time; replies carry no
	// correlation identifier, so concurrent callers would race for batches.
	inflight *semaphore.Weighted
}

// session is the transport state of one Open.
type session struct {
	conn    net.Conn
	writer  *bufio.Writer
	name    string
	address string
	port    int
	secured *Secured // nil on plain connections

	cancel  context.CancelFunc
	group   *errgroup.Group
	replies chan []*Message
	done    chan struct{}
	err     error // terminal receive error, set before done is closed

	// interrupts counts read deadlines forced by cancelled reads that the
	// receive loop has not yet recovered from.
	interrupts atomic.Int32
}

// takeInterrupt consumes one forced read deadline, if any.
func (s *session) takeInterrupt() bool {
	for {
		n := s.interrupts.Load()
		if n <= 0 {
			return false
		}
		if s.interrupts.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// NewConn creates a disconnected client.
// It applies the provided options and validates them before returning.
func NewConn(opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return &Conn{
		opts:     opts,
		logger:   opts.logger,
		inflight: semaphore.NewWeighted(1),
	}, nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = DefaultReceiveBufferSize
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxLineLength
	}

	if opts.maxReadLength < minMessageMaxSize {
		return errors.Wrapf(ErrInvalidArgument, "message max size %d is below %d bytes", opts.maxReadLength, minMessageMaxSize)
	}

	if opts.replyQueueSize <= 0 {
		opts.replyQueueSize = defaultReplyQueueSize
	}

	if opts.replyTimeout <= 0 {
		opts.replyTimeout = defaultReplyTimeout
	}

	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}

	if opts.codec == nil {
		codec := NewLineCodec(DefaultLineDelimiter, opts.encoding)
		codec.maxLineLength = opts.maxReadLength
		opts.codec = codec
	}

	if opts.dialer == nil {
		opts.dialer = &TCPDialer{KeepAlive: defaultKeepAlive}
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	return nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether a transport is open.
func (c *Conn) IsConnected() bool {
	s := c.State()
	return s == StateConnected || s == StateSecured
}

// IsSecure reports whether the connection runs over TLS that is encrypted,
// authenticated and mutually authenticated.
func (c *Conn) IsSecure() bool {
	if c.State() != StateSecured {
		return false
	}
	s := c.session()
	return s != nil && s.secured != nil &&
		s.secured.IsEncrypted && s.secured.IsAuthenticated && s.secured.IsMutuallyAuthenticated
}

// RemoteAddr returns the remote address of the open connection, or nil.
func (c *Conn) RemoteAddr() net.Addr {
	s := c.session()
	if s == nil || !c.IsConnected() {
		return nil
	}
	return s.conn.RemoteAddr()
}

func (c *Conn) session() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Open connects to host:port, upgrades the connection to TLS when asked to
// or when port is SecurePort, and starts receiving in the background.
//
// Secured is emitted after a successful handshake, then Opened.
// Open returns ErrAlreadyConnected unless the connection is disconnected,
// ErrInvalidArgument for client certificates without TLS or an empty set of
// them, ErrTLSAuthenticationFailed when the handshake or the server
// certificate check fails and ErrTransportIO when the server is unreachable.
func (c *Conn) Open(ctx context.Context, host string, port int, opt ...OpenOption) (err error) {
	var o openOptions
	for _, fn := range opt {
		fn(&o)
	}

	secure := o.secure || port == SecurePort
	if o.certificates != nil && !secure {
		return errors.Wrap(ErrInvalidArgument, "client certificates require a secure connection")
	}
	if o.certificates != nil && len(o.certificates) == 0 {
		return errors.Wrap(ErrInvalidArgument, "client certificates are empty")
	}

	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	ctx, span := c.opts.tracer.Start(ctx, "irc.Open", trace.WithAttributes(
		attribute.String("irc.host", host),
		attribute.Int("irc.port", port),
		attribute.Bool("irc.secure", secure),
	))
	defer func() { endSpan(span, err) }()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	c.logger.Debug("opening connection", "addr", address, "secure", secure)

	conn, secured, err := c.dial(ctx, host, address, secure, o.certificates)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.logger.Debug("open failed", "addr", address, "error", err)
		return err
	}

	remoteAddress, remotePort := remoteEndpoint(conn)
	c.logger.Debug("remote address resolved", "addr", address, "remote_addr", remoteAddress, "remote_port", remotePort)

	opened := Opened{RemoteName: host, RemoteAddress: remoteAddress, RemotePort: remotePort}
	if secured != nil {
		secured.Opened = opened
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, child := errgroup.WithContext(loopCtx)
	s := &session{
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		name:    host,
		address: remoteAddress,
		port:    remotePort,
		secured: secured,
		cancel:  cancel,
		group:   group,
		replies: make(chan []*Message, c.opts.replyQueueSize),
		done:    make(chan struct{}),
	}
	if r, ok := c.opts.codec.(interface{ Reset() }); ok {
		r.Reset()
	}

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	if secured != nil {
		c.state.Store(int32(StateSecured))
	} else {
		c.state.Store(int32(StateConnected))
	}
	c.opts.metrics.opened()
	c.logger.Info("connection established", "addr", address, "secure", secured != nil)

	if secured != nil {
		c.events.secured.emit(*secured)
	}
	c.events.opened.emit(opened)

	c.logger.Debug("starting receive loop", "addr", address)
	group.Go(func() error {
		err := c.receiveLoop(child, s)
		s.err = err
		close(s.done)
		return err
	})

	return nil
}

// dial opens the transport and performs the TLS handshake when secure.
func (c *Conn) dial(ctx context.Context, host, address string, secure bool, certs []tls.Certificate) (net.Conn, *Secured, error) {
	if !secure {
		conn, err := c.opts.dialer.Dial(ctx, address)
		if err != nil {
			return nil, nil, wrapTransport("dial "+address, err)
		}
		return conn, nil, nil
	}

	config, presented := c.tlsConfig(host, certs)

	if td, ok := c.opts.dialer.(TLSDialer); ok {
		c.logger.Debug("dialing tls transport", "addr", address)
		conn, err := td.DialTLS(ctx, address, config)
		if err != nil {
			if isTLSFailure(err) {
				return nil, nil, errors.Wrapf(ErrTLSAuthenticationFailed, "handshake with %s: %v", host, err)
			}
			return nil, nil, wrapTransport("dial "+address, err)
		}
		cs, ok := conn.(connectionStater)
		if !ok {
			conn.Close()
			return nil, nil, errors.Wrapf(ErrTLSAuthenticationFailed, "transport for %s reports no tls state", host)
		}
		return conn, describeTLS(cs.ConnectionState(), *presented), nil
	}

	conn, err := c.opts.dialer.Dial(ctx, address)
	if err != nil {
		return nil, nil, wrapTransport("dial "+address, err)
	}

	c.logger.Debug("authenticating server", "addr", address, "server_name", host)
	tlsConn := tls.Client(conn, config)
	if err = tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, nil, errors.Wrapf(ErrTLSAuthenticationFailed, "handshake with %s: %v", host, err)
	}

	secured := describeTLS(tlsConn.ConnectionState(), *presented)
	c.logger.Debug("server authenticated", "addr", address,
		"protocol", secured.Protocol,
		"cipher", secured.CipherAlgorithm,
		"remote_certificate", secured.RemoteCertificate)

	return tlsConn, secured, nil
}

// tlsConfig pins TLS 1.2 and 1.3 and requires a verified server
// certificate. The returned pointer is set to the client certificate the
// server accepted during the handshake.
func (c *Conn) tlsConfig(host string, certs []tls.Certificate) (*tls.Config, **tls.Certificate) {
	presented := new(*tls.Certificate)

	config := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		RootCAs:    c.opts.rootCAs,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server presented no certificate")
			}
			return nil
		},
	}

	if len(certs) > 0 {
		config.GetClientCertificate = func(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			for i := range certs {
				if info.SupportsCertificate(&certs[i]) == nil {
					*presented = &certs[i]
					return &certs[i], nil
				}
			}
			*presented = &certs[0]
			return &certs[0], nil
		}
	}

	return config, presented
}

// Close sends QUIT, stops the receive loop, closes the transport and emits
// Closed with reason. The QUIT is best effort; its failure is not
// reported. Close returns ErrNotConnected when the connection is not open.
func (c *Conn) Close(ctx context.Context, reason CloseReason) (err error) {
	for {
		s := c.State()
		if s != StateConnected && s != StateSecured {
			return ErrNotConnected
		}
		if c.state.CompareAndSwap(int32(s), int32(StateClosing)) {
			break
		}
	}

	ctx, span := c.opts.tracer.Start(ctx, "irc.Close", trace.WithAttributes(
		attribute.String("irc.close_reason", reason.String()),
	))
	defer func() { endSpan(span, err) }()

	s := c.session()

	if err := c.write(ctx, s, NewMessage(CommandQuit)); err != nil {
		c.logger.Debug("quit not sent", "addr", s.address, "error", err)
	}

	if s.secured != nil {
		c.logger.Debug("closing secure stream", "addr", s.address, "server_name", s.name)
	}

	c.logger.Debug("cancelling receive loop", "addr", s.address)
	s.cancel()

	c.logger.Debug("closing transport", "addr", s.address)
	if err := s.conn.Close(); err != nil {
		c.logger.Debug("transport close error", "addr", s.address, "error", err)
	}

	c.state.Store(int32(StateDisconnected))
	c.opts.metrics.closed(reason)
	c.logger.Info("connection closed", "addr", s.address, "reason", reason.String())

	c.events.closed.emit(Closed{
		RemoteAddress: s.address,
		RemotePort:    s.port,
		Reason:        reason,
	})

	return nil
}

// Send writes message to the server. Concurrent sends never interleave.
func (c *Conn) Send(ctx context.Context, message *Message) (err error) {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, span := c.opts.tracer.Start(ctx, "irc.Send", trace.WithAttributes(
		attribute.String("irc.command", message.Command),
	))
	defer func() { endSpan(span, err) }()

	return c.write(ctx, c.session(), message)
}

// write encodes message and writes it through the session's single write
// path, then flushes.
func (c *Conn) write(ctx context.Context, s *session, message *Message) error {
	if s == nil {
		return ErrNotConnected
	}

	data, err := c.opts.codec.Encode(message)
	if err != nil {
		return err
	}

	c.logger.Debug("sending message", "addr", s.address, "message", redact(message))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.writeTimeout)
	}
	_ = s.conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	n, err := s.writer.Write(data)
	if err == nil {
		err = s.writer.Flush()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "send %s", message.Command)
		}
		return wrapTransport("write", err)
	}

	c.opts.metrics.sent(n, message)
	return nil
}

// SendAndAwaitReply sends message and waits for the next batch of received
// messages, returning it together with every batch queued behind it.
//
// Replies are not matched to requests: whatever the server sends next is
// the reply, including messages queued before the call. Calls on one Conn
// are serialized so that a batch is never split between two callers.
// A zero timeout uses ReplyTimeoutOption. ErrTimedOut is returned when
// nothing arrives in time or ctx is cancelled.
func (c *Conn) SendAndAwaitReply(ctx context.Context, message *Message, timeout time.Duration) (replies []*Message, err error) {
	if timeout <= 0 {
		timeout = c.opts.replyTimeout
	}

	ctx, span := c.opts.tracer.Start(ctx, "irc.SendAndAwaitReply", trace.WithAttributes(
		attribute.String("irc.command", message.Command),
		attribute.String("irc.timeout", timeout.String()),
	))
	defer func() {
		span.SetAttributes(attribute.Int("irc.replies", len(replies)))
		endSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err = c.inflight.Acquire(ctx, 1); err != nil {
		c.opts.metrics.replyTimedOut()
		return nil, errors.Wrapf(ErrTimedOut, "waiting to send %s", message.Command)
	}
	defer c.inflight.Release(1)

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	s := c.session()

	if err = c.write(ctx, s, message); err != nil {
		if ctx.Err() != nil {
			c.opts.metrics.replyTimedOut()
			return nil, errors.Wrapf(ErrTimedOut, "sending %s", message.Command)
		}
		return nil, err
	}

	select {
	case batch := <-s.replies:
		return drain(s.replies, batch), nil
	case <-s.done:
		select {
		case batch := <-s.replies:
			return drain(s.replies, batch), nil
		default:
		}
		if s.err != nil {
			return nil, s.err
		}
		return nil, ErrNotConnected
	case <-ctx.Done():
		c.opts.metrics.replyTimedOut()
		return nil, errors.Wrapf(ErrTimedOut, "waiting for reply to %s", message.Command)
	}
}

// drain appends every batch currently queued to batch.
func drain(replies chan []*Message, batch []*Message) []*Message {
	for {
		select {
		case more := <-replies:
			batch = append(batch, more...)
		default:
			return batch
		}
	}
}

// Receive reads up to bufferSize bytes from the transport and returns the
// messages they complete, possibly none. A zero bufferSize uses
// BufferSizeOption. When the server has closed the stream the connection is
// closed with CloseByServer and an empty batch is returned.
//
// The background loop already calls Receive; reading concurrently with it
// splits the stream between the callers.
func (c *Conn) Receive(ctx context.Context, bufferSize int) ([]*Message, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.receive(ctx, c.session(), bufferSize)
}

func (c *Conn) receive(ctx context.Context, s *session, bufferSize int) ([]*Message, error) {
	if bufferSize <= 0 {
		bufferSize = c.opts.bufferSize
	}
	buf := make([]byte, bufferSize)

	_ = s.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		s.interrupts.Add(1)
		_ = s.conn.SetReadDeadline(time.Now())
	})
	n, err := s.conn.Read(buf)
	stop()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, wrapTransport("read", err)
		}
		c.logger.Debug("no more bytes to receive, closing connection", "addr", s.address)
		if err := c.Close(ctx, CloseByServer); err != nil && !errors.Is(err, ErrNotConnected) {
			c.logger.Debug("close after end of stream failed", "addr", s.address, "error", err)
		}
		return nil, nil
	}

	messages, decodeErr := c.opts.codec.Decode(buf[:n])
	c.opts.metrics.received(n, messages)
	c.logger.Debug("received", "addr", s.address, "bytes", n, "buffer_size", bufferSize, "messages", len(messages))
	if decodeErr != nil {
		return messages, decodeErr
	}

	return messages, nil
}

// receiveLoop reads until the session is closed or cancelled, queueing
// every batch for SendAndAwaitReply and emitting MessageReceived for every
// message in arrival order.
func (c *Conn) receiveLoop(ctx context.Context, s *session) error {
	c.logger.Debug("receive loop started", "addr", s.address)
	defer c.logger.Debug("receive loop finished", "addr", s.address)

	for c.IsConnected() && ctx.Err() == nil {
		messages, err := c.receive(ctx, s, 0)
		c.deliver(s, messages)
		if err != nil {
			if ctx.Err() != nil || !c.IsConnected() {
				return nil
			}

			// A cancelled Receive shares the transport and expires this
			// read too.
			if errors.Is(err, os.ErrDeadlineExceeded) && s.takeInterrupt() {
				c.logger.Debug("read interrupted by a cancelled receive, retrying", "addr", s.address)
				continue
			}

			if errors.Is(err, ErrInvalidMessage) {
				if c.opts.onError(err) == Continue {
					c.logger.Warn("dropping undecodable data", "addr", s.address, "error", err)
					continue
				}
			}

			c.logger.Debug("receive failed", "addr", s.address, "error", err)
			if closeErr := c.Close(ctx, CloseByError); closeErr != nil && !errors.Is(closeErr, ErrNotConnected) {
				c.logger.Debug("close after receive error failed", "addr", s.address, "error", closeErr)
			}
			return err
		}
	}

	return nil
}

// deliver queues a non-empty batch and emits MessageReceived for each of
// its messages in order.
func (c *Conn) deliver(s *session, messages []*Message) {
	if len(messages) == 0 {
		return
	}
	c.logger.Debug("received messages", "addr", s.address, "count", len(messages))

	c.enqueue(s, messages)
	for _, m := range messages {
		c.events.messages.emit(MessageReceived{Message: m})
	}
}

// enqueue queues batch for SendAndAwaitReply, dropping the oldest batch
// when the queue is full.
func (c *Conn) enqueue(s *session, batch []*Message) {
	for {
		select {
		case s.replies <- batch:
			return
		default:
		}

		select {
		case <-s.replies:
			c.logger.Debug("reply queue full, dropped oldest batch", "addr", s.address)
		default:
		}
	}
}

// Wait blocks until the background receive goroutine of the last Open has
// finished and returns the error that ended it, if any.
func (c *Conn) Wait() error {
	s := c.session()
	if s == nil {
		return nil
	}
	return s.group.Wait()
}

// remoteEndpoint returns the address and port the connection is bound to.
// A connection without a remote address violates the net.Conn contract.
func remoteEndpoint(conn net.Conn) (string, int) {
	addr := conn.RemoteAddr()
	if addr == nil {
		panic("irc: connection has no remote address")
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

// isTLSFailure reports whether err comes from the TLS handshake rather
// than from reaching the server.
func isTLSFailure(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// redact hides the password of PASS commands in log output.
func redact(m *Message) string {
	if m.Command == CommandPassword {
		return CommandPassword + " ***"
	}
	return m.String()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
