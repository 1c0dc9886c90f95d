package irc

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/encoding"
)

// ErrorAction defines the action to take when the receive loop fails to
// decode what the server sent.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue drops the offending data and keeps receiving.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	codec    Codec
	encoding encoding.Encoding
	logger   Logger
	dialer   Dialer
	metrics  *Metrics
	tracer   trace.Tracer
	rootCAs  *x509.CertPool

	// onError is called when a received chunk cannot be decoded.
	onError func(error) ErrorAction

	bufferSize     int           // bytes read per receive
	maxReadLength  int           // longest line the default codec buffers
	replyQueueSize int           // batches kept for SendAndAwaitReply
	replyTimeout   time.Duration // default wait of SendAndAwaitReply
	writeTimeout   time.Duration // write deadline when the context has none
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption sets the message codec. By default a LineCodec with the
// CRLF delimiter and the EncodingOption encoding is used.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// EncodingOption sets the text encoding of the default codec. The default
// is UTF-8.
func EncodingOption(enc encoding.Encoding) Option {
	return func(o *options) {
		o.encoding = enc
	}
}

// BufferSizeOption sets how many bytes are read from the transport per
// receive.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MessageMaxSize sets the longest line the default codec buffers while
// waiting for its delimiter.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// ReplyQueueSizeOption sets how many received batches are kept for
// SendAndAwaitReply. The oldest batch is dropped when the queue is full.
func ReplyQueueSizeOption(size int) Option {
	return func(o *options) {
		o.replyQueueSize = size
	}
}

// ReplyTimeoutOption sets the wait used by SendAndAwaitReply when it is
// called with a zero timeout.
func ReplyTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.replyTimeout = timeout
	}
}

// WriteTimeoutOption sets the write deadline used when the context passed
// to Send carries none.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// DialerOption sets the transport used to reach the server. The default is
// a TCPDialer.
func DialerOption(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// RootCAsOption sets the certificate authorities that verify the server.
// The default is the system pool.
func RootCAsOption(pool *x509.CertPool) Option {
	return func(o *options) {
		o.rootCAs = pool
	}
}

// OnErrorOption sets the callback invoked when received data cannot be
// decoded. Return Disconnect to close the connection, Continue to skip the
// data. Read and write failures always close the connection.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption sets the Prometheus instrumentation of the connection.
func MetricsOption(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// TracerOption sets the tracer that records spans for Open, Close, Send and
// SendAndAwaitReply. The default records nothing.
func TracerOption(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// openOptions holds the per-call configuration of Open.
type openOptions struct {
	secure       bool
	certificates []tls.Certificate
}

// OpenOption configures a single call to Open.
type OpenOption func(*openOptions)

// SecureOpenOption upgrades the connection to TLS. Connections to
// SecurePort are always upgraded.
func SecureOpenOption() OpenOption {
	return func(o *openOptions) {
		o.secure = true
	}
}

// ClientCertificatesOpenOption presents certs to the server during the TLS
// handshake. It requires a secure connection and at least one certificate.
func ClientCertificatesOpenOption(certs ...tls.Certificate) OpenOption {
	return func(o *openOptions) {
		o.certificates = append([]tls.Certificate{}, certs...)
	}
}
