package irc

import "log/slog"

// Logger receives the session's structured log records as a message plus
// alternating key-value pairs. *slog.Logger satisfies it.
//
// A Conn logs dialing, the TLS handshake, every send and receive, and
// teardown at debug level; opening and closing are logged at info level.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DiscardLogger drops every record.
var DiscardLogger Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// defaultLogger is used when no LoggerOption is given.
func defaultLogger() Logger {
	return slog.Default()
}
