package irc

import (
	"github.com/pkg/errors"
)

// Errors returned by the codec and the connection session.
// Returned errors wrap one of these; test for them with errors.Is.
var (
	// ErrInvalidMessage is returned when a line cannot be parsed: it is blank,
	// has no command, carries a malformed tag or is not valid text.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotConnected is returned when an operation requires an open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned when Open is called on an open connection.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrInvalidArgument is returned for misuse of open options, such as
	// client certificates on an insecure connection.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTLSAuthenticationFailed is returned when the TLS handshake fails or
	// the server certificate does not satisfy the validation policy.
	ErrTLSAuthenticationFailed = errors.New("tls authentication failed")
	// ErrTimedOut is returned when no reply arrives before the deadline.
	ErrTimedOut = errors.New("timed out")
	// ErrTransportIO is returned when reading from or writing to the
	// underlying stream fails.
	ErrTransportIO = errors.New("transport i/o")
)

// transportError wraps a low-level I/O failure so that it matches both
// ErrTransportIO and the original cause.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string {
	return e.op + ": " + ErrTransportIO.Error() + ": " + e.err.Error()
}

func (e *transportError) Unwrap() []error {
	return []error{ErrTransportIO, e.err}
}

// wrapTransport returns an error matching ErrTransportIO that keeps err in
// its chain. A nil err stays nil.
func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&transportError{op: op, err: err})
}

// invalidMessage wraps ErrInvalidMessage with a reason.
func invalidMessage(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidMessage, format, args...)
}
