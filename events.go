package irc

import (
	"sync"
)

// CloseReason tells why a connection closed.
type CloseReason int

const (
	// CloseUnknown is used when the reason is not known.
	CloseUnknown CloseReason = iota
	// CloseByClient means the client closed the connection.
	CloseByClient
	// CloseByServer means the server closed the connection.
	CloseByServer
	// CloseByError means a transport error closed the connection.
	CloseByError
)

func (r CloseReason) String() string {
	switch r {
	case CloseByClient:
		return "by client"
	case CloseByServer:
		return "by server"
	case CloseByError:
		return "by error"
	default:
		return "unknown"
	}
}

// Opened is emitted once a connection is ready to use.
type Opened struct {
	// RemoteName is the host name (or address) the connection was opened to.
	RemoteName    string
	RemoteAddress string
	RemotePort    int
}

// Secured is emitted after the TLS handshake succeeds, before Opened.
type Secured struct {
	Opened

	// Protocol is the negotiated TLS version, e.g. "TLS 1.3".
	Protocol string

	CipherAlgorithm string
	CipherStrength  int

	HashAlgorithm string
	HashStrength  int

	KeyExchangeAlgorithm string
	KeyExchangeStrength  int

	// LocalCertificate is the subject of the client certificate, empty when
	// none was presented.
	LocalCertificate  string
	RemoteCertificate string

	IsEncrypted             bool
	IsSigned                bool
	IsAuthenticated         bool
	IsMutuallyAuthenticated bool
}

// Closed is emitted after a connection is torn down.
type Closed struct {
	RemoteAddress string
	RemotePort    int
	Reason        CloseReason
}

// MessageReceived is emitted for every message read from the server, in
// arrival order.
type MessageReceived struct {
	Message *Message
}

// Subscription identifies a registered handler. Pass it to Unsubscribe to
// remove the handler.
type Subscription struct {
	id uint64
}

// handlers is an ordered list of callbacks for one notification type.
type handlers[T any] struct {
	mu      sync.RWMutex
	entries []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

func (h *handlers[T]) add(id uint64, fn func(T)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, handlerEntry[T]{id: id, fn: fn})
}

func (h *handlers[T]) remove(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return true
		}
	}
	return false
}

// emit calls every handler synchronously in registration order. Handlers
// may subscribe or unsubscribe while being called.
func (h *handlers[T]) emit(event T) {
	h.mu.RLock()
	entries := h.entries
	h.mu.RUnlock()

	for _, e := range entries {
		e.fn(event)
	}
}

// events holds the subscribers of a Conn.
type events struct {
	mu     sync.Mutex
	nextID uint64

	opened   handlers[Opened]
	secured  handlers[Secured]
	closed   handlers[Closed]
	messages handlers[MessageReceived]
}

func (e *events) newID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	return e.nextID
}

// OnOpened registers fn to be called when the connection opens.
func (c *Conn) OnOpened(fn func(Opened)) Subscription {
	id := c.events.newID()
	c.events.opened.add(id, fn)
	return Subscription{id: id}
}

// OnSecured registers fn to be called when the TLS handshake completes.
func (c *Conn) OnSecured(fn func(Secured)) Subscription {
	id := c.events.newID()
	c.events.secured.add(id, fn)
	return Subscription{id: id}
}

// OnClosed registers fn to be called when the connection closes.
func (c *Conn) OnClosed(fn func(Closed)) Subscription {
	id := c.events.newID()
	c.events.closed.add(id, fn)
	return Subscription{id: id}
}

// OnMessage registers fn to be called for every received message.
// Handlers run on the receive goroutine; a slow handler delays delivery of
// the messages that follow.
func (c *Conn) OnMessage(fn func(MessageReceived)) Subscription {
	id := c.events.newID()
	c.events.messages.add(id, fn)
	return Subscription{id: id}
}

// Unsubscribe removes the handler registered under s. It reports whether a
// handler was removed.
func (c *Conn) Unsubscribe(s Subscription) bool {
	return c.events.opened.remove(s.id) ||
		c.events.secured.remove(s.id) ||
		c.events.closed.remove(s.id) ||
		c.events.messages.remove(s.id)
}
