package irc

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
)

// ErrMessageTooLarge is returned when the stream carries more than the
// maximum line length without a line delimiter. It is an ErrInvalidMessage.
var ErrMessageTooLarge = errors.Wrap(ErrInvalidMessage, "message too large")

// defaultMaxLineLength bounds a single buffered line. IRCv3 allows 8191
// bytes of tags plus 512 bytes of message.
const defaultMaxLineLength = 16 * 1024

// Codec is the interface for message encoding and decoding.
//
// Decode is fed the chunks read from the transport in order and returns the
// complete messages they finish. A read boundary may split a line, so an
// implementation keeps the incomplete tail until the next chunk.
type Codec interface {
	// Decode consumes a chunk read from the stream.
	Decode(p []byte) ([]*Message, error)
	// Encode encodes a message into raw bytes for transmission, line
	// ending included.
	Encode(*Message) ([]byte, error)
}

// LineCodec frames messages by a line delimiter and converts text with an
// optional encoding. It is not safe for concurrent use; a Conn only decodes
// from its receive path.
type LineCodec struct {
	delimiter     []byte
	encoding      encoding.Encoding
	maxLineLength int

	pending []byte
}

// NewLineCodec returns a codec using delimiter and enc. An empty delimiter
// means DefaultLineDelimiter and a nil enc means UTF-8.
func NewLineCodec(delimiter string, enc encoding.Encoding) *LineCodec {
	if delimiter == "" {
		delimiter = DefaultLineDelimiter
	}
	return &LineCodec{
		delimiter:     []byte(delimiter),
		encoding:      enc,
		maxLineLength: defaultMaxLineLength,
	}
}

// Decode appends p to the buffered tail and parses every complete line.
// When the incomplete tail grows past the maximum line length it is dropped
// and ErrMessageTooLarge is returned with the lines completed before it.
func (c *LineCodec) Decode(p []byte) ([]*Message, error) {
	c.pending = append(c.pending, p...)

	var complete []byte
	if end := bytes.LastIndex(c.pending, c.delimiter); end >= 0 {
		end += len(c.delimiter)
		complete = c.pending[:end]
		c.pending = append([]byte(nil), c.pending[end:]...)
	}

	var messages []*Message
	if len(complete) > 0 {
		var err error
		if messages, err = ParseManyBytes(complete, string(c.delimiter), c.encoding); err != nil {
			return nil, err
		}
	}

	if len(c.pending) > c.maxLineLength {
		c.pending = nil
		return messages, ErrMessageTooLarge
	}

	return messages, nil
}

// Encode serializes m with the codec's delimiter and encoding.
func (c *LineCodec) Encode(m *Message) ([]byte, error) {
	return m.Bytes(string(c.delimiter), c.encoding)
}

// Reset drops any buffered partial line.
func (c *LineCodec) Reset() {
	c.pending = nil
}
