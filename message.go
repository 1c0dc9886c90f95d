package irc

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

// DefaultLineDelimiter separates messages on the wire.
const DefaultLineDelimiter = "\r\n"

const (
	tagsIntroducer     = '@'
	prefixIntroducer   = ':'
	nickTerminator     = '!'
	userTerminator     = '@'
	commandMarker      = "*"
	trailingIntroducer = " :"
)

// Message is a single IRC protocol message:
//
//	[@tags ][:prefix ]COMMAND[ *SUBCOMMAND][ middle][ :parameters]
//
// Optional string fields are empty when absent. A Message is a value: the
// parser and NewMessage build it, nothing mutates it afterwards.
type Message struct {
	Tags Tags

	// Prefix. Host alone is a server origin, Nick!User@Host a client origin.
	Nick string
	User string
	Host string

	// Command is a three digit numeric or an upper-case word.
	Command    string
	SubCommand string

	// Middle is the single token before the trailing parameter.
	Middle string
	// Parameters is the trailing free text, may contain spaces.
	Parameters string
}

// MessageOption sets an optional field of a message built with NewMessage.
type MessageOption func(*Message)

// NewMessage returns a message for command with the given optional fields.
func NewMessage(command string, opts ...MessageOption) *Message {
	m := &Message{Command: command}
	for _, o := range opts {
		o(m)
	}
	return m
}

// WithTags sets the message tags.
func WithTags(tags Tags) MessageOption {
	return func(m *Message) {
		m.Tags = tags.clone()
	}
}

// WithPrefix sets the origin prefix. nick and user may be empty.
func WithPrefix(nick, user, host string) MessageOption {
	return func(m *Message) {
		m.Nick, m.User, m.Host = nick, user, host
	}
}

// WithSubCommand sets the sub-command, e.g. ACK in "CAP * ACK".
func WithSubCommand(subCommand string) MessageOption {
	return func(m *Message) {
		m.SubCommand = subCommand
	}
}

// WithMiddle sets the middle token.
func WithMiddle(middle string) MessageOption {
	return func(m *Message) {
		m.Middle = middle
	}
}

// WithParameters sets the trailing parameter.
func WithParameters(parameters string) MessageOption {
	return func(m *Message) {
		m.Parameters = parameters
	}
}

// Parse parses a single line into a message. A trailing line ending is
// ignored. It returns an error wrapping ErrInvalidMessage when the line is
// blank, carries malformed tags or a malformed prefix, or has no command.
func Parse(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if isBlank(line) {
		return nil, invalidMessage("blank line")
	}

	m := &Message{}
	rest, err := m.scanHead(line)
	if err != nil {
		return nil, err
	}
	if err = m.scanTail(rest); err != nil {
		return nil, err
	}

	return m, nil
}

// ParseBytes decodes b with enc and parses the result. A nil enc means
// UTF-8; invalid UTF-8 is an error.
func ParseBytes(b []byte, enc encoding.Encoding) (*Message, error) {
	s, err := decodeText(b, enc)
	if err != nil {
		return nil, err
	}
	return Parse(s)
}

// ParseMany splits s on delimiter and parses every non-blank line.
// An empty delimiter means DefaultLineDelimiter. The first line that fails
// to parse fails the whole call.
func ParseMany(s string, delimiter string) ([]*Message, error) {
	if delimiter == "" {
		delimiter = DefaultLineDelimiter
	}

	var messages []*Message
	for _, line := range strings.Split(s, delimiter) {
		if isBlank(line) {
			continue
		}
		m, err := Parse(line)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, nil
}

// ParseManyBytes decodes b with enc and parses it with ParseMany.
func ParseManyBytes(b []byte, delimiter string, enc encoding.Encoding) ([]*Message, error) {
	s, err := decodeText(b, enc)
	if err != nil {
		return nil, err
	}
	return ParseMany(s, delimiter)
}

// scanHead reads tags, prefix, command and sub-command from the start of
// line and returns what is left.
func (m *Message) scanHead(line string) (string, error) {
	rest := line

	if rest[0] == tagsIntroducer {
		block, after, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return "", invalidMessage("tags are not followed by a command")
		}
		if !isBlank(block) {
			tags, err := ParseTags(block)
			if err != nil {
				return "", err
			}
			m.Tags = tags
		}
		rest = after
	}

	if rest != "" && rest[0] == prefixIntroducer {
		prefix, after, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return "", invalidMessage("prefix is not followed by a command")
		}
		m.Nick, m.User, m.Host = splitPrefix(prefix)
		rest = after
	}

	command, after := nextToken(rest)
	if !isCommand(command) {
		return "", invalidMessage("no command in %q", line)
	}
	m.Command = command
	rest = after

	token, after := nextToken(rest)
	if token == commandMarker {
		rest = after
		token, after = nextToken(rest)
	}
	if sub := strings.TrimPrefix(token, commandMarker); isCommand(sub) {
		m.SubCommand = sub
		rest = after
	}

	return rest, nil
}

// scanTail splits what follows the head into the middle token and the
// trailing parameter introduced by " :".
func (m *Message) scanTail(rest string) error {
	if rest == "" {
		return nil
	}
	if rest[0] != ' ' {
		return invalidMessage("unexpected %q after command", rest)
	}

	middle := rest
	if i := strings.Index(rest, trailingIntroducer); i >= 0 {
		m.Parameters = nullIfBlank(rest[i+len(trailingIntroducer):])
		middle = rest[:i]
	}
	if middle != "" {
		m.Middle = nullIfBlank(middle[1:])
	}

	return nil
}

// nextToken returns the space separated token at the start of s, which must
// begin with a single space unless it is the command, and the text after it
// including its leading space.
func nextToken(s string) (token, rest string) {
	body := strings.TrimPrefix(s, " ")
	if i := strings.IndexByte(body, ' '); i >= 0 {
		return body[:i], body[i:]
	}
	return body, ""
}

// splitPrefix decomposes "nick!user@host", "nick@host" or "host".
func splitPrefix(prefix string) (nick, user, host string) {
	rest := prefix
	if i := strings.IndexByte(rest, nickTerminator); i >= 0 {
		nick, rest = rest[:i], rest[i+1:]
		if j := strings.IndexByte(rest, userTerminator); j >= 0 {
			user, rest = rest[:j], rest[j+1:]
		}
	} else if j := strings.IndexByte(rest, userTerminator); j >= 0 {
		nick, rest = rest[:j], rest[j+1:]
	}
	return nullIfBlank(nick), nullIfBlank(user), nullIfBlank(rest)
}

// isCommand reports whether s is a three digit numeric or a run of
// upper-case letters.
func isCommand(s string) bool {
	if s == "" {
		return false
	}
	if len(s) == 3 && isDigit(s[0]) && isDigit(s[1]) && isDigit(s[2]) {
		return true
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func nullIfBlank(s string) string {
	if isBlank(s) {
		return ""
	}
	return s
}

// String serializes the message without a line ending.
//
// NOTICE is always followed by the " *" marker, and a sub-command is written
// with the marker in front of it, as in "CAP *ACK".
func (m *Message) String() string {
	var b strings.Builder

	if m.Tags.Len() > 0 {
		b.WriteByte(tagsIntroducer)
		b.WriteString(m.Tags.String())
		b.WriteByte(' ')
	}

	if m.Host != "" {
		b.WriteByte(prefixIntroducer)
		if m.Nick != "" {
			b.WriteString(m.Nick)
			if m.User != "" {
				b.WriteByte(nickTerminator)
				b.WriteString(m.User)
			}
			b.WriteByte(userTerminator)
		}
		b.WriteString(m.Host)
		b.WriteByte(' ')
	}

	b.WriteString(m.Command)
	if m.Command == CommandNotice {
		b.WriteString(" " + commandMarker)
	}

	if m.SubCommand != "" {
		b.WriteString(" " + commandMarker)
		b.WriteString(m.SubCommand)
	}

	if m.Middle != "" {
		b.WriteByte(' ')
		b.WriteString(m.Middle)
	}

	if m.Parameters != "" {
		b.WriteString(trailingIntroducer)
		b.WriteString(m.Parameters)
	}

	return b.String()
}

// Bytes serializes the message, appends lineEnding and encodes the line
// with enc. An empty lineEnding means DefaultLineDelimiter and a nil enc
// means UTF-8.
func (m *Message) Bytes(lineEnding string, enc encoding.Encoding) ([]byte, error) {
	if lineEnding == "" {
		lineEnding = DefaultLineDelimiter
	}
	line := m.String() + lineEnding
	if enc == nil {
		return []byte(line), nil
	}

	b, err := enc.NewEncoder().Bytes([]byte(line))
	if err != nil {
		return nil, invalidMessage("encode %q: %v", m.Command, err)
	}
	return b, nil
}

// decodeText converts b to a string using enc, or validates it as UTF-8
// when enc is nil.
func decodeText(b []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		if !utf8.Valid(b) {
			return "", invalidMessage("not valid utf-8")
		}
		return string(b), nil
	}

	decoded, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", invalidMessage("decode: %v", err)
	}
	return string(decoded), nil
}
