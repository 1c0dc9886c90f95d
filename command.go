package irc

// Commands used by the session and commonly sent by clients.
// See https://www.rfc-editor.org/rfc/rfc1459#section-4.
const (
	// CommandQuit closes the connection to the server.
	CommandQuit = "QUIT"
	// CommandPassword sets the password during registration.
	CommandPassword = "PASS"
	// CommandNick sets or changes the nickname.
	CommandNick = "NICK"
	// CommandUser sets the user names during registration.
	CommandUser = "USER"
	// CommandJoin joins a channel.
	CommandJoin = "JOIN"
	// CommandPart leaves a channel.
	CommandPart = "PART"
	// CommandPrivateMessage sends a message to a channel or user.
	CommandPrivateMessage = "PRIVMSG"
	// CommandNotice is the free-form informational notice. It is always
	// serialized followed by the " *" marker.
	CommandNotice = "NOTICE"
	// CommandPing and CommandPong keep the connection alive.
	CommandPing = "PING"
	CommandPong = "PONG"
	// CommandCapability negotiates IRCv3 capabilities.
	CommandCapability = "CAP"
)

// Numeric replies.
const (
	ReplyWelcome   = "001"
	ReplyYourHost  = "002"
	ReplyCreated   = "003"
	ReplyMyInfo    = "004"
	ReplyMOTD      = "372"
	ReplyMOTDStart = "375"
	ReplyEndOfMOTD = "376"
)

// Well-known ports, see RFC 7194.
const (
	// InsecurePort is the default port for plain connections.
	InsecurePort = 6667
	// SecurePort is the default port for TLS connections. Opening a
	// connection to this port always uses TLS.
	SecurePort = 6697
)

// DefaultReceiveBufferSize is the number of bytes read from the transport
// per receive.
const DefaultReceiveBufferSize = 4096
