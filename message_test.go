package irc

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

// assertPrefix checks the three prefix fields.
func assertPrefix(t *testing.T, m *Message, nick, user, host string) {
	t.Helper()

	if m.Nick != nick {
		t.Errorf("Nick = %q, want %q", m.Nick, nick)
	}
	if m.User != user {
		t.Errorf("User = %q, want %q", m.User, user)
	}
	if m.Host != host {
		t.Errorf("Host = %q, want %q", m.Host, host)
	}
}

func TestParse_CapabilitiesRequest(t *testing.T) {
	m, err := Parse("CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Command != "CAP" {
		t.Errorf("Command = %q, want CAP", m.Command)
	}
	if m.SubCommand != "REQ" {
		t.Errorf("SubCommand = %q, want REQ", m.SubCommand)
	}
	if m.Parameters != "twitch.tv/membership twitch.tv/tags twitch.tv/commands" {
		t.Errorf("Parameters = %q", m.Parameters)
	}
	if m.Tags.Len() != 0 {
		t.Errorf("Tags.Len() = %d, want 0", m.Tags.Len())
	}
	if m.Middle != "" {
		t.Errorf("Middle = %q, want empty", m.Middle)
	}
	assertPrefix(t, m, "", "", "")
}

func TestParse_Password(t *testing.T) {
	m, err := Parse("PASS oauth:yfvzjqb705z12hrhy1zkwa9xt7v662")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Command != "PASS" {
		t.Errorf("Command = %q, want PASS", m.Command)
	}
	if m.Middle != "oauth:yfvzjqb705z12hrhy1zkwa9xt7v662" {
		t.Errorf("Middle = %q", m.Middle)
	}
	if m.Parameters != "" || m.SubCommand != "" {
		t.Errorf("unexpected Parameters %q / SubCommand %q", m.Parameters, m.SubCommand)
	}
}

func TestParse_Nick(t *testing.T) {
	m, err := Parse("NICK myusername")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Command != "NICK" || m.Middle != "myusername" {
		t.Errorf("got Command %q Middle %q", m.Command, m.Middle)
	}
	assertPrefix(t, m, "", "", "")
}

func TestParse_Welcome(t *testing.T) {
	line := ":tmi.twitch.tv 001 myusername :Welcome, GLHF!"

	m, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	assertPrefix(t, m, "", "", "tmi.twitch.tv")
	if m.Command != "001" {
		t.Errorf("Command = %q, want 001", m.Command)
	}
	if m.Middle != "myusername" {
		t.Errorf("Middle = %q, want myusername", m.Middle)
	}
	if m.Parameters != "Welcome, GLHF!" {
		t.Errorf("Parameters = %q, want 'Welcome, GLHF!'", m.Parameters)
	}
	if m.SubCommand != "" {
		t.Errorf("SubCommand = %q, want empty", m.SubCommand)
	}

	if got := m.String(); got != line {
		t.Errorf("String() = %q, want %q", got, line)
	}
}

func TestParse_Numerics(t *testing.T) {
	lines := map[string]string{
		":tmi.twitch.tv 002 myusername :Your host is tmi.twitch.tv": "Your host is tmi.twitch.tv",
		":tmi.twitch.tv 003 myusername :This server is rather new":  "This server is rather new",
		":tmi.twitch.tv 004 myusername :-":                          "-",
		":tmi.twitch.tv 375 myusername :-":                          "-",
		":tmi.twitch.tv 372 myusername :You are in a maze of twisty passages.": "You are in a maze of twisty passages.",
		":tmi.twitch.tv 376 myusername :>": ">",
	}

	for line, params := range lines {
		m, err := Parse(line)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", line, err)
			continue
		}
		if m.Host != "tmi.twitch.tv" || m.Middle != "myusername" || m.Parameters != params {
			t.Errorf("Parse(%q) = host %q middle %q params %q", line, m.Host, m.Middle, m.Parameters)
		}
		if got := m.String(); got != line {
			t.Errorf("String() = %q, want %q", got, line)
		}
	}
}

func TestParse_AuthenticationFailedNotice(t *testing.T) {
	line := ":tmi.twitch.tv NOTICE * :Login authentication failed"

	m, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	assertPrefix(t, m, "", "", "tmi.twitch.tv")
	if m.Command != CommandNotice {
		t.Errorf("Command = %q, want NOTICE", m.Command)
	}
	if m.Parameters != "Login authentication failed" {
		t.Errorf("Parameters = %q", m.Parameters)
	}
	if m.Middle != "" || m.SubCommand != "" {
		t.Errorf("unexpected Middle %q / SubCommand %q", m.Middle, m.SubCommand)
	}

	if got := m.String(); got != line {
		t.Errorf("String() = %q, want %q", got, line)
	}
}

func TestParse_ClientPrefix(t *testing.T) {
	m, err := Parse(":ronni!ronni@ronni.tmi.twitch.tv JOIN #dallas")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	assertPrefix(t, m, "ronni", "ronni", "ronni.tmi.twitch.tv")
	if m.Command != CommandJoin || m.Middle != "#dallas" {
		t.Errorf("got Command %q Middle %q", m.Command, m.Middle)
	}
}

func TestParse_NickAtHostPrefix(t *testing.T) {
	m, err := Parse(":ronni@ronni.tmi.twitch.tv PART #dallas")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	assertPrefix(t, m, "ronni", "", "ronni.tmi.twitch.tv")

	if got := m.String(); got != ":ronni@ronni.tmi.twitch.tv PART #dallas" {
		t.Errorf("String() = %q, nick lost", got)
	}
}

func TestParse_PrefixWithPunctuation(t *testing.T) {
	m, err := Parse(":nick-name!~user_1@irc-01.example-host.net PRIVMSG #go-nuts :hi")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	assertPrefix(t, m, "nick-name", "~user_1", "irc-01.example-host.net")
}

func TestParse_Tags(t *testing.T) {
	m, err := Parse("@a=1;b;c= :tmi.twitch.tv PING")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := strings.Join(m.Tags.Keys(), ","); got != "a,b,c" {
		t.Errorf("Keys() = %q, want a,b,c", got)
	}
	if v, ok := m.Tags.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v; want 1, true", v, ok)
	}
	for _, key := range []string{"b", "c"} {
		if !m.Tags.Has(key) {
			t.Errorf("Has(%s) = false", key)
		}
		if _, ok := m.Tags.Get(key); ok {
			t.Errorf("Get(%s) reported a value", key)
		}
	}
	if m.Host != "tmi.twitch.tv" || m.Command != CommandPing {
		t.Errorf("got Host %q Command %q", m.Host, m.Command)
	}
}

func TestParse_PrivateMessageWithTags(t *testing.T) {
	line := "@badge-info=;color=#0000FF;display-name=Ronni;id=b34ccfc7-4977-403a-8a94-33c6bac34fb8 " +
		":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #ronni :Kappa Keepo :) Kappa"

	m, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Command != CommandPrivateMessage || m.Middle != "#ronni" {
		t.Errorf("got Command %q Middle %q", m.Command, m.Middle)
	}
	if m.Parameters != "Kappa Keepo :) Kappa" {
		t.Errorf("Parameters = %q, want everything after the first ' :'", m.Parameters)
	}
	if v, _ := m.Tags.Get("display-name"); v != "Ronni" {
		t.Errorf("display-name = %q", v)
	}
	if m.Tags.Has("badge-info") == false {
		t.Error("badge-info missing")
	}
}

func TestParse_CapabilityAcknowledgement(t *testing.T) {
	m, err := Parse(":tmi.twitch.tv CAP * ACK :twitch.tv/membership")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Command != "CAP" || m.SubCommand != "ACK" {
		t.Errorf("got Command %q SubCommand %q", m.Command, m.SubCommand)
	}
	if m.Middle != "" || m.Parameters != "twitch.tv/membership" {
		t.Errorf("got Middle %q Parameters %q", m.Middle, m.Parameters)
	}
}

func TestParse_TrailingLineEnding(t *testing.T) {
	m, err := Parse("PING :tmi.twitch.tv\r\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Parameters != "tmi.twitch.tv" {
		t.Errorf("Parameters = %q", m.Parameters)
	}
}

func TestParse_Invalid(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"\r\n",
		"lowercase command",
		":tmi.twitch.tv",
		"@a=1;b=2",
		"@=1 PING",
		"PRIVMSGx #chan",
		"1234 foo",
	}

	for _, line := range lines {
		_, err := Parse(line)
		if !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidMessage", line, err)
		}
	}
}

func TestParseBytes(t *testing.T) {
	m, err := ParseBytes([]byte("PRIVMSG #chan :h\xe9llo"), charmap.ISO8859_1)
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	if m.Parameters != "héllo" {
		t.Errorf("Parameters = %q, want héllo", m.Parameters)
	}

	_, err = ParseBytes([]byte("PRIVMSG #chan :h\xe9llo"), nil)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("invalid utf-8 error = %v, want ErrInvalidMessage", err)
	}
}

func TestParseMany(t *testing.T) {
	messages, err := ParseMany("PING\r\n\r\nPONG\r\n", "")
	if err != nil {
		t.Fatalf("ParseMany failed: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("len = %d, want 2", len(messages))
	}
	if messages[0].Command != CommandPing || messages[1].Command != CommandPong {
		t.Errorf("got %q, %q", messages[0].Command, messages[1].Command)
	}
}

func TestParseMany_CustomDelimiter(t *testing.T) {
	messages, err := ParseMany("NICK a\nNICK b\n  \n", "\n")
	if err != nil {
		t.Fatalf("ParseMany failed: %v", err)
	}
	if len(messages) != 2 || messages[1].Middle != "b" {
		t.Errorf("unexpected messages %v", messages)
	}
}

func TestParseMany_FailsWhole(t *testing.T) {
	messages, err := ParseMany("PING\r\nnot a command\r\nPONG\r\n", "")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("error = %v, want ErrInvalidMessage", err)
	}
	if messages != nil {
		t.Errorf("messages = %v, want nil", messages)
	}
}

func TestParseManyBytes(t *testing.T) {
	messages, err := ParseManyBytes([]byte("PING :a\r\nPING :b\r\n"), "", nil)
	if err != nil {
		t.Fatalf("ParseManyBytes failed: %v", err)
	}
	if len(messages) != 2 || messages[1].Parameters != "b" {
		t.Errorf("unexpected messages %v", messages)
	}
}

func TestMessage_NoticeMarker(t *testing.T) {
	m := NewMessage(CommandNotice, WithParameters("hello"))

	if got := m.String(); got != "NOTICE * :hello" {
		t.Errorf("String() = %q, want 'NOTICE * :hello'", got)
	}
	if got := NewMessage(CommandNotice).String(); got != "NOTICE *" {
		t.Errorf("String() = %q, want 'NOTICE *'", got)
	}
}

func TestMessage_String(t *testing.T) {
	var tags Tags
	tags.Set("reply-parent-msg-id", "b34ccfc7")

	m := NewMessage(CommandPrivateMessage,
		WithTags(tags),
		WithPrefix("ronni", "ronni", "ronni.tmi.twitch.tv"),
		WithMiddle("#dallas"),
		WithParameters("hi there"),
	)

	want := "@reply-parent-msg-id=b34ccfc7 :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :hi there"
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMessage_StringNickWithoutUser(t *testing.T) {
	m := NewMessage(CommandJoin, WithPrefix("ronni", "", "tmi.twitch.tv"), WithMiddle("#dallas"))

	if got := m.String(); got != ":ronni@tmi.twitch.tv JOIN #dallas" {
		t.Errorf("String() = %q", got)
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	var tags Tags
	tags.Set("a", "1")
	tags.SetAbsent("b")

	messages := []*Message{
		NewMessage(CommandPing),
		NewMessage(CommandNick, WithMiddle("myusername")),
		NewMessage("CAP", WithSubCommand("REQ"), WithParameters("twitch.tv/tags twitch.tv/commands")),
		NewMessage(CommandNotice, WithPrefix("", "", "tmi.twitch.tv"), WithParameters("Login authentication failed")),
		NewMessage(CommandNotice, WithSubCommand("ACK"), WithMiddle("x")),
		NewMessage(ReplyWelcome, WithPrefix("", "", "tmi.twitch.tv"), WithMiddle("me"), WithParameters("Welcome, GLHF!")),
		NewMessage(CommandPrivateMessage, WithTags(tags), WithPrefix("a", "b", "c.d"), WithMiddle("#e"), WithParameters("f :) g")),
		NewMessage(CommandJoin, WithPrefix("ronni", "", "ronni.tmi.twitch.tv"), WithMiddle("#dallas")),
	}

	for _, want := range messages {
		got, err := Parse(want.String())
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", want.String(), err)
			continue
		}
		if got.String() != want.String() {
			t.Errorf("round trip %q -> %q", want.String(), got.String())
		}
		if got.Command != want.Command || got.SubCommand != want.SubCommand ||
			got.Middle != want.Middle || got.Parameters != want.Parameters ||
			got.Nick != want.Nick || got.User != want.User || got.Host != want.Host {
			t.Errorf("round trip fields differ: got %+v, want %+v", got, want)
		}
		if strings.Join(got.Tags.Keys(), ",") != strings.Join(want.Tags.Keys(), ",") {
			t.Errorf("round trip tags %v, want %v", got.Tags.Keys(), want.Tags.Keys())
		}
	}
}

func TestMessage_Bytes(t *testing.T) {
	m := NewMessage(CommandPrivateMessage, WithMiddle("#chan"), WithParameters("héllo"))

	b, err := m.Bytes("", nil)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if string(b) != "PRIVMSG #chan :héllo\r\n" {
		t.Errorf("Bytes() = %q", b)
	}

	b, err = m.Bytes("\n", charmap.ISO8859_1)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if string(b) != "PRIVMSG #chan :h\xe9llo\n" {
		t.Errorf("Bytes() = %q", b)
	}
}

func TestMessage_BytesUnencodable(t *testing.T) {
	m := NewMessage(CommandPrivateMessage, WithMiddle("#chan"), WithParameters("日本"))

	_, err := m.Bytes("", charmap.ISO8859_1)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("error = %v, want ErrInvalidMessage", err)
	}
}
