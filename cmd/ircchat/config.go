package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/Zereker/irc"
)

// config is everything ircchat needs to run a session.
type config struct {
	Host          string
	Port          int
	Secure        bool
	WebSocketPath string

	Nick       string
	Token      string
	AskToken   bool
	Channels   []string
	ClientCert string
	ClientKey  string

	Capabilities []string
	ReplyTimeout time.Duration
	Encoding     string

	MetricsAddress string
	LogLevel       string
}

func defaultConfig() config {
	return config{
		Host: "irc.chat.twitch.tv",
		Port: irc.SecurePort,
		// Twitch accepts justinfan logins without a token, read only.
		Nick: "justinfan12345",
		Capabilities: []string{
			"twitch.tv/membership",
			"twitch.tv/tags",
			"twitch.tv/commands",
		},
		ReplyTimeout: 10 * time.Second,
		Encoding:     "utf-8",
		LogLevel:     "info",
	}
}

type fileConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Secure         bool     `toml:"secure"`
	WebSocketPath  string   `toml:"websocket_path"`
	Nick           string   `toml:"nick"`
	Token          string   `toml:"token"`
	Channels       []string `toml:"channels"`
	ClientCert     string   `toml:"client_cert"`
	ClientKey      string   `toml:"client_key"`
	Capabilities   []string `toml:"capabilities"`
	ReplyTimeout   string   `toml:"reply_timeout"`
	Encoding       string   `toml:"encoding"`
	MetricsAddress string   `toml:"metrics_address"`
	LogLevel       string   `toml:"log_level"`
}

// loadConfig overlays the keys defined in the TOML file at path on cfg.
func loadConfig(path string, cfg config) (config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load ircchat config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("secure") {
		cfg.Secure = raw.Secure
	}
	if meta.IsDefined("websocket_path") {
		cfg.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("nick") {
		cfg.Nick = strings.TrimSpace(raw.Nick)
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("channels") {
		cfg.Channels = raw.Channels
	}
	if meta.IsDefined("client_cert") {
		cfg.ClientCert = strings.TrimSpace(raw.ClientCert)
	}
	if meta.IsDefined("client_key") {
		cfg.ClientKey = strings.TrimSpace(raw.ClientKey)
	}
	if meta.IsDefined("capabilities") {
		cfg.Capabilities = raw.Capabilities
	}
	if meta.IsDefined("reply_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReplyTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse reply_timeout: %w", err)
		}
		cfg.ReplyTimeout = d
	}
	if meta.IsDefined("encoding") {
		cfg.Encoding = strings.TrimSpace(raw.Encoding)
	}
	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}

// bindFlags registers the command line flags, writing into f.
func bindFlags(flags *pflag.FlagSet, f *config) {
	d := defaultConfig()

	flags.StringVar(&f.Host, "host", d.Host, "server host name")
	flags.IntVarP(&f.Port, "port", "p", d.Port, "server port, 6697 implies --secure")
	flags.BoolVar(&f.Secure, "secure", d.Secure, "use TLS")
	flags.StringVar(&f.WebSocketPath, "websocket", d.WebSocketPath, "connect over WebSocket with this request path")
	flags.StringVarP(&f.Nick, "nick", "n", d.Nick, "nick name")
	flags.BoolVar(&f.AskToken, "ask-token", false, "prompt for the OAuth token")
	flags.StringSliceVarP(&f.Channels, "channel", "c", nil, "channel to join, repeatable")
	flags.StringVar(&f.ClientCert, "cert", "", "client certificate file (PEM)")
	flags.StringVar(&f.ClientKey, "key", "", "client private key file (PEM)")
	flags.StringSliceVar(&f.Capabilities, "cap", d.Capabilities, "capability to request, repeatable")
	flags.DurationVar(&f.ReplyTimeout, "reply-timeout", d.ReplyTimeout, "how long to wait for replies")
	flags.StringVar(&f.Encoding, "encoding", d.Encoding, "text encoding of the server (IANA name)")
	flags.StringVar(&f.MetricsAddress, "metrics", "", "serve /metrics and /healthz on this address")
	flags.StringVar(&f.LogLevel, "log-level", d.LogLevel, "log level: debug, info, warn or error")
}

// applyFlags copies the flags set on the command line from f to cfg, so
// they take precedence over the config file.
func applyFlags(flags *pflag.FlagSet, f config, cfg *config) {
	if flags.Changed("host") {
		cfg.Host = f.Host
	}
	if flags.Changed("port") {
		cfg.Port = f.Port
	}
	if flags.Changed("secure") {
		cfg.Secure = f.Secure
	}
	if flags.Changed("websocket") {
		cfg.WebSocketPath = f.WebSocketPath
	}
	if flags.Changed("nick") {
		cfg.Nick = f.Nick
	}
	if flags.Changed("ask-token") {
		cfg.AskToken = f.AskToken
	}
	if flags.Changed("channel") {
		cfg.Channels = f.Channels
	}
	if flags.Changed("cert") {
		cfg.ClientCert = f.ClientCert
	}
	if flags.Changed("key") {
		cfg.ClientKey = f.ClientKey
	}
	if flags.Changed("cap") {
		cfg.Capabilities = f.Capabilities
	}
	if flags.Changed("reply-timeout") {
		cfg.ReplyTimeout = f.ReplyTimeout
	}
	if flags.Changed("encoding") {
		cfg.Encoding = f.Encoding
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddress = f.MetricsAddress
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
}

// validate checks cfg and normalizes channel names.
func (c *config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Nick == "" {
		return fmt.Errorf("nick is required")
	}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return fmt.Errorf("client certificate and key must be given together")
	}
	if c.ClientCert != "" && !c.Secure && c.Port != irc.SecurePort {
		return fmt.Errorf("client certificates require --secure")
	}

	channels := make([]string, 0, len(c.Channels))
	for _, ch := range c.Channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch == "" {
			continue
		}
		if !strings.HasPrefix(ch, "#") {
			ch = "#" + ch
		}
		channels = append(channels, ch)
	}
	c.Channels = channels

	return nil
}

// lookupEncoding resolves an IANA charset name. UTF-8 maps to nil, which
// makes the codec reject invalid input instead of replacing it.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}
