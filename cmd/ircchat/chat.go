package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zereker/irc"
)

const tokenPrefix = "oauth:"

func chatCmd() *cobra.Command {
	var (
		configPath string
		flagConfig config
	)

	cmd := &cobra.Command{
		Use:   "ircchat",
		Short: "Chat on an IRC server from the terminal",
		Long: `ircchat connects to an IRC server (Twitch chat by default), logs in,
requests capabilities, joins channels and prints every message it receives.

Lines read from stdin are sent to the first channel. A line starting with
'/' is sent as a raw command, e.g. "/PART #channel".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = loadConfig(configPath, cfg); err != nil {
					return err
				}
			}
			applyFlags(cmd.Flags(), flagConfig, &cfg)
			if err := cfg.validate(); err != nil {
				return err
			}

			if cfg.AskToken && cfg.Token == "" {
				token, err := promptToken(os.Stdin, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				cfg.Token = token
			}

			logger, err := newConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "TOML config file")
	bindFlags(cmd.Flags(), &flagConfig)

	return cmd
}

// promptToken reads the OAuth token from the terminal without echo.
func promptToken(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-token needs a terminal")
	}

	fmt.Fprint(prompt, "OAuth token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// runChat runs one session until ctx is done, stdin ends or the server
// closes the connection.
func runChat(ctx context.Context, cfg config, logger consoleLogger, in io.Reader, out io.Writer) error {
	enc, err := lookupEncoding(cfg.Encoding)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	opts := []irc.Option{
		irc.LoggerOption(logger),
		irc.EncodingOption(enc),
		irc.ReplyTimeoutOption(cfg.ReplyTimeout),
		irc.MetricsOption(irc.NewMetrics(irc.MetricsConfig{Namespace: "ircchat", Registry: registry})),
	}
	if cfg.WebSocketPath != "" {
		opts = append(opts, irc.DialerOption(&irc.WebSocketDialer{Path: cfg.WebSocketPath}))
	}

	conn, err := irc.NewConn(opts...)
	if err != nil {
		return err
	}

	closed := make(chan irc.Closed, 1)
	subscribe(ctx, conn, logger, out, closed)

	if cfg.MetricsAddress != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           newRouter(conn, registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "addr", cfg.MetricsAddress, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var openOpts []irc.OpenOption
	if cfg.Secure {
		openOpts = append(openOpts, irc.SecureOpenOption())
	}
	if cfg.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return fmt.Errorf("load client certificate: %w", err)
		}
		openOpts = append(openOpts, irc.ClientCertificatesOpenOption(cert))
	}

	if err := conn.Open(ctx, cfg.Host, cfg.Port, openOpts...); err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(context.Background(), irc.CloseByClient); err != nil && !errors.Is(err, irc.ErrNotConnected) {
			logger.Warn("close failed", "error", err)
		}
		_ = conn.Wait()
	}()

	if err := login(ctx, conn, cfg); err != nil {
		return err
	}
	for _, channel := range cfg.Channels {
		if err := conn.Send(ctx, irc.NewMessage(irc.CommandJoin, irc.WithMiddle(channel))); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go readLines(in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-closed:
			if e.Reason == irc.CloseByClient {
				return nil
			}
			return fmt.Errorf("connection closed %s", e.Reason)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			m, err := outgoing(line, cfg.Channels)
			if err != nil {
				logger.Warn("not sent", "line", line, "error", err)
				continue
			}
			if err := conn.Send(ctx, m); err != nil {
				return err
			}
		}
	}
}

// subscribe prints the session's notifications and answers server PINGs.
func subscribe(ctx context.Context, conn *irc.Conn, logger consoleLogger, out io.Writer, closed chan<- irc.Closed) {
	conn.OnSecured(func(e irc.Secured) {
		logger.Info("connection secured",
			"remote", e.RemoteName,
			"protocol", e.Protocol,
			"cipher", e.CipherAlgorithm,
			"certificate", e.RemoteCertificate,
			"mutual", e.IsMutuallyAuthenticated)
	})
	conn.OnOpened(func(e irc.Opened) {
		logger.Info("connection opened", "remote", e.RemoteName, "address", e.RemoteAddress, "port", e.RemotePort)
	})
	conn.OnClosed(func(e irc.Closed) {
		logger.Info("connection closed", "address", e.RemoteAddress, "port", e.RemotePort, "reason", e.Reason.String())
		select {
		case closed <- e:
		default:
		}
	})
	conn.OnMessage(func(e irc.MessageReceived) {
		if e.Message.Command == irc.CommandPing {
			pong := irc.NewMessage(irc.CommandPong, irc.WithParameters(e.Message.Parameters))
			if err := conn.Send(ctx, pong); err != nil {
				logger.Warn("pong not sent", "error", err)
			}
			return
		}
		fmt.Fprintln(out, formatMessage(e.Message))
	})
}

// login authenticates and requests capabilities. Twitch answers a rejected
// token with a NOTICE and closes the connection.
func login(ctx context.Context, conn *irc.Conn, cfg config) error {
	if cfg.Token != "" {
		token := cfg.Token
		if !strings.HasPrefix(token, tokenPrefix) {
			token = tokenPrefix + token
		}
		if err := conn.Send(ctx, irc.NewMessage(irc.CommandPassword, irc.WithMiddle(token))); err != nil {
			return err
		}
	}

	replies, err := conn.SendAndAwaitReply(ctx, irc.NewMessage(irc.CommandNick, irc.WithMiddle(cfg.Nick)), cfg.ReplyTimeout)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	for _, m := range replies {
		if m.Command == irc.CommandNotice {
			return fmt.Errorf("login rejected: %s", m.Parameters)
		}
	}

	if len(cfg.Capabilities) == 0 {
		return nil
	}
	request := irc.NewMessage(irc.CommandCapability,
		irc.WithMiddle("REQ"),
		irc.WithParameters(strings.Join(cfg.Capabilities, " ")))
	if _, err := conn.SendAndAwaitReply(ctx, request, cfg.ReplyTimeout); err != nil {
		return fmt.Errorf("request capabilities: %w", err)
	}

	return nil
}

func readLines(in io.Reader, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// outgoing turns a line typed by the user into a message.
func outgoing(line string, channels []string) (*irc.Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty line")
	}

	if raw, ok := strings.CutPrefix(line, "/"); ok {
		return irc.Parse(raw)
	}

	if len(channels) == 0 {
		return nil, fmt.Errorf("no channel joined")
	}
	return irc.NewMessage(irc.CommandPrivateMessage,
		irc.WithMiddle(channels[0]),
		irc.WithParameters(line)), nil
}

// formatMessage renders chat messages as "#channel <nick> text" and
// everything else as the raw line.
func formatMessage(m *irc.Message) string {
	if m.Command != irc.CommandPrivateMessage {
		return m.String()
	}

	nick := m.Nick
	if name, ok := m.Tags.Get("display-name"); ok {
		nick = name
	}
	return fmt.Sprintf("%s <%s> %s", m.Middle, nick, m.Parameters)
}
