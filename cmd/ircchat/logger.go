package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// consoleLogger writes irc.Logger records through zerolog's console writer.
type consoleLogger struct {
	log zerolog.Logger
}

func newConsoleLogger(out io.Writer, level string) (consoleLogger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return consoleLogger{}, err
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "ircchat").Logger()

	return consoleLogger{log: logger}, nil
}

func (l consoleLogger) Debug(msg string, args ...any) { l.log.Debug().Fields(args).Msg(msg) }
func (l consoleLogger) Info(msg string, args ...any)  { l.log.Info().Fields(args).Msg(msg) }
func (l consoleLogger) Warn(msg string, args ...any)  { l.log.Warn().Fields(args).Msg(msg) }
func (l consoleLogger) Error(msg string, args ...any) { l.log.Error().Fields(args).Msg(msg) }
