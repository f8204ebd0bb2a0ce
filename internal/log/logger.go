package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

var (
	Root   = zerolog.Nop()
	Ledger = zerolog.Nop()
	HTTP   = zerolog.Nop()
	App    = zerolog.Nop()
	Infra  = zerolog.Nop()
)

// Options for Logger
type Options struct {
	LogLevel zerolog.Level
	Type     LoggerType
	// Out defaults to stdout.
	Out io.Writer
}

func ParseLogLevel(loglevel string) (zerolog.Level, error) {
	if loglevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(loglevel)
}

func ParseLoggerType(format string) LoggerType {
	if strings.EqualFold(format, "json") {
		return JSONLogger
	}
	return ConsoleLogger
}

func Init(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	switch opts.Type {
	case ConsoleLogger:
		Root = zerolog.New(newConsoleWriter(out)).Level(opts.LogLevel).
			With().Timestamp().Logger()
	default:
		Root = zerolog.New(out).Level(opts.LogLevel).
			With().Timestamp().Logger()
	}
	Ledger = Root.With().Str("component", "ledger").Logger()
	HTTP = Root.With().Str("component", "http").Logger()
	App = Root.With().Str("component", "app").Logger()
	Infra = Root.With().Str("component", "infra").Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}
	return cw
}
