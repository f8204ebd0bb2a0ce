package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitJSONComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{LogLevel: zerolog.InfoLevel, Type: JSONLogger, Out: &buf})
	t.Cleanup(func() { Init(Options{LogLevel: zerolog.Disabled, Type: JSONLogger}) })

	Ledger.Info().Str("quizId", "q1").Msg("quiz created")
	Ledger.Debug().Msg("filtered by level")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "ledger" || entry["quizId"] != "q1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestParseHelpers(t *testing.T) {
	lvl, err := ParseLogLevel("")
	if err != nil || lvl != zerolog.InfoLevel {
		t.Fatalf("expected info default, got %v %v", lvl, err)
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if ParseLoggerType("JSON") != JSONLogger || ParseLoggerType("") != ConsoleLogger {
		t.Fatalf("logger type parsing broken")
	}
}
