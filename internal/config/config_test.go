package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  port: "9090"
ledger:
  backend: pebble
  path: /var/lib/quiz-ledger
  claim_once: true
  creators: ["0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"]
rewards:
  require_perfect: false
auth:
  jwt_secret: from-file
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.LedgerBackend() != "pebble" || !cfg.Ledger.ClaimOnce {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Ledger.Creators) != 1 {
		t.Fatalf("expected one creator, got %v", cfg.Ledger.Creators)
	}
	if cfg.RequirePerfect() {
		t.Fatalf("expected require_perfect=false")
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerBackend() != "memory" {
		t.Fatalf("expected memory backend, got %s", cfg.LedgerBackend())
	}
	if !cfg.RequirePerfect() {
		t.Fatalf("require_perfect should default to true")
	}
	if cfg.EventsExchange() != "quiz.ledger" {
		t.Fatalf("unexpected exchange %s", cfg.EventsExchange())
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %v", d)
	}
	if d := TTLDuration("garbage", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback on parse error, got %v", d)
	}
	if d := TTLDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d)
	}
}
