package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quiz-ledger/internal/config"
	"quiz-ledger/internal/domain"
)

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  jwt_secret: s3cret\n  issuer: test\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "token", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	addr, err := newAuthenticator(cfg).Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if addr != domain.MustParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed") {
		t.Fatalf("unexpected subject %s", addr.Hex())
	}
}

func TestTokenCommandRejectsBadAddress(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "token", "0x1234"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected invalid address error")
	}
}

func TestOpenLedgerStoreBackends(t *testing.T) {
	var cfg config.Config

	cfg.Ledger.Backend = "memory"
	store, closeStore, err := openLedgerStore(cfg)
	if err != nil || store == nil {
		t.Fatalf("memory backend: %v", err)
	}
	closeStore()

	cfg.Ledger.Backend = "pebble"
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger")
	store, closeStore, err = openLedgerStore(cfg)
	if err != nil {
		t.Fatalf("pebble backend: %v", err)
	}
	if _, err := store.Quiz(context.Background(), "intro"); err == nil {
		t.Fatalf("expected empty pebble store")
	}
	closeStore()

	cfg.Ledger.Backend = "postgres"
	if _, _, err := openLedgerStore(cfg); err == nil {
		t.Fatalf("expected postgres backend without url to fail")
	}

	cfg.Ledger.Backend = "sqlite"
	if _, _, err := openLedgerStore(cfg); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestCatalogLoaderFallsBackToSample(t *testing.T) {
	loader, err := catalogLoader(config.Config{}, nil)
	if err != nil {
		t.Fatalf("catalog loader: %v", err)
	}
	quiz, err := loader.LoadQuiz(context.Background(), "intro")
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if quiz.TotalQuestions() != 1 {
		t.Fatalf("unexpected sample quiz %+v", quiz)
	}
}
