package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "defai.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.AI.Model != "gemini-1.5-flash" {
		t.Fatalf("unexpected model: %s", cfg.AI.Model)
	}
	if cfg.Flare.ChainID != 14 {
		t.Fatalf("unexpected chain id: %d", cfg.Flare.ChainID)
	}
	if cfg.Oracle.AggregatorBaseURL == "" {
		t.Fatalf("expected default aggregator url")
	}
	if cfg.Attestation.SocketPath != "/run/container_launcher/teeserver.sock" {
		t.Fatalf("unexpected socket path: %s", cfg.Attestation.SocketPath)
	}
	if cfg.Storage.Exchanges.Driver != "memory" {
		t.Fatalf("unexpected storage driver: %s", cfg.Storage.Exchanges.Driver)
	}
	if cfg.Events.Driver != "none" {
		t.Fatalf("unexpected events driver: %s", cfg.Events.Driver)
	}
	if cfg.Chat.ContextWindow != 64 {
		t.Fatalf("unexpected context window: %d", cfg.Chat.ContextWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{
  "server": {"address": ":9090"},
  "ai": {"model": "gemini-1.5-pro", "timeout_seconds": 15},
  "flare": {"chain_id": 114},
  "chat": {"context_window": 8}
}`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.AI.Model != "gemini-1.5-pro" {
		t.Fatalf("unexpected model: %s", cfg.AI.Model)
	}
	if cfg.AI.Timeout().Seconds() != 15 {
		t.Fatalf("unexpected timeout: %v", cfg.AI.Timeout())
	}
	if cfg.Flare.ChainID != 114 {
		t.Fatalf("unexpected chain id: %d", cfg.Flare.ChainID)
	}
	if cfg.Chat.ContextWindow != 8 {
		t.Fatalf("unexpected context window: %d", cfg.Chat.ContextWindow)
	}
}

func TestLoadRelativeFeedCatalog(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"oracle": {"feed_catalog": "feeds.yaml"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "feeds.yaml")
	if cfg.Oracle.FeedCatalog != want {
		t.Fatalf("expected %s, got %s", want, cfg.Oracle.FeedCatalog)
	}
}

func TestResolveAPIKeyPrefersFile(t *testing.T) {
	cfg := AIConfig{APIKey: "from-file", APIKeyEnv: "DEFAI_TEST_KEY"}
	t.Setenv("DEFAI_TEST_KEY", "from-env")
	if got := cfg.ResolveAPIKey(); got != "from-file" {
		t.Fatalf("expected file key, got %q", got)
	}

	cfg.APIKey = ""
	if got := cfg.ResolveAPIKey(); got != "from-env" {
		t.Fatalf("expected env key, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
