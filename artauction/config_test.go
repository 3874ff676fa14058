package artauction

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "WARN"
add_source = true

[db]
uri = "mongodb://localhost:27017"
database = "auctions"
timeout_seconds = 10

[chain]
ws_url = "wss://rpc.example.test"
contract = "0xcccc567890abcdef1234567890abcdef12345678"
start_block = 12
shards = 4

[server]
port = 8080
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Log.Level != slog.LevelWarn {
		t.Errorf("Log.Level = %v, want WARN", cfg.Log.Level)
	}
	if !cfg.Log.AddSource {
		t.Error("Log.AddSource = false, want true")
	}
	if cfg.DB.Database != "auctions" {
		t.Errorf("DB.Database = %q, want auctions", cfg.DB.Database)
	}
	if got := cfg.DB.OpTimeout(); got != 10*time.Second {
		t.Errorf("DB.OpTimeout() = %v, want 10s", got)
	}
	if cfg.Chain.StartBlock != 12 || cfg.Chain.Shards != 4 {
		t.Errorf("Chain = %+v, want start_block 12, shards 4", cfg.Chain)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.DB.Database != "art-auction" {
		t.Errorf("DB.Database = %q, want art-auction", cfg.DB.Database)
	}
	if got := cfg.DB.OpTimeout(); got != 5*time.Second {
		t.Errorf("DB.OpTimeout() = %v, want 5s default", got)
	}
	if cfg.Chain.QueueSize != 256 || cfg.Chain.Shards != 8 {
		t.Errorf("Chain defaults = %+v, want queue 256, shards 8", cfg.Chain)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Ingest.MaxUploadBytes != 50*1024*1024 {
		t.Errorf("Ingest.MaxUploadBytes = %d, want 50MiB", cfg.Ingest.MaxUploadBytes)
	}
	if cfg.Ingest.TempDir == "" {
		t.Error("Ingest.TempDir empty, want system temp dir")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("LoadConfig() = nil error for missing file")
	}
}
