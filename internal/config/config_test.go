package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestLoadRequiresToken(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
discord_token: file-token
storage:
  driver: memory
  data_path: /tmp/gw.json
spam:
  window_seconds: 30
  strike_reset: IDLE
  strike_cooldown_minutes: 15
moderation:
  purge_max: 500
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("SPAM_TIMEOUT_MINUTES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "file-token" || cfg.Storage.Driver != "memory" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Spam.Window() != 30*time.Second || cfg.Spam.TimeoutMinutes != 7 {
		t.Fatalf("unexpected spam config %+v", cfg.Spam)
	}
	if cfg.Spam.StrikeReset != "idle" || cfg.Spam.Cooldown() != 15*time.Minute {
		t.Fatalf("unexpected strike reset %+v", cfg.Spam)
	}
	if cfg.Moderation.PurgeMax != 100 {
		t.Fatalf("expected purge max clamped to 100, got %d", cfg.Moderation.PurgeMax)
	}
	if cfg.Tickets.CloseDelay() != 10*time.Second || cfg.Moderation.Prefix != "!" {
		t.Fatalf("expected defaults to survive, got %+v", cfg)
	}
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DISCORD_TOKEN=dotenv-token\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "dotenv-token" {
		t.Fatalf("expected token from .env, got %q", cfg.DiscordToken)
	}
}

func TestUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "mongo"
	if err := cfg.normalize(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != zapcore.DebugLevel || parseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("unexpected level mapping")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
