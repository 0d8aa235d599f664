package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.CacheSize != 256 {
		t.Errorf("CacheSize = %d, want 256", cfg.CacheSize)
	}
	if cfg.NoMusicDisconnectTimeout != 5*time.Minute {
		t.Errorf("NoMusicDisconnectTimeout = %s", cfg.NoMusicDisconnectTimeout)
	}
	if cfg.CookiesPath != "cookies.txt" {
		t.Errorf("CookiesPath = %q", cfg.CookiesPath)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN")
	t.Setenv("CACHE_SIZE", "")
	os.Unsetenv("CACHE_SIZE")

	path := filepath.Join(t.TempDir(), ".env")
	content := "DISCORD_TOKEN=from-file\nCACHE_SIZE=32\nNO_USERS_DISCONNECT_TIMEOUT=30s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DISCORD_TOKEN")
		os.Unsetenv("CACHE_SIZE")
		os.Unsetenv("NO_USERS_DISCONNECT_TIMEOUT")
	})

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Token != "from-file" || cfg.CacheSize != 32 {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.NoUsersDisconnectTimeout != 30*time.Second {
		t.Errorf("NoUsersDisconnectTimeout = %s", cfg.NoUsersDisconnectTimeout)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("missing token", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "")
		os.Unsetenv("DISCORD_TOKEN")
		if _, err := LoadConfig(missing); err == nil {
			t.Error("Expected an error without DISCORD_TOKEN")
		}
	})

	t.Run("bad cache size", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "secret")
		t.Setenv("CACHE_SIZE", "0")
		if _, err := LoadConfig(missing); err == nil {
			t.Error("Expected an error for CACHE_SIZE=0")
		}
	})

	t.Run("bad bitrate", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "secret")
		t.Setenv("OPUS_BITRATE", "4")
		if _, err := LoadConfig(missing); err == nil {
			t.Error("Expected an error for OPUS_BITRATE=4")
		}
	})
}
