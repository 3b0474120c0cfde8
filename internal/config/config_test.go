package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prefix != "." {
		t.Errorf("expected default prefix %q, got %q", ".", cfg.Prefix)
	}
	if cfg.Port != "3000" {
		t.Errorf("expected default port 3000, got %s", cfg.Port)
	}
	if cfg.ReconnectDelay != 10*time.Second {
		t.Errorf("expected reconnect delay 10s, got %v", cfg.ReconnectDelay)
	}
	if cfg.LogoutDelay != 3*time.Second {
		t.Errorf("expected logout delay 3s, got %v", cfg.LogoutDelay)
	}
	if cfg.PresenceInterval != 10*time.Second {
		t.Errorf("expected presence interval 10s, got %v", cfg.PresenceInterval)
	}
	if cfg.AuthFolder != "./auth_info_multi" {
		t.Errorf("unexpected auth folder %q", cfg.AuthFolder)
	}
	if !cfg.NotifyOnConnect {
		t.Error("expected connect notification to default on")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("BOT_PREFIX", "!")
	t.Setenv("OWNERS", " 123@s.whatsapp.net, 456@lid ,")
	t.Setenv("RECONNECT_DELAY", "2s")
	t.Setenv("PLUGINS_DISABLED", "tagall")
	t.Setenv("DISPATCH_WORKERS", "0")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prefix != "!" {
		t.Errorf("expected prefix !, got %q", cfg.Prefix)
	}
	if len(cfg.Owners) != 2 || cfg.Owners[0] != "123@s.whatsapp.net" || cfg.Owners[1] != "456@lid" {
		t.Errorf("unexpected owners %v", cfg.Owners)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("expected reconnect delay 2s, got %v", cfg.ReconnectDelay)
	}
	if len(cfg.PluginsDisabled) != 1 || cfg.PluginsDisabled[0] != "tagall" {
		t.Errorf("unexpected disabled plugins %v", cfg.PluginsDisabled)
	}
	if cfg.DispatchWorkers != 64 {
		t.Errorf("expected worker count to fall back to 64, got %d", cfg.DispatchWorkers)
	}
}

func TestParseInvalidDuration(t *testing.T) {
	t.Setenv("LOGOUT_DELAY", "soon")
	if _, err := Parse(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
