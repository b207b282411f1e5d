package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Engine.FrameRate != 60 {
		t.Fatalf("expected default frame rate 60, got %d", cfg.Engine.FrameRate)
	}
	if cfg.Engine.SpeakingDamp != 0.55 {
		t.Fatalf("expected default speaking damp 0.55, got %v", cfg.Engine.SpeakingDamp)
	}
	if cfg.Bridge.Path != "/ws/rig" {
		t.Fatalf("expected default bridge path, got %q", cfg.Bridge.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MIEN_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MIEN_BUS_USERNAME", "alice")
	t.Setenv("MIEN_BUS_PASSWORD", "secret")
	t.Setenv("MIEN_BUS_TLS_INSECURE", "true")
	t.Setenv("MIEN_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("MIEN_ENGINE_FRAME_RATE", "30")
	t.Setenv("MIEN_ENGINE_BREATH_SCALE", "0.5")
	t.Setenv("MIEN_ENGINE_SPEAKING_DAMP", "0.8")
	t.Setenv("MIEN_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("MIEN_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("MIEN_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("MIEN_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("MIEN_SESSION_ID", "session-override")
	t.Setenv("MIEN_BRIDGE_PATH", "/ws/avatar")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Engine.FrameRate != 30 {
		t.Fatalf("expected frame rate override, got %d", cfg.Engine.FrameRate)
	}
	if cfg.Engine.BreathScale != 0.5 {
		t.Fatalf("expected breath scale override, got %v", cfg.Engine.BreathScale)
	}
	if cfg.Engine.SpeakingDamp != 0.8 {
		t.Fatalf("expected speaking damp override, got %v", cfg.Engine.SpeakingDamp)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store max sessions override")
	}
	if cfg.Session.ID != "session-override" {
		t.Fatalf("expected session id override, got %q", cfg.Session.ID)
	}
	if cfg.Bridge.Path != "/ws/avatar" {
		t.Fatalf("expected bridge path override, got %q", cfg.Bridge.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frame rate", func(c *Config) { c.Engine.FrameRate = 0 }},
		{"damp above one", func(c *Config) { c.Engine.SpeakingDamp = 1.5 }},
		{"bad retention mode", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
		{"relative bridge path", func(c *Config) { c.Bridge.Path = "ws/rig" }},
		{"no servers external mode", func(c *Config) { c.Bus.Embedded = false; c.Bus.Servers = nil }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
