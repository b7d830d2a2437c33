package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadConfigDefaults(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8081"
postgres:
  dsn: "postgres://localhost/chat"
auth:
  jwtSecret: "secret"
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("default token ttl: %v", cfg.TokenTTL())
	}
	if cfg.PingEvery() != 15*time.Second {
		t.Fatalf("default ping interval: %v", cfg.PingEvery())
	}
	if cfg.WS.SendBuffer != 256 {
		t.Fatalf("default send buffer: %d", cfg.WS.SendBuffer)
	}
	if cfg.Client.ReconnectAttempts != 5 || cfg.Client.ReconnectDelayD() != 2*time.Second {
		t.Fatalf("default reconnect: %d/%v", cfg.Client.ReconnectAttempts, cfg.Client.ReconnectDelayD())
	}
	if cfg.Client.TypingThrottleD() != 3*time.Second || cfg.Client.TypingDebounceD() != 4*time.Second {
		t.Fatal("typing defaults broken")
	}
	if cfg.Client.UndoWindowD() != 6*time.Second {
		t.Fatalf("default undo window: %v", cfg.Client.UndoWindowD())
	}
	if cfg.Client.PageSize != 20 {
		t.Fatalf("default page size: %d", cfg.Client.PageSize)
	}
}

func TestLoadConfigRequiredFields(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8081"
`)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("missing postgres.dsn must fail validation")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":9000"
postgres:
  dsn: "postgres://localhost/chat"
auth:
  jwtSecret: "secret"
  tokenTTL: "1h"
ws:
  pingEvery: "5s"
client:
  undoWindow: "10s"
  pageSize: 50
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TokenTTL() != time.Hour || cfg.PingEvery() != 5*time.Second {
		t.Fatal("duration overrides not applied")
	}
	if cfg.Client.UndoWindowD() != 10*time.Second || cfg.Client.PageSize != 50 {
		t.Fatal("client overrides not applied")
	}
}

func TestMalformedDurationFallsBack(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8081"
postgres:
  dsn: "postgres://localhost/chat"
auth:
  jwtSecret: "secret"
  tokenTTL: "not-a-duration"
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("malformed duration must fall back, got %v", cfg.TokenTTL())
	}
}
