package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return p
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "config.yaml", `
logging:
  level: debug
  console: true
storage:
  path: ./tasks.db
engine:
  scan_interval: 1m
  grace: 10m
dispatch:
  rate_per_sec: 5
  skip_read: true
smtp:
  addr: mail.example.com:587
  from: taskping@example.com
`)

	m := NewManager(p)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "./tasks.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Engine.Grace != "10m" {
		t.Errorf("engine.grace = %q", cfg.Engine.Grace)
	}
	if cfg.Dispatch.RatePerSec != 5 || !cfg.Dispatch.SkipRead {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.SMTP == nil || cfg.SMTP.Addr != "mail.example.com:587" {
		t.Errorf("smtp = %+v", cfg.SMTP)
	}
	if cfg.Telegram != nil {
		t.Errorf("telegram should be absent, got %+v", cfg.Telegram)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "config.yaml", `
storage:
  path: ./tasks.db
  pth_typo: oops
`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseJSONPassthrough(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "config.json",
		`{"storage":{"path":"/var/lib/taskping/tasks.db"}}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/taskping/tasks.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Errorf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "30s", time.Minute); err != nil || d != 30*time.Second {
		t.Errorf("30s = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Error("expected error for junk duration")
	}
	if _, err := ParseDurationField("x", "-1m"); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "storage:\n  path: ./a.db\n")
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	writeFile(t, dir, "config.yaml", "storage:\n  path: ./b.db\n")
	m.reload(context.Background())

	select {
	case cfg := <-sub:
		if cfg.Storage.Path != "./b.db" {
			t.Errorf("published path = %q", cfg.Storage.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}

	// Unchanged content must not publish again.
	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatal("unchanged reload published")
	case <-time.After(100 * time.Millisecond):
	}
}
