package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yml", "env: test\n")

	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTP.Addr != ":7010" {
		t.Errorf("HTTP.Addr = %q", c.HTTP.Addr)
	}
	if c.Retention.Cron != "0 2 * * *" {
		t.Errorf("Retention.Cron = %q", c.Retention.Cron)
	}
	if c.Retention.HorizonDays != 3 {
		t.Errorf("Retention.HorizonDays = %d", c.Retention.HorizonDays)
	}
	if c.Horizon() != 72*time.Hour {
		t.Errorf("Horizon() = %v", c.Horizon())
	}
	if c.Auth.Token.BearerPrefix != "Bearer " {
		t.Errorf("BearerPrefix = %q", c.Auth.Token.BearerPrefix)
	}
}

func TestLoadMergeOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "common.yml", "http:\n  addr: \":7010\"\nredis:\n  addr: \"127.0.0.1:6379\"\n")
	b := writeFile(t, dir, "override.yml", "http:\n  addr: \":9999\"\n")

	c, err := Load(a + "," + b)
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTP.Addr != ":9999" {
		t.Errorf("later file should win, got %q", c.HTTP.Addr)
	}
	if c.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("earlier values should survive, got %q", c.Redis.Addr)
	}
}

func TestLoadMissingPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("empty path list should fail")
	}
	if _, err := Load("/nonexistent/config.yml"); err == nil {
		t.Error("missing file should fail")
	}
}
