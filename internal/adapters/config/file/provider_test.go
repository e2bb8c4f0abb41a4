package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/actiongate/internal/pkg/config"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProvider_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  port: 9200\npolicy:\n  auth_redirect: /login\n")

	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want 9200", cfg.Server.Port)
	}
	if got := cfg.Xtra("policy", "auth_redirect", ""); got != "/login" {
		t.Errorf("Xtra(policy.auth_redirect) = %v", got)
	}
	if p.Current() != cfg {
		t.Error("Current() does not return the loaded config")
	}
}

func TestProvider_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server: [unclosed\n")

	p, _ := NewProvider(path)
	if _, err := p.Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestProvider_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "server:\n  port: 9200\n")

	p, _ := NewProvider(path)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *config.Config, 8)
	if err := p.Watch(ctx, func(cfg *config.Config) { changes <- cfg }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// unrelated files in the same directory are ignored
	writeConfig(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	writeConfig(t, path, "server:\n  port: 9300\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Server.Port == 9300 {
				if p.Current().Server.Port != 9300 {
					t.Error("Current() not updated")
				}
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
