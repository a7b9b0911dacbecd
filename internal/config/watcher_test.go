package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaani.yaml")
	writeConfigFile(t, path, minimalYAML)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":8080" {
		t.Errorf("Current().Server.ListenAddr = %q, want :8080", got)
	}
}

func TestWatcherInvalidInitialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaani.yaml")
	writeConfigFile(t, path, "server: [not a mapping]\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaani.yaml")
	writeConfigFile(t, path, minimalYAML)

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		select {
		case changed <- new:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Rewrite with a different log level. Force a future mtime so the
	// quick mtime check cannot miss a same-second rewrite.
	writeConfigFile(t, path, minimalYAML+"\nsession:\n  max_turns: 30\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Session.MaxTurns != 30 {
			t.Errorf("reloaded MaxTurns = %d, want 30", cfg.Session.MaxTurns)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change in time")
	}
}

func TestWatcherKeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaani.yaml")
	writeConfigFile(t, path, minimalYAML)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, "definitely: not valid\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.ListenAddr; got != ":8080" {
		t.Errorf("Current() changed after invalid edit: ListenAddr = %q", got)
	}
}
