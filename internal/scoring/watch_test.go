package scoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestTablesWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yml")
	if err := os.WriteFile(path, []byte("attack_types:\n  DDoS: 90\n"), 0o644); err != nil {
		t.Fatalf("write tables: %v", err)
	}

	got := make(chan Tables, 4)
	w, err := NewTablesWatcher(path, func(tb Tables) { got <- tb })
	if err != nil {
		t.Fatalf("NewTablesWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte("attack_types:\n  DDoS: 42\n"), 0o644); err != nil {
		t.Fatalf("rewrite tables: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case tb := <-got:
			if tb.AttackTypes["DDoS"] == 42 {
				if tb.AttackTypes["PortScan"] != 50 {
					t.Fatalf("reloaded tables lost defaults: %v", tb.AttackTypes)
				}
				return
			}
		case <-deadline:
			t.Fatalf("tables were not reloaded")
		}
	}
}

func TestTablesWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write tables: %v", err)
	}
	called := false
	w, err := NewTablesWatcher(path, func(Tables) { called = true })
	if err != nil {
		t.Fatalf("NewTablesWatcher: %v", err)
	}
	defer w.watcher.Close()

	w.handle(fsnotify.Event{Name: filepath.Join(dir, "other.yml"), Op: fsnotify.Write})
	if called {
		t.Fatalf("unrelated file triggered reload")
	}
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if !called {
		t.Fatalf("tables file write did not trigger reload")
	}
}
