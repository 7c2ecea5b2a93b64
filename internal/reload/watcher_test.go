package reload

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/timzifer/repolocator/config"
)

func TestWatcherTracksConfigAndCatalog(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "locator.yaml")
	catalog := filepath.Join(dir, "repositories.yaml")
	writeFile(t, cfgFile, "config")
	writeFile(t, catalog, "catalog")

	watcher := NewWatcher(&config.Config{
		Source:     config.ModuleReference{File: cfgFile},
		Repository: config.RepositoryConfig{Catalog: catalog},
	})

	if len(watcher.files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(watcher.files))
	}
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes on first check, got %v", changed)
	}
}

func TestWatcherReportsEachChangeOnce(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "locator.yaml")
	catalog := filepath.Join(dir, "repositories.yaml")
	writeFile(t, cfgFile, "config")
	writeFile(t, catalog, "catalog")

	watcher := NewWatcher(&config.Config{
		Source:     config.ModuleReference{File: cfgFile},
		Repository: config.RepositoryConfig{Catalog: catalog},
	})

	time.Sleep(10 * time.Millisecond)
	writeFile(t, catalog, "catalog-UPDATED")

	if changed := watcher.Check(); !reflect.DeepEqual(changed, []string{catalog}) {
		t.Fatalf("Check() = %v, want %v", changed, []string{catalog})
	}
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected change to be reported once, got %v", changed)
	}
}

func TestWatcherDetectsRemovalAndCreation(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "locator.yaml")
	catalog := filepath.Join(dir, "repositories.yaml")
	writeFile(t, cfgFile, "config")

	watcher := NewWatcher(&config.Config{
		Source:     config.ModuleReference{File: cfgFile},
		Repository: config.RepositoryConfig{Catalog: catalog},
	})

	writeFile(t, catalog, "catalog")
	if err := os.Remove(cfgFile); err != nil {
		t.Fatalf("Remove(%s) error = %v", cfgFile, err)
	}

	changed := watcher.Check()
	expected := []string{cfgFile, catalog}
	if catalog < cfgFile {
		expected = []string{catalog, cfgFile}
	}
	if !reflect.DeepEqual(changed, expected) {
		t.Fatalf("Check() = %v, want %v", changed, expected)
	}
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var watcher *Watcher
	watcher.Update(&config.Config{})
	if changed := watcher.Check(); changed != nil {
		t.Fatalf("expected nil slice from nil watcher, got %v", changed)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
