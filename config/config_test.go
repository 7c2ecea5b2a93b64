package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/timzifer/repolocator/repository"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadResolvesCatalogRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locator.yaml")
	writeFile(t, path, `name: sales
logging:
  level: debug
repository:
  catalog: repositories.yaml
  selector: sales-repo
  username: alice
  password: secret
hot_reload: true
reload_interval: 250ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Repository.Catalog != filepath.Join(dir, "repositories.yaml") {
		t.Fatalf("unexpected catalog path %q", cfg.Repository.Catalog)
	}
	if cfg.Repository.Selector != "sales-repo" {
		t.Fatalf("unexpected selector %q", cfg.Repository.Selector)
	}
	if cfg.Source.File != path || cfg.Source.Name != "sales" {
		t.Fatalf("unexpected source %+v", cfg.Source)
	}
	if !cfg.HotReload || cfg.ReloadEvery() != 250*time.Millisecond {
		t.Fatalf("unexpected reload settings: %v %v", cfg.HotReload, cfg.ReloadEvery())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsMissingCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locator.yaml")
	writeFile(t, path, "repository:\n  selector: sales-repo\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "repository.catalog") {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestLoadRejectsUnknownCatalogFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locator.yaml")
	writeFile(t, path, "repository:\n  catalog: repositories.xml\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for xml catalogue")
	}
}

func TestLoadRejectsEmptyPathAndDocument(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	writeFile(t, path, "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestReloadEveryDefault(t *testing.T) {
	var cfg *Config
	if cfg.ReloadEvery() != time.Second {
		t.Fatalf("unexpected default interval %v", cfg.ReloadEvery())
	}
}

func TestCredentialsPreferEnvironment(t *testing.T) {
	t.Setenv("REPOLOCATOR_TEST_PASSWORD", "from-env")
	repo := RepositoryConfig{Username: "alice", Password: "inline", PasswordEnv: "REPOLOCATOR_TEST_PASSWORD"}
	user, pass := repo.Credentials()
	if user != "alice" || pass != "from-env" {
		t.Fatalf("unexpected credentials %q/%q", user, pass)
	}

	repo.PasswordEnv = ""
	if _, pass := repo.Credentials(); pass != "inline" {
		t.Fatalf("expected inline password, got %q", pass)
	}
}

func TestCatalogReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repositories.yaml")
	writeFile(t, path, `repositories:
  - name: sales-repo
    type: memory
    description: Sales data
    settings:
      users:
        alice: secret
  - name: " files "
    type: filesystem
    settings:
      path: /srv/repo
`)

	catalog := NewCatalog(path)
	if err := catalog.ReadData(); err != nil {
		t.Fatalf("read: %v", err)
	}
	rec, ok := catalog.FindByName("sales-repo")
	if !ok {
		t.Fatal("sales-repo not found")
	}
	if rec.Type != "memory" || rec.Description != "Sales data" || rec.Source != path {
		t.Fatalf("unexpected record %+v", rec)
	}
	files, ok := catalog.FindByName("files")
	if !ok || files.Setting("path") != "/srv/repo" {
		t.Fatalf("unexpected files record %+v (found %v)", files, ok)
	}
	if _, ok := catalog.FindByName("unknown-repo"); ok {
		t.Fatal("unexpected record for unknown-repo")
	}
	records := catalog.Records()
	if len(records) != 2 || records[0].Name != "files" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestCatalogKeepsLastSnapshotOnReadFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repositories.yaml")
	writeFile(t, path, "repositories:\n  - name: sales-repo\n    type: memory\n")

	catalog := NewCatalog(path)
	if err := catalog.ReadData(); err != nil {
		t.Fatalf("read: %v", err)
	}

	writeFile(t, path, "repositories: [::")
	err := catalog.ReadData()
	if !errors.Is(err, repository.ErrMetadataRead) {
		t.Fatalf("expected metadata read error, got %v", err)
	}
	if _, ok := catalog.FindByName("sales-repo"); !ok {
		t.Fatal("expected previous snapshot to remain available")
	}
}

func TestCatalogRejectsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"duplicate.yaml": "repositories:\n  - {name: a, type: memory}\n  - {name: a, type: memory}\n",
		"noname.yaml":    "repositories:\n  - {type: memory}\n",
		"notype.yaml":    "repositories:\n  - {name: a}\n",
	}
	for file, content := range cases {
		path := filepath.Join(dir, file)
		writeFile(t, path, content)
		if err := NewCatalog(path).ReadData(); !errors.Is(err, repository.ErrMetadataRead) {
			t.Fatalf("%s: expected metadata read error, got %v", file, err)
		}
	}
}

func TestCatalogMissingFile(t *testing.T) {
	catalog := NewCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	if err := catalog.ReadData(); !errors.Is(err, repository.ErrMetadataRead) {
		t.Fatalf("expected metadata read error, got %v", err)
	}
	if len(catalog.Records()) != 0 {
		t.Fatal("expected empty catalogue")
	}
}

func TestCatalogReadsCUEWithOverlay(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	if err := RegisterOverlayString("defaults.cue", `package catalog

repositories: "scratch": {
	type: "memory"
	description: "Scratch repository"
}
`); err != nil {
		t.Fatalf("register overlay: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "repositories.cue")
	writeFile(t, path, `package catalog

repositories: "sales-repo": {
	type: "memory"
	settings: users: alice: "secret"
}
`)

	catalog := NewCatalog(path)
	if err := catalog.ReadData(); err != nil {
		t.Fatalf("read: %v", err)
	}
	rec, ok := catalog.FindByName("sales-repo")
	if !ok || rec.Type != "memory" {
		t.Fatalf("unexpected sales-repo record %+v (found %v)", rec, ok)
	}
	if _, ok := catalog.FindByName("scratch"); !ok {
		t.Fatal("overlay record scratch not merged")
	}
}

func TestCatalogValidatesAgainstRepositorySchema(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	dir := t.TempDir()
	path := filepath.Join(dir, "repositories.cue")
	writeFile(t, path, `package catalog

import "repolocator.dev/repository"

repository.#Catalog

repositories: "archive": {
	type: "filesystem"
	settings: path: "/srv/archive"
}
`)

	catalog := NewCatalog(path)
	if err := catalog.ReadData(); err != nil {
		t.Fatalf("read: %v", err)
	}
	rec, ok := catalog.FindByName("archive")
	if !ok || rec.Name != "archive" || rec.Setting("path") != "/srv/archive" {
		t.Fatalf("unexpected archive record %+v (found %v)", rec, ok)
	}

	writeFile(t, path, `package catalog

import "repolocator.dev/repository"

repository.#Catalog

repositories: "broken": {
	description: "type missing"
}
`)
	if err := catalog.ReadData(); err == nil {
		t.Fatal("expected schema violation to fail the read")
	}
	if _, ok := catalog.FindByName("archive"); !ok {
		t.Fatal("expected previous snapshot to survive a failed read")
	}
}

func TestRegisterDefaultOverlayIsAppliedOnLoad(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	if err := applyDefaultOverlays(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	resolved := ResolveOverlays("/srv/catalog")
	if _, ok := resolved[filepath.Join("/srv/catalog", repositoryOverlayPath)]; !ok {
		t.Fatalf("repository schema overlay missing from %v", resolved)
	}
	// Re-applying after new registrations tolerates overlays that already exist.
	RegisterDefaultOverlay(func() error { return nil })
	if err := applyDefaultOverlays(); err != nil {
		t.Fatalf("re-apply defaults: %v", err)
	}
}

func TestRegisterOverlayValidation(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	if err := RegisterOverlayString("", "package catalog"); err == nil {
		t.Fatal("expected error for empty overlay path")
	}
	if err := RegisterOverlayString("/abs/defaults.cue", "package catalog"); err == nil {
		t.Fatal("expected error for absolute overlay path")
	}
	if err := RegisterOverlay("defaults.cue", nil); err == nil {
		t.Fatal("expected error for nil overlay source")
	}
	if err := RegisterOverlayString("defaults.cue", "package catalog"); err != nil {
		t.Fatalf("register overlay: %v", err)
	}
	if err := RegisterOverlayString("defaults.cue", "package catalog"); err == nil {
		t.Fatal("expected duplicate overlay error")
	}
	resolved := ResolveOverlays("/srv/catalog")
	if _, ok := resolved[filepath.Join("/srv/catalog", "defaults.cue")]; !ok {
		t.Fatalf("unexpected resolved overlays %v", resolved)
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "locator.yaml")
	catalogPath := filepath.Join(dir, "repositories.yaml")
	cfg := &Config{
		Source:     ModuleReference{File: cfgPath},
		Repository: RepositoryConfig{Catalog: catalogPath},
	}
	files := SourceFiles(cfg)
	if len(files) != 2 || files[0] != cfgPath || files[1] != catalogPath {
		t.Fatalf("unexpected source files %v", files)
	}
	if SourceFiles(nil) != nil {
		t.Fatal("expected nil for nil config")
	}
}
