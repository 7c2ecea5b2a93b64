package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/repolocator/repository"
)

// Catalog is a file backed repository catalogue. YAML catalogues declare a
// `repositories` list; CUE catalogues declare a `repositories` struct keyed by
// repository name and are merged with registered overlays.
//
// Catalog implements repository.MetadataSource and repository.Lister.
type Catalog struct {
	path string

	mu      sync.RWMutex
	records map[string]repository.Record
}

type yamlCatalog struct {
	Repositories []repository.Record `yaml:"repositories"`
}

// NewCatalog creates a catalogue for the given file. Nothing is read until ReadData is called.
func NewCatalog(path string) *Catalog {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Catalog{path: path}
}

// Path returns the absolute path of the catalogue file.
func (c *Catalog) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// ReadData re-reads the catalogue file. On failure the previously read
// records stay available.
func (c *Catalog) ReadData() error {
	if c == nil {
		return fmt.Errorf("%w: catalogue not initialised", repository.ErrMetadataRead)
	}
	records, err := readCatalog(c.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", repository.ErrMetadataRead, c.path, err)
	}
	index := make(map[string]repository.Record, len(records))
	for _, rec := range records {
		rec.Name = strings.TrimSpace(rec.Name)
		rec.Source = c.path
		index[rec.Name] = rec
	}
	c.mu.Lock()
	c.records = index
	c.mu.Unlock()
	return nil
}

// FindByName returns the record registered under name.
func (c *Catalog) FindByName(name string) (repository.Record, bool) {
	if c == nil {
		return repository.Record{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[strings.TrimSpace(name)]
	return rec, ok
}

// Records returns all known records sorted by name.
func (c *Catalog) Records() []repository.Record {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	records := make([]repository.Record, 0, len(c.records))
	for _, rec := range c.records {
		records = append(records, rec)
	}
	c.mu.RUnlock()
	repository.SortRecords(records)
	return records
}

func isCatalogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".cue":
		return true
	default:
		return false
	}
}

func readCatalog(path string) ([]repository.Record, error) {
	var (
		records []repository.Record
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		records, err = readYAMLCatalog(path)
	case ".cue":
		records, err = readCUECatalog(path)
	default:
		return nil, fmt.Errorf("unsupported catalogue format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := validateRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

func readYAMLCatalog(path string) ([]repository.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var doc yamlCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	return doc.Repositories, nil
}

func readCUECatalog(path string) ([]repository.Record, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	if err := applyDefaultOverlays(); err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	args := []string{"./" + filepath.Base(path)}
	overlays := ResolveOverlays(dir)
	for _, file := range overlayFilesIn(dir, overlays) {
		if file == filepath.Base(path) {
			continue
		}
		args = append(args, "./"+file)
	}

	instances := load.Instances(args, &load.Config{Dir: dir, Overlay: overlays})
	if len(instances) == 0 {
		return nil, errors.New("no CUE instance loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load CUE catalogue: %w", inst.Err)
	}
	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("build CUE catalogue: %w", err)
	}
	repos := value.LookupPath(cue.ParsePath("repositories"))
	if !repos.Exists() {
		return nil, nil
	}
	var raw map[string]repository.Record
	if err := repos.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode CUE catalogue: %w", err)
	}
	records := make([]repository.Record, 0, len(raw))
	for name, rec := range raw {
		if rec.Name == "" {
			rec.Name = name
		}
		records = append(records, rec)
	}
	repository.SortRecords(records)
	return records, nil
}

func overlayFilesIn(dir string, overlays map[string]load.Source) []string {
	files := make([]string, 0, len(overlays))
	for path := range overlays {
		if filepath.Dir(path) != dir || filepath.Ext(path) != ".cue" {
			continue
		}
		files = append(files, filepath.Base(path))
	}
	sort.Strings(files)
	return files
}

func validateRecords(records []repository.Record) error {
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			return fmt.Errorf("repository %d: name is required", i)
		}
		if strings.TrimSpace(rec.Type) == "" {
			return fmt.Errorf("repository %s: type is required", name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("repository %s declared more than once", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
