package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMetadataRead reports that the repository catalogue could not be read.
	ErrMetadataRead = errors.New("repository metadata unreadable")
	// ErrNotFound reports that no catalogue record matches the selector.
	ErrNotFound = errors.New("repository not found")
	// ErrLoad reports that no implementation is registered for a record type.
	ErrLoad = errors.New("repository implementation unavailable")
	// ErrConnect reports that a repository rejected the credentials or is unreachable.
	ErrConnect = errors.New("repository connect failed")
	// ErrNoHandle reports that no handle was supplied to connect.
	ErrNoHandle = errors.New("repository handle missing")
)

// Record describes a single configured repository.
type Record struct {
	Name        string         `yaml:"name" json:"name,omitempty"`
	Type        string         `yaml:"type" json:"type"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Settings    map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
	Source      string         `yaml:"-" json:"-"`
}

// String returns a human readable label used in log messages.
func (r Record) String() string {
	if r.Type == "" {
		return r.Name
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.Type)
}

// Setting returns the trimmed string value of a settings key.
func (r Record) Setting(key string) string {
	if r.Settings == nil {
		return ""
	}
	value, ok := r.Settings[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DecodeSettings decodes the settings block into the struct pointed to by v
// using its json tags.
func (r Record) DecodeSettings(v any) error {
	if len(r.Settings) == 0 {
		return nil
	}
	raw, err := json.Marshal(r.Settings)
	if err != nil {
		return fmt.Errorf("encode %s settings: %w", r.Name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s settings: %w", r.Name, err)
	}
	return nil
}

// Handle is a live or potentially live connection to a repository backend.
//
// Implementations track their own connection state. The locator owns a handle
// exclusively, so implementations need not be safe for concurrent use.
type Handle interface {
	Init(rec Record) error
	Connect(ctx context.Context, username, password string) error
	Disconnect() error
	IsConnected() bool
	Identity() string
}

// MetadataSource exposes the catalogue of configured repositories.
type MetadataSource interface {
	// ReadData refreshes the catalogue. Lookups keep working on the previous
	// snapshot when it fails.
	ReadData() error
	FindByName(name string) (Record, bool)
}

// Lister is implemented by metadata sources that can enumerate their records.
type Lister interface {
	Records() []Record
}

// Loader instantiates the implementation registered for a record type.
type Loader interface {
	Load(rec Record) (Handle, error)
}

// SortRecords orders records by name.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
}
