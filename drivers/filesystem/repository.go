package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timzifer/repolocator/repository"
)

// Type is the catalogue type served by this driver.
const Type = "filesystem"

var (
	// ErrInvalidCredentials reports credentials that do not match the configured ones.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotConnected reports an operation on a disconnected repository.
	ErrNotConnected = errors.New("repository not connected")
)

// Settings describes the configuration accepted via settings.
type Settings struct {
	Path     string `json:"path"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Create   bool   `json:"create,omitempty"`
}

// Repository exposes the regular files of a directory.
type Repository struct {
	name      string
	settings  Settings
	root      string
	connected bool
}

// New returns an uninitialised repository. It satisfies repository.Factory.
func New(repository.Record) (repository.Handle, error) {
	return &Repository{}, nil
}

// Register installs the driver in reg.
func Register(reg *repository.Registry) error {
	return reg.Register(Type, New)
}

func (r *Repository) Init(rec repository.Record) error {
	var settings Settings
	if err := rec.DecodeSettings(&settings); err != nil {
		return err
	}
	path := strings.TrimSpace(settings.Path)
	if path == "" {
		return fmt.Errorf("filesystem repository %s: path is required", rec.Name)
	}
	if !filepath.IsAbs(path) && rec.Source != "" {
		path = filepath.Join(filepath.Dir(rec.Source), path)
	}
	r.name = rec.Name
	r.settings = settings
	r.root = filepath.Clean(path)
	r.connected = false
	return nil
}

func (r *Repository) Connect(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.settings.Username != "" && (username != r.settings.Username || password != r.settings.Password) {
		return fmt.Errorf("filesystem repository %s: user %q: %w", r.name, username, ErrInvalidCredentials)
	}
	if r.settings.Create {
		if err := os.MkdirAll(r.root, 0o755); err != nil {
			return fmt.Errorf("filesystem repository %s: create %s: %w", r.name, r.root, err)
		}
	}
	info, err := os.Stat(r.root)
	if err != nil {
		return fmt.Errorf("filesystem repository %s: %w", r.name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem repository %s: %s is not a directory", r.name, r.root)
	}
	r.connected = true
	return nil
}

func (r *Repository) Disconnect() error {
	r.connected = false
	return nil
}

func (r *Repository) IsConnected() bool { return r.connected }

func (r *Repository) Identity() string { return Type + ":" + r.name }

// Root returns the directory backing the repository.
func (r *Repository) Root() string { return r.root }

// List returns the names of the regular files in the repository, sorted.
func (r *Repository) List() ([]string, error) {
	if !r.connected {
		return nil, ErrNotConnected
	}
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the contents of the named file.
func (r *Repository) ReadFile(name string) ([]byte, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteFile replaces the contents of the named file.
func (r *Repository) WriteFile(name string, data []byte) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (r *Repository) resolve(name string) (string, error) {
	if !r.connected {
		return "", ErrNotConnected
	}
	if !filepath.IsLocal(name) || strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("filesystem repository %s: invalid file name %q", r.name, name)
	}
	return filepath.Join(r.root, name), nil
}
