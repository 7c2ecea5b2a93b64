// Package memory provides an in-process repository backed by a map. It is
// used for demos and tests where no external backend is available.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/timzifer/repolocator/repository"
)

// Type is the catalogue type served by this driver.
const Type = "memory"

var (
	// ErrInvalidCredentials reports an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotConnected reports an operation on a disconnected repository.
	ErrNotConnected = errors.New("repository not connected")
)

// Settings describes the configuration accepted via settings.
type Settings struct {
	// Users maps user names to passwords. An empty table admits anyone.
	Users   map[string]string `json:"users,omitempty"`
	Entries map[string]string `json:"entries,omitempty"`
}

// Repository is an in-memory key/value store guarded by a user table.
type Repository struct {
	mu        sync.RWMutex
	name      string
	settings  Settings
	entries   map[string]string
	connected bool
	user      string
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
	entries := make(map[string]string, len(settings.Entries))
	for key, value := range settings.Entries {
		entries[key] = value
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = rec.Name
	r.settings = settings
	r.entries = entries
	r.connected = false
	r.user = ""
	return nil
}

func (r *Repository) Connect(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.settings.Users) > 0 {
		expected, ok := r.settings.Users[username]
		if !ok || expected != password {
			return fmt.Errorf("memory repository %s: user %q: %w", r.name, username, ErrInvalidCredentials)
		}
	}
	r.connected = true
	r.user = username
	return nil
}

func (r *Repository) Disconnect() error {
	r.mu.Lock()
	r.connected = false
	r.user = ""
	r.mu.Unlock()
	return nil
}

func (r *Repository) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

func (r *Repository) Identity() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Type + ":" + r.name
}

// User returns the name the repository is connected as.
func (r *Repository) User() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.user
}

// Get returns the value stored under key.
func (r *Repository) Get(key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.connected {
		return "", false, ErrNotConnected
	}
	value, ok := r.entries[key]
	return value, ok, nil
}

// Put stores value under key.
func (r *Repository) Put(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return ErrNotConnected
	}
	if r.entries == nil {
		r.entries = make(map[string]string)
	}
	r.entries[key] = value
	return nil
}

// Keys lists the stored keys in sorted order.
func (r *Repository) Keys() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.connected {
		return nil, ErrNotConnected
	}
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
