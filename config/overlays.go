package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue/load"
)

var (
	overlayMu sync.RWMutex
	overlays  = make(map[string]load.Source)

	defaultMu       sync.Mutex
	defaultOverlays []func() error
	defaultsApplied bool
)

var errOverlayExists = errors.New("overlay already registered")

// RegisterOverlay registers a virtual CUE file placed next to the catalogue.
func RegisterOverlay(path string, src load.Source) error {
	normalized, err := normalizeOverlayPath(path)
	if err != nil {
		return err
	}
	if src == nil {
		return errors.New("overlay source must not be nil")
	}
	overlayMu.Lock()
	defer overlayMu.Unlock()
	if _, exists := overlays[normalized]; exists {
		return fmt.Errorf("overlay %s: %w", normalized, errOverlayExists)
	}
	overlays[normalized] = src
	return nil
}

// RegisterOverlayString registers a virtual CUE file from a raw string.
func RegisterOverlayString(path, cue string) error {
	return RegisterOverlay(path, load.FromString(cue))
}

// RegisterDefaultOverlay queues a registration that runs before the next CUE
// catalogue is loaded. Drivers call it from init to publish their schemas.
func RegisterDefaultOverlay(register func() error) {
	if register == nil {
		return
	}
	defaultMu.Lock()
	defaultOverlays = append(defaultOverlays, register)
	defaultsApplied = false
	defaultMu.Unlock()
}

func applyDefaultOverlays() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultsApplied {
		return nil
	}
	for _, register := range defaultOverlays {
		if err := register(); err != nil && !errors.Is(err, errOverlayExists) {
			return fmt.Errorf("register default overlay: %w", err)
		}
	}
	defaultsApplied = true
	return nil
}

func normalizeOverlayPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("overlay path must not be empty")
	}
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." || cleaned == string(filepath.Separator) {
		return "", errors.New("overlay path must reference a file")
	}
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("overlay path %s must be relative to the catalogue directory", cleaned)
	}
	return cleaned, nil
}

// ResolveOverlays returns a copy of the overlay registry keyed by absolute paths for load.Config.
func ResolveOverlays(baseDir string) map[string]load.Source {
	overlayMu.RLock()
	defer overlayMu.RUnlock()
	if len(overlays) == 0 {
		return nil
	}
	resolved := make(map[string]load.Source, len(overlays))
	for path, src := range overlays {
		resolved[filepath.Join(baseDir, path)] = src
	}
	return resolved
}

// ResetOverlaysForTest clears the overlay registry. This helper is intended for tests only.
func ResetOverlaysForTest() {
	overlayMu.Lock()
	overlays = make(map[string]load.Source)
	overlayMu.Unlock()
	defaultMu.Lock()
	defaultsApplied = false
	defaultMu.Unlock()
}
