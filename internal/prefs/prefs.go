// Package prefs persists console UI preferences in
// ~/.config/beacon/prefs.toml. Preferences are cosmetic: a missing or
// unreadable file yields defaults, never an error.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/beacon/internal/config"
)

const defaultPath = "~/.config/beacon/prefs.toml"

// Prefs holds UI preferences.
type Prefs struct {
	Theme    string `toml:"theme"`
	LastView string `toml:"last_view"`
}

// Default is what a fresh install starts with.
var Default = Prefs{Theme: "Midnight", LastView: "overview"}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPath
}

// withDefaults fills blank fields from Default.
func (p Prefs) withDefaults() Prefs {
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = Default.Theme
	}
	if strings.TrimSpace(p.LastView) == "" {
		p.LastView = Default.LastView
	}
	return p
}

// Load reads preferences from path, or the default location when path is
// empty.
func Load(path string) (Prefs, error) {
	resolved, err := config.ExpandPath(orDefault(path))
	if err != nil {
		return Default, nil
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return Default, nil
	}
	var p Prefs
	if err := toml.Unmarshal(raw, &p); err != nil {
		return Default, nil
	}
	return p.withDefaults(), nil
}

// Save replaces the preferences file atomically so a crash mid-write
// leaves the previous file intact.
func Save(path string, p Prefs) error {
	resolved, err := config.ExpandPath(orDefault(path))
	if err != nil {
		return fmt.Errorf("resolve prefs path: %w", err)
	}
	raw, err := toml.Marshal(p.withDefaults())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

func orDefault(path string) string {
	if strings.TrimSpace(path) == "" {
		return defaultPath
	}
	return path
}
