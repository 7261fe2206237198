// Package prefs keeps the analyzer preferences in a JSON file under the
// user config dir.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	prefsFile = "preferences.json"
	maxRecent = 8
)

// Session is one set of analysis inputs.
type Session struct {
	ImagesDir       string `json:"images_dir"`
	DatasetPath     string `json:"dataset"`
	CalibrationPath string `json:"calibration"`
}

// Values are the stored preferences.
type Values struct {
	Last      Session   `json:"last"`
	Recent    []Session `json:"recent,omitempty"`
	Bandwidth float64   `json:"bandwidth,omitempty"`

	WindowWidth  float32 `json:"window_width,omitempty"`
	WindowHeight float32 `json:"window_height,omitempty"`
	FitToWindow  bool    `json:"fit_to_window"`
}

// Prefs guards the values and the file they live in.
type Prefs struct {
	mu     sync.RWMutex
	values Values
	path   string
}

// Load reads preferences from <user config dir>/sma-lab/preferences.json.
// A missing or unreadable file yields empty preferences.
func Load() *Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return LoadFrom(filepath.Join(configDir, "sma-lab"))
}

// LoadFrom reads preferences.json from dir.
func LoadFrom(dir string) *Prefs {
	p := &Prefs{path: filepath.Join(dir, prefsFile)}
	if data, err := os.ReadFile(p.path); err == nil {
		_ = json.Unmarshal(data, &p.values)
	}
	return p
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}

// Path returns the preferences file.
func (p *Prefs) Path() string {
	return p.path
}

// Get returns a copy of the values.
func (p *Prefs) Get() Values {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := p.values
	v.Recent = append([]Session(nil), p.values.Recent...)
	return v
}

// Update changes the values under the lock.
func (p *Prefs) Update(fn func(v *Values)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.values)
}

// Remember makes s the last session and moves it to the front of the
// recent list. Sessions without a dataset are not remembered.
func (p *Prefs) Remember(s Session) {
	if s.DatasetPath == "" {
		return
	}
	p.Update(func(v *Values) {
		v.Last = s
		recent := []Session{s}
		for _, r := range v.Recent {
			if r != s && len(recent) < maxRecent {
				recent = append(recent, r)
			}
		}
		v.Recent = recent
	})
}
