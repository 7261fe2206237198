// Package experiment describes a recorded experiment folder and the rig
// calibration it was recorded with.
package experiment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Folder layout of a recorded experiment.
const (
	ManifestName = "experiment.json"
	DataName     = "data.csv"
	SideCamDir   = "cam1"
	ThermalDir   = "cam2"
)

// FolderLayout is the time layout of experiment folder names.
const FolderLayout = "20060102_150405"

// Manifest is the experiment.json file written next to data.csv.
type Manifest struct {
	Version  int       `json:"version"`
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Notes    string    `json:"notes,omitempty"`

	// Heating cycle sent to the controller, in milliseconds.
	ActiveMS int `json:"active_ms"`
	RestMS   int `json:"rest_ms"`

	Force           ForceCalibration `json:"force"`
	ZeroDeformation float64          `json:"zero_deformation_mm"`
	Finished        bool             `json:"finished"`
	Rows            int              `json:"rows"`

	// Paths relative to the manifest.
	DataPath    string `json:"data"`
	SideCamPath string `json:"side_camera"`
	ThermalPath string `json:"thermal_camera"`
}

// New creates a manifest for an experiment folder named after started.
func New(started time.Time, activeMS, restMS int) *Manifest {
	return &Manifest{
		Version:     1,
		ID:          uuid.NewString(),
		Name:        started.Format(FolderLayout),
		Created:     started,
		Modified:    started,
		ActiveMS:    activeMS,
		RestMS:      restMS,
		Force:       DefaultForceCalibration(),
		DataPath:    DataName,
		SideCamPath: SideCamDir,
		ThermalPath: ThermalDir,
	}
}

// Load loads a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadDir loads the manifest of an experiment folder.
func LoadDir(dir string) (*Manifest, error) {
	return Load(filepath.Join(dir, ManifestName))
}

// Save writes the manifest to path.
func (m *Manifest) Save(path string) error {
	m.Modified = time.Now()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve returns rel as an absolute path relative to the manifest at
// manifestPath.
func Resolve(manifestPath, rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(manifestPath), rel)
}

// DataFile returns the absolute path of data.csv.
func (m *Manifest) DataFile(manifestPath string) string {
	return Resolve(manifestPath, m.DataPath)
}

// SideCamFolder returns the absolute path of the deflection camera frames.
func (m *Manifest) SideCamFolder(manifestPath string) string {
	return Resolve(manifestPath, m.SideCamPath)
}

// ThermalFolder returns the absolute path of the thermal camera frames.
func (m *Manifest) ThermalFolder(manifestPath string) string {
	return Resolve(manifestPath, m.ThermalPath)
}
