// Package config reads the toolkit settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sma-lab/internal/estimator"
	"sma-lab/pkg/geometry"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the GUI and the CLI.
type Config struct {
	LogLevel  string
	LogFormat string

	DBPath      string
	DataDir     string
	MonitorAddr string

	Bandwidth  float64
	SerialBaud int
	DarkTheme  bool

	OCRRegion    geometry.RectInt
	OCRThreshold float64
	MarkerMM     float64
}

// Default OCR overlay region and threshold of the thermal camera.
var (
	DefaultOCRRegion    = geometry.RectInt{X: 260, Y: 10, Width: 120, Height: 40}
	DefaultOCRThreshold = 240.0
)

// LoadEnv seeds the environment from the given .env files, or ./.env when
// none is given. Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load builds a Config from the environment.
func Load() *Config {
	region, thresh := getEnvAsROI("SMALAB_OCR_ROI", DefaultOCRRegion, DefaultOCRThreshold)
	return &Config{
		LogLevel:     getEnv("SMALAB_LOG_LEVEL", "info"),
		LogFormat:    getEnv("SMALAB_LOG_FORMAT", "text"),
		DBPath:       getEnv("SMALAB_DB_PATH", filepath.Join(defaultConfigDir(), "sessions.db")),
		DataDir:      getEnv("SMALAB_DATA_DIR", filepath.Join(".", "experiments")),
		MonitorAddr:  getEnv("SMALAB_MONITOR_ADDR", ""),
		Bandwidth:    getEnvAsFloat("SMALAB_BANDWIDTH", estimator.DefaultBandwidth),
		SerialBaud:   getEnvAsInt("SMALAB_SERIAL_BAUD", 115200),
		DarkTheme:    !strings.EqualFold(getEnv("SMALAB_THEME", "dark"), "light"),
		OCRRegion:    region,
		OCRThreshold: thresh,
		MarkerMM:     getEnvAsFloat("SMALAB_MARKER_MM", 20),
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "sma-lab")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsROI parses "x,y,w,h" or "x,y,w,h,threshold".
func getEnvAsROI(key string, region geometry.RectInt, thresh float64) (geometry.RectInt, float64) {
	value := os.Getenv(key)
	if value == "" {
		return region, thresh
	}
	r, t, err := ParseROI(value)
	if err != nil {
		return region, thresh
	}
	if t < 0 {
		t = thresh
	}
	return r, t
}

// ParseROI parses "x,y,w,h" with an optional fifth threshold field. The
// threshold is -1 when absent.
func ParseROI(s string) (geometry.RectInt, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return geometry.RectInt{}, 0, fmt.Errorf("invalid region %q: want x,y,w,h[,threshold]", s)
	}
	var v [4]int
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return geometry.RectInt{}, 0, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = n
	}
	r := geometry.RectInt{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Empty() {
		return geometry.RectInt{}, 0, fmt.Errorf("invalid region %q: empty", s)
	}
	thresh := -1.0
	if len(parts) == 5 {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		if err != nil {
			return geometry.RectInt{}, 0, fmt.Errorf("invalid threshold in %q: %w", s, err)
		}
		thresh = f
	}
	return r, thresh, nil
}
