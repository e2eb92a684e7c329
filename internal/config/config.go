package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Detection holds the persisted user preference and recognition thresholds.
type Detection struct {
	Enabled        bool    `toml:"enabled"`
	BoxColor       string  `toml:"box_color"`
	LineWidth      int     `toml:"line_width"`
	MinConfidence  float64 `toml:"min_confidence"`
	MatchThreshold float64 `toml:"match_threshold"`
	ReinitOnSeek   bool    `toml:"reinit_on_seek"`
}

// Label controls the name tag drawn under each box.
type Label struct {
	FontScale  float64 `toml:"font_scale"`
	Padding    int     `toml:"padding"`
	Background string  `toml:"background"`
	FontColor  string  `toml:"font_color"`
}

// Lifecycle holds the controller retry and polling budgets.
type Lifecycle struct {
	MaxInitAttempts     int `toml:"max_init_attempts"`
	RetryDelayMS        int `toml:"retry_delay_ms"`
	VideoPollIntervalMS int `toml:"video_poll_interval_ms"`
	VideoPollAttempts   int `toml:"video_poll_attempts"`
	PagePollIntervalMS  int `toml:"page_poll_interval_ms"`
	PagePollAttempts    int `toml:"page_poll_attempts"`
	TimingWindow        int `toml:"timing_window"`
}

// Navigation decides which pages get a detector.
type Navigation struct {
	TargetPattern string `toml:"target_pattern"`
}

// Engine configures the inference worker.
type Engine struct {
	Python           string `toml:"python"`
	Script           string `toml:"script"`
	ModelsDir        string `toml:"models_dir"`
	WorkingWidth     int    `toml:"working_width"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
}

// Gallery locates the recognition artifact. Path wins over Dir.
type Gallery struct {
	Path string `toml:"path"`
	Dir  string `toml:"dir"`
}

// Player configures the desktop video player host.
type Player struct {
	Sources       []string `toml:"sources"`
	DisplayWidth  int      `toml:"display_width"`
	DisplayHeight int      `toml:"display_height"`
	RefreshHz     int      `toml:"refresh_hz"`
}

// Database holds the PostgreSQL connection string for the gallery store.
type Database struct {
	URL string `toml:"url"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Config is the full application configuration.
type Config struct {
	Detection  Detection  `toml:"detection"`
	Label      Label      `toml:"label"`
	Lifecycle  Lifecycle  `toml:"lifecycle"`
	Navigation Navigation `toml:"navigation"`
	Engine     Engine     `toml:"engine"`
	Gallery    Gallery    `toml:"gallery"`
	Player     Player     `toml:"player"`
	Database   Database   `toml:"database"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/faceoverlay/config.toml")
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the resolved path, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("faceoverlay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// TargetPattern compiles the navigation pattern. Validate guarantees it compiles.
func (c *Config) TargetPattern() *regexp.Regexp {
	return regexp.MustCompile(c.Navigation.TargetPattern)
}

// RetryDelay and the other accessors convert the millisecond fields.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Lifecycle.RetryDelayMS) * time.Millisecond
}

func (c *Config) VideoPollInterval() time.Duration {
	return time.Duration(c.Lifecycle.VideoPollIntervalMS) * time.Millisecond
}

func (c *Config) PagePollInterval() time.Duration {
	return time.Duration(c.Lifecycle.PagePollIntervalMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Engine.RequestTimeoutMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
