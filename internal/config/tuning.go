package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/ph.report/internal/gpio"
	"github.com/banshee-data/ph.report/internal/sensor"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for the daemon. The schema matches
// the /api/params endpoint so the same JSON serves startup configuration and
// runtime updates. Fields are pointers so partial files are safe: anything
// omitted falls back to the Get* defaults.
type TuningConfig struct {
	// Acquisition params
	UpdateInterval *string `json:"update_interval,omitempty"` // duration string like "1s"
	SampleSize     *int    `json:"sample_size,omitempty"`     // pulses per channel
	Frequency      *int    `json:"frequency,omitempty"`       // divider: 0 off, 1 2%, 2 20%, 3 100%

	// Line assignments
	SensorPins *sensor.Pins `json:"sensor_pins,omitempty"`
	ChimePin   *int         `json:"chime_pin,omitempty"`
	NarrowPin  *int         `json:"narrow_pin,omitempty"`
	WidePin    *int         `json:"wide_pin,omitempty"`

	// Button debounce (board-side noise filter)
	ButtonSteady *string `json:"button_steady,omitempty"` // duration string like "300ms"
	ButtonActive *string `json:"button_active,omitempty"`

	// Line controller port
	Port *gpio.PortOptions `json:"port,omitempty"`

	// Collaborator paths
	TablesDir   *string `json:"tables_dir,omitempty"`
	AudioDir    *string `json:"audio_dir,omitempty"`
	AudioPlayer *string `json:"audio_player,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are parseable. Range checks
// are deliberately absent here: out-of-range acquisition values are clamped
// by the sensor's setters rather than rejected.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*string{
		"update_interval": c.UpdateInterval,
		"button_steady":   c.ButtonSteady,
		"button_active":   c.ButtonActive,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.Frequency != nil && *c.Frequency < 0 {
		return fmt.Errorf("frequency must be non-negative, got %d", *c.Frequency)
	}

	if c.Port != nil {
		if _, err := c.Port.Normalize(); err != nil {
			return fmt.Errorf("invalid port options: %w", err)
		}
	}

	return nil
}

// GetUpdateInterval parses and returns the rotation period.
func (c *TuningConfig) GetUpdateInterval() time.Duration {
	if c.UpdateInterval == nil || *c.UpdateInterval == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.UpdateInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetSampleSize returns the pulse-count target or the default.
func (c *TuningConfig) GetSampleSize() int {
	if c.SampleSize == nil {
		return 20 // default
	}
	return *c.SampleSize
}

// GetFrequency returns the divider selection or the default.
func (c *TuningConfig) GetFrequency() sensor.FreqScale {
	if c.Frequency == nil {
		return sensor.Freq20 // default
	}
	return sensor.FreqScale(*c.Frequency)
}

// GetSensorPins returns the sensor line assignments or the board defaults.
func (c *TuningConfig) GetSensorPins() sensor.Pins {
	if c.SensorPins == nil {
		return sensor.DefaultPins()
	}
	return *c.SensorPins
}

// GetChimePin returns the chime line or the board default.
func (c *TuningConfig) GetChimePin() uint8 {
	if c.ChimePin == nil {
		return 21
	}
	return uint8(*c.ChimePin)
}

// GetNarrowPin returns the narrow-read button line or the board default.
func (c *TuningConfig) GetNarrowPin() uint8 {
	if c.NarrowPin == nil {
		return 5
	}
	return uint8(*c.NarrowPin)
}

// GetWidePin returns the wide-read button line or the board default.
func (c *TuningConfig) GetWidePin() uint8 {
	if c.WidePin == nil {
		return 6
	}
	return uint8(*c.WidePin)
}

// GetButtonSteady returns the button noise filter steady period.
func (c *TuningConfig) GetButtonSteady() time.Duration {
	if c.ButtonSteady == nil || *c.ButtonSteady == "" {
		return 300 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ButtonSteady)
	if err != nil {
		return 300 * time.Millisecond // default on parse error
	}
	return d
}

// GetButtonActive returns the button noise filter active period.
func (c *TuningConfig) GetButtonActive() time.Duration {
	if c.ButtonActive == nil || *c.ButtonActive == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ButtonActive)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetPort returns the line controller port options, normalized.
func (c *TuningConfig) GetPort() gpio.PortOptions {
	if c.Port == nil {
		opts, _ := gpio.PortOptions{}.Normalize()
		return opts
	}
	opts, err := c.Port.Normalize()
	if err != nil {
		opts, _ = gpio.PortOptions{}.Normalize()
	}
	return opts
}

// GetTablesDir returns the reference table directory or the default.
func (c *TuningConfig) GetTablesDir() string {
	if c.TablesDir == nil || *c.TablesDir == "" {
		return "tables"
	}
	return *c.TablesDir
}

// GetAudioDir returns the audio clip directory or the default.
func (c *TuningConfig) GetAudioDir() string {
	if c.AudioDir == nil || *c.AudioDir == "" {
		return "audio"
	}
	return *c.AudioDir
}

// GetAudioPlayer returns the audio player command or the default.
func (c *TuningConfig) GetAudioPlayer() string {
	if c.AudioPlayer == nil || *c.AudioPlayer == "" {
		return "mpg123"
	}
	return *c.AudioPlayer
}
