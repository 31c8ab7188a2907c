// Package config provides configuration loading and management for the
// confound engine. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the confound engine configuration loaded from YAML
type Config struct {
	// Motion metric parameters
	Motion struct {
		// RadiusMM is the radius used to convert rotations to arc-length
		// displacement in FD, in mm
		RadiusMM float64 `yaml:"radiusMM"`

		// SpikeFDThr is the FD threshold for spike flagging, in mm
		SpikeFDThr float64 `yaml:"spikeFDThr"`

		// SpikeDVARSZ is the DVARS z-score threshold for spike flagging
		SpikeDVARSZ float64 `yaml:"spikeDVARSZ"`
	} `yaml:"motion"`

	// Censoring parameters
	Censor struct {
		// FDThreshMM censors frames whose FD exceeds it, in mm
		FDThreshMM float64 `yaml:"fdThreshMM"`

		// DVARSThresh censors frames whose DVARS exceeds it
		DVARSThresh float64 `yaml:"dvarsThresh"`

		// MinContigVols is the minimum length of a kept run of frames
		MinContigVols int `yaml:"minContigVols"`

		// PadVols extends censoring around each censored frame
		PadVols int `yaml:"padVols"`
	} `yaml:"censor"`

	// CompCor parameters
	CompCor struct {
		// NComponents is the number of principal components to retain
		NComponents int `yaml:"nComponents"`

		// TopKPercent is the share of highest-variance voxels selected for
		// tCompCor, in percent
		TopKPercent float64 `yaml:"topKPercent"`
	} `yaml:"compcor"`

	// Temporal crop detection parameters
	Crop struct {
		// Enable switches crop detection on
		Enable bool `yaml:"enable"`

		// ZThresh is the robust z-score threshold for outlier volumes
		ZThresh float64 `yaml:"zThresh"`

		// MaxTrimStart is the maximum number of volumes trimmed from the
		// start of a run
		MaxTrimStart int `yaml:"maxTrimStart"`

		// MaxTrimEnd is the maximum number of volumes trimmed from the end
		// of a run
		MaxTrimEnd int `yaml:"maxTrimEnd"`
	} `yaml:"crop"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default motion parameters
	cfg.Motion.RadiusMM = 50.0
	cfg.Motion.SpikeFDThr = 0.5
	cfg.Motion.SpikeDVARSZ = 2.5

	// Set default censoring parameters
	cfg.Censor.FDThreshMM = 0.5
	cfg.Censor.DVARSThresh = 1.5
	cfg.Censor.MinContigVols = 5
	cfg.Censor.PadVols = 1

	// Set default CompCor parameters
	cfg.CompCor.NComponents = 6
	cfg.CompCor.TopKPercent = 2.0

	// Set default crop parameters
	cfg.Crop.Enable = true
	cfg.Crop.ZThresh = 2.5
	cfg.Crop.MaxTrimStart = 10
	cfg.Crop.MaxTrimEnd = 10

	return cfg
}

// Validate checks that the configuration values are in their allowed
// domains.
func (c *Config) Validate() error {
	if c.Motion.RadiusMM <= 0 {
		return fmt.Errorf("motion.radiusMM must be positive, got %g", c.Motion.RadiusMM)
	}
	if c.Censor.MinContigVols < 1 {
		return fmt.Errorf("censor.minContigVols must be >= 1, got %d", c.Censor.MinContigVols)
	}
	if c.Censor.PadVols < 0 {
		return fmt.Errorf("censor.padVols must be >= 0, got %d", c.Censor.PadVols)
	}
	if c.CompCor.NComponents < 1 {
		return fmt.Errorf("compcor.nComponents must be >= 1, got %d", c.CompCor.NComponents)
	}
	if c.CompCor.TopKPercent <= 0 || c.CompCor.TopKPercent > 100 {
		return fmt.Errorf("compcor.topKPercent must be in (0, 100], got %g", c.CompCor.TopKPercent)
	}
	if c.Crop.MaxTrimStart < 0 || c.Crop.MaxTrimEnd < 0 {
		return fmt.Errorf("crop trim limits must be >= 0, got start %d end %d", c.Crop.MaxTrimStart, c.Crop.MaxTrimEnd)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
