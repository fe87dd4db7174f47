// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// LoadOptions controls how a config file is loaded.
type LoadOptions struct {
	// AllowUnknownFields ignores unknown HCL attributes/blocks instead of
	// treating them as a load error.
	AllowUnknownFields bool
}

// DefaultLoadOptions returns sensible defaults for loading configs.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{AllowUnknownFields: false}
}

// LoadFile loads a config file (HCL or JSON, chosen by extension) and fills
// in defaults for any option the file omits.
func LoadFile(path string) (*Config, error) {
	return LoadFileWithOptions(path, DefaultLoadOptions())
}

// LoadFileWithOptions loads a config file with explicit options.
func LoadFileWithOptions(path string, opts LoadOptions) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = LoadJSON(data)
	case ".hcl":
		cfg, err = LoadHCLWithOptions(data, path, opts)
	default:
		if cfg, err = LoadHCLWithOptions(data, path, opts); err != nil {
			var jsonErr error
			if cfg, jsonErr = LoadJSON(data); jsonErr == nil {
				err = nil
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadHCL loads config from HCL bytes using DefaultLoadOptions.
func LoadHCL(data []byte, filename string) (*Config, error) {
	return LoadHCLWithOptions(data, filename, DefaultLoadOptions())
}

// LoadHCLWithOptions loads config from HCL bytes with explicit options.
func LoadHCLWithOptions(data []byte, filename string, opts LoadOptions) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		if !opts.AllowUnknownFields {
			return nil, fmt.Errorf("failed to decode HCL: %w", diags)
		}
		for _, diag := range diags {
			if diag.Severity == hcl.DiagError && diag.Summary != "Extraneous attribute" && diag.Summary != "Extraneous block" {
				return nil, fmt.Errorf("failed to decode HCL: %w", diags)
			}
		}
	}
	return &cfg, nil
}

// LoadJSON loads config from JSON bytes.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.SCSURL == "" && cfg.FakeModeDir == "" {
		return fmt.Errorf("config: scs_url must be set unless fake_mode_dir is used")
	}
	if cfg.NoExoSM && cfg.UseExoSM {
		return fmt.Errorf("config: no_exosm and use_exosm are mutually exclusive")
	}
	if cfg.MaxSCSCalls < 0 {
		return fmt.Errorf("config: max_scs_calls must be non-negative, got %d", cfg.MaxSCSCalls)
	}
	for _, n := range cfg.AggregateNicknames {
		if n.Name == "" {
			return fmt.Errorf("config: aggregate_nickname block with empty label")
		}
	}
	return nil
}

// SaveFile saves a config file, choosing the format from the extension
// (defaulting to HCL).
func SaveFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SaveJSON(cfg, path)
	default:
		return SaveHCL(cfg, path)
	}
}

// SaveJSON writes cfg to path as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// SaveHCL writes cfg to path as HCL, creating parent directories as needed.
func SaveHCL(cfg *Config, path string) error {
	data, err := GenerateHCL(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GenerateHCL renders cfg as formatted HCL bytes.
func GenerateHCL(cfg *Config) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(cfg, f.Body())
	return f.Bytes(), nil
}
