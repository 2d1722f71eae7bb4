package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	AdaptersDir string `json:"adapters_dir" yaml:"adapters_dir" toml:"adapters_dir"`
	PythonBin   string `json:"python_bin" yaml:"python_bin" toml:"python_bin"`
	ScriptsDir  string `json:"scripts_dir" yaml:"scripts_dir" toml:"scripts_dir"`
	WorkDir     string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	KeepOutput  bool   `json:"keep_output" yaml:"keep_output" toml:"keep_output"`
	HubEndpoint string `json:"hub_endpoint" yaml:"hub_endpoint" toml:"hub_endpoint"`
	HubToken    string `json:"hub_token" yaml:"hub_token" toml:"hub_token"`
	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// CORS allowed origins; empty disables CORS.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays non-zero values of other onto c and returns the result.
func (c Config) Merge(other Config) Config {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ModelsDir != "" {
		c.ModelsDir = other.ModelsDir
	}
	if other.AdaptersDir != "" {
		c.AdaptersDir = other.AdaptersDir
	}
	if other.PythonBin != "" {
		c.PythonBin = other.PythonBin
	}
	if other.ScriptsDir != "" {
		c.ScriptsDir = other.ScriptsDir
	}
	if other.WorkDir != "" {
		c.WorkDir = other.WorkDir
	}
	if other.KeepOutput {
		c.KeepOutput = true
	}
	if other.HubEndpoint != "" {
		c.HubEndpoint = other.HubEndpoint
	}
	if other.HubToken != "" {
		c.HubToken = other.HubToken
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if len(other.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), other.CORSOrigins...)
	}
	return c
}
