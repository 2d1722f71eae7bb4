// Package model introspects a local base model's configuration so adapter
// skeletons are built from the model's actual layer shapes, never guessed.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tunerd/internal/common/fsutil"
)

// configNotFoundError signals a model directory without a readable config.json.
type configNotFoundError struct{ path string }

func (e configNotFoundError) Error() string { return "model config not found: " + e.path }

// ErrConfigNotFound constructs a configNotFoundError.
func ErrConfigNotFound(path string) error { return configNotFoundError{path: path} }

// IsConfigNotFound reports whether err indicates a missing model config.
func IsConfigNotFound(err error) bool {
	_, ok := err.(configNotFoundError)
	return ok
}

// Config is the subset of a model's config.json needed for layer introspection.
type Config struct {
	ModelType        string `json:"model_type"`
	HiddenSize       int    `json:"hidden_size"`
	NumHiddenLayers  int    `json:"num_hidden_layers"`
	NumAttnHeads     int    `json:"num_attention_heads"`
	NumKeyValueHeads int    `json:"num_key_value_heads"`
	HeadDim          int    `json:"head_dim"`
	IntermediateSize int    `json:"intermediate_size"`
}

// LoadConfig reads config.json from a model directory (or the directory
// containing a model file).
func LoadConfig(modelPath string) (*Config, error) {
	dir := modelPath
	if info, err := os.Stat(modelPath); err == nil && !info.IsDir() {
		dir = filepath.Dir(modelPath)
	}
	cfgPath := filepath.Join(dir, "config.json")
	if !fsutil.PathExists(cfgPath) {
		return nil, ErrConfigNotFound(cfgPath)
	}
	b, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfgPath, err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if cfg.HiddenSize <= 0 || cfg.NumHiddenLayers <= 0 {
		return nil, fmt.Errorf("config %s: hidden_size=%d num_hidden_layers=%d",
			cfgPath, cfg.HiddenSize, cfg.NumHiddenLayers)
	}
	if cfg.NumAttnHeads <= 0 {
		cfg.NumAttnHeads = 1
	}
	if cfg.NumKeyValueHeads <= 0 {
		// models without grouped-query attention use one KV head per head
		cfg.NumKeyValueHeads = cfg.NumAttnHeads
	}
	if cfg.HeadDim <= 0 {
		cfg.HeadDim = cfg.HiddenSize / cfg.NumAttnHeads
	}
	return &cfg, nil
}
