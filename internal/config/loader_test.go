package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "cfg.yaml", `
addr: ":9090"
models_dir: /srv/models
adapters_dir: /srv/adapters
python_bin: /usr/bin/python3
keep_output: true
cors_origins:
  - http://localhost:5173
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.ModelsDir != "/srv/models" || cfg.AdaptersDir != "/srv/adapters" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.KeepOutput {
		t.Fatalf("expected keep_output true")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadJSONAndTOML(t *testing.T) {
	jsonPath := writeTemp(t, "cfg.json", `{"addr": ":7070", "scripts_dir": "/opt/scripts"}`)
	cfg, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ScriptsDir != "/opt/scripts" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	tomlPath := writeTemp(t, "cfg.toml", "addr = \":6060\"\nhub_endpoint = \"https://hub.example\"\n")
	cfg, err = Load(tomlPath)
	if err != nil {
		t.Fatalf("Load toml: %v", err)
	}
	if cfg.Addr != ":6060" || cfg.HubEndpoint != "https://hub.example" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := writeTemp(t, "cfg.ini", "addr=:1")
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestMerge(t *testing.T) {
	base := Config{Addr: ":8080", ModelsDir: "/a", LogLevel: "info"}
	merged := base.Merge(Config{ModelsDir: "/b", KeepOutput: true})
	if merged.Addr != ":8080" {
		t.Fatalf("merge clobbered addr: %q", merged.Addr)
	}
	if merged.ModelsDir != "/b" || !merged.KeepOutput || merged.LogLevel != "info" {
		t.Fatalf("unexpected merge result %+v", merged)
	}
}
