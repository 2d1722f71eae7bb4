package main

import "testing"

func TestDefaultConfigEnvOverride(t *testing.T) {
	t.Setenv("TUNERD_ADDR", ":7777")
	t.Setenv("TUNERD_MODELS_DIR", "/srv/models")
	cfg := defaultConfig()
	if cfg.Addr != ":7777" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.ModelsDir != "/srv/models" {
		t.Fatalf("models dir = %q", cfg.ModelsDir)
	}
	if cfg.PythonBin != "python3" {
		t.Fatalf("python bin default = %q", cfg.PythonBin)
	}
}

func TestFlagOverrides(t *testing.T) {
	cmd := buildRootCmd()
	if err := cmd.Flags().Set("addr", ":1234"); err != nil {
		t.Fatalf("setting flag: %v", err)
	}
	if err := cmd.Flags().Set("keep-output", "true"); err != nil {
		t.Fatalf("setting flag: %v", err)
	}
	cfg := flagOverrides(cmd)
	if cfg.Addr != ":1234" {
		t.Fatalf("addr override = %q", cfg.Addr)
	}
	if !cfg.KeepOutput {
		t.Fatalf("expected keep-output override")
	}
}
