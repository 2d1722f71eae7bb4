package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		"notes.txt",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", f, err)
		}
	}
	// A directory is a model only when it carries a config.json.
	mlxDir := filepath.Join(dir, "Mistral-7B-Instruct-4bit")
	if err := os.MkdirAll(mlxDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	raw, _ := json.Marshal(map[string]any{"model_type": "mistral", "hidden_size": 8, "num_hidden_layers": 1, "num_attention_heads": 2})
	if err := os.WriteFile(filepath.Join(mlxDir, "config.json"), raw, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "random-dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	models, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d: %+v", len(models), models)
	}
	byID := map[string]bool{}
	for _, m := range models {
		byID[m.ID] = true
		if m.Path == "" || !filepath.IsAbs(m.Path) {
			t.Fatalf("expected absolute path, got %q", m.Path)
		}
	}
	if !byID["Llama-3.2-3B-Instruct-Q4_K_M.gguf"] || !byID["Mistral-7B-Instruct-4bit"] {
		t.Fatalf("unexpected ids %v", byID)
	}

	for _, m := range models {
		switch m.ID {
		case "Llama-3.2-3B-Instruct-Q4_K_M.gguf":
			if m.Quant != "Q4_K_M" || m.Family != "llama" {
				t.Fatalf("unexpected model %+v", m)
			}
			if m.Name != "Llama-3.2-3B-Instruct (Q4_K_M)" {
				t.Fatalf("display name = %q", m.Name)
			}
		case "Mistral-7B-Instruct-4bit":
			if m.Family != "mistral" {
				t.Fatalf("unexpected model %+v", m)
			}
		}
	}
}

func TestScanMissingDir(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
