package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"tunerd/pkg/types"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestQuantLabel(t *testing.T) {
	cases := map[string]string{
		"Llama-3.2-3B-Instruct-Q4_K_M.gguf": "Q4_K_M",
		"model.Q8_0.gguf":                   "Q8_0",
		"Mistral-7B-v0.1-q5_k_m.gguf":       "Q5_K_M",
		"Llama-3.2-1B-Instruct-4bit":        "4bit",
		"weights-bf16.safetensors":          "BF16",
		"plain-model.bin":                   "unknown",
	}
	for in, want := range cases {
		if got := QuantLabel(in); got != want {
			t.Fatalf("QuantLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRepoIDFromPath(t *testing.T) {
	id, ok := repoIDFromPath("/cache/mlx-community/Llama-3.2-3B-Instruct-4bit/model.safetensors")
	if !ok || id != "mlx-community/Llama-3.2-3B-Instruct-4bit" {
		t.Fatalf("got %q ok=%v", id, ok)
	}
	if _, ok := repoIDFromPath("/home/user/model.gguf"); ok {
		t.Fatalf("expected filesystem noise to be rejected")
	}
}

func TestInferBaseRepo(t *testing.T) {
	cases := map[string]string{
		"mlx-community/Llama-3.2-3B-Instruct-4bit":  "meta-llama/Llama-3.2-3B-Instruct",
		"TheBloke/Mistral-7B-Instruct-v0.2-GGUF":    "mistralai/Mistral-7B-Instruct-v0.2",
		"bartowski/Qwen2.5-7B-Instruct-GGUF":        "Qwen/Qwen2.5-7B-Instruct",
		"unsloth/custom-net-4bit":                   "",
		"acme/SomeModel-GGUF":                       "acme/SomeModel",
		"randomuser/whatever":                       "",
		"mlx-community/TinyLlama-1.1B-Chat-v1.0-4bit": "TinyLlama/TinyLlama-1.1B-Chat-v1.0",
	}
	for in, want := range cases {
		if got := inferBaseRepo(in); got != want {
			t.Fatalf("inferBaseRepo(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveSidecarFirst(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	touch(t, modelPath)
	sidecar := `{"modelPath":"` + modelPath + `","huggingFaceModelId":"meta-llama/Llama-3.2-3B-Instruct","quantization":"Q4_K_M","addedDate":"2026-01-01T00:00:00Z"}`
	if err := os.WriteFile(modelPath+SidecarSuffix, []byte(sidecar), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	r := NewRegistry(nil, zerolog.Nop())
	rec, err := r.Resolve(context.Background(), modelPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec == nil || rec.HuggingFaceModelID != "meta-llama/Llama-3.2-3B-Instruct" {
		t.Fatalf("unexpected record %+v", rec)
	}
	// cached now: removing the sidecar must not matter
	if err := os.Remove(modelPath + SidecarSuffix); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rec2, err := r.Resolve(context.Background(), modelPath)
	if err != nil || rec2 == nil || rec2.HuggingFaceModelID != rec.HuggingFaceModelID {
		t.Fatalf("cache miss: %+v err=%v", rec2, err)
	}
}

func TestResolveViaHubCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/models/mlx-community/Llama-3.2-3B-Instruct-4bit" {
			http.NotFound(w, req)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "mlx-community/Llama-3.2-3B-Instruct-4bit",
			"tags":     []string{"mlx"},
			"cardData": map[string]any{"base_model": "meta-llama/Llama-3.2-3B-Instruct"},
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "mlx-community", "Llama-3.2-3B-Instruct-4bit", "model.safetensors")
	touch(t, modelPath)

	r := NewRegistry(NewHubClient(srv.URL, ""), zerolog.Nop())
	rec, err := r.Resolve(context.Background(), modelPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec == nil || rec.HuggingFaceModelID != "meta-llama/Llama-3.2-3B-Instruct" {
		t.Fatalf("unexpected record %+v", rec)
	}
	// successful resolution writes the sidecar for instant future lookups
	if _, err := os.Stat(modelPath + SidecarSuffix); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
}

func TestResolveFallsBackToNamingConventions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "TheBloke", "Mistral-7B-Instruct-v0.2-GGUF", "mistral-7b-instruct-v0.2.Q4_K_M.gguf")
	touch(t, modelPath)

	r := NewRegistry(NewHubClient(srv.URL, ""), zerolog.Nop())
	rec, err := r.Resolve(context.Background(), modelPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec == nil || rec.HuggingFaceModelID != "mistralai/Mistral-7B-Instruct-v0.2" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Quantization != "Q4_K_M" {
		t.Fatalf("quantization %q", rec.Quantization)
	}
}

func TestRegisterWritesSidecarSchema(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	touch(t, modelPath)
	r := NewRegistry(nil, zerolog.Nop())
	err := r.Register(&types.ModelIdentity{
		ModelPath:          modelPath,
		HuggingFaceModelID: "meta-llama/Llama-3.2-3B-Instruct",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	raw, err := os.ReadFile(modelPath + SidecarSuffix)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var keys map[string]any
	if err := json.Unmarshal(raw, &keys); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	for _, k := range []string{"modelPath", "huggingFaceModelId", "quantization", "addedDate"} {
		if _, ok := keys[k]; !ok {
			t.Fatalf("sidecar missing %q key: %s", k, raw)
		}
	}
	if keys["huggingFaceModelId"] != "meta-llama/Llama-3.2-3B-Instruct" {
		t.Fatalf("huggingFaceModelId = %v", keys["huggingFaceModelId"])
	}
}

func TestResolveUnknownIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	touch(t, modelPath)
	r := NewRegistry(nil, zerolog.Nop())
	rec, err := r.Resolve(context.Background(), modelPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected unknown identity, got %+v", rec)
	}
}

func TestCardBaseModelFromTags(t *testing.T) {
	c := &CardInfo{Tags: []string{"gguf", "base_model:quantized:meta-llama/Llama-3.2-3B"}}
	if got := c.BaseModel(); got != "meta-llama/Llama-3.2-3B" {
		t.Fatalf("got %q", got)
	}
}
