package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tunerd/internal/httpapi"
	"tunerd/internal/identity"
	"tunerd/internal/safetensors"
	"tunerd/internal/store"
	"tunerd/internal/trainer"
	"tunerd/pkg/types"
)

// newStack wires real components against temp dirs and a fake shell-script
// training backend, served over httptest.
func newStack(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	modelsDir := filepath.Join(root, "models")
	scriptsDir := filepath.Join(root, "scripts")
	for _, d := range []string{modelsDir, scriptsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	log := zerolog.Nop()
	st, err := store.New(filepath.Join(root, "adapters"), log)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	ids := identity.NewRegistry(nil, log)
	tr := trainer.New(trainer.Config{
		PythonBin:  "/bin/sh",
		ScriptsDir: scriptsDir,
		ModelsDir:  modelsDir,
		WorkDir:    root,
	}, st, ids, log)
	srv := httpapi.NewServer(st, tr, ids, httpapi.Options{ModelsDir: modelsDir, Log: log})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, root
}

func writeModel(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, "models", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir model: %v", err)
	}
	cfg := map[string]any{
		"model_type":          "llama",
		"hidden_size":         64,
		"num_hidden_layers":   2,
		"num_attention_heads": 4,
		"num_key_value_heads": 4,
		"intermediate_size":   128,
	}
	raw, _ := json.Marshal(cfg)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), raw, 0o644); err != nil {
		t.Fatalf("writing config.json: %v", err)
	}
}

func writeDataset(t *testing.T, root string) string {
	t.Helper()
	line, _ := json.Marshal(map[string]string{
		"text": "one two three four five six seven eight nine ten eleven twelve",
	})
	path := filepath.Join(root, "dataset.jsonl")
	body := strings.Repeat(string(line)+"\n", 4)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}
	return path
}

func writeWeightsFixture(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(root, "trained.safetensors")
	tensors := map[string]safetensors.Tensor{
		"model.layers.0.self_attn.q_proj.lora_a": {Shape: []int{64, 2}, Data: make([]float32, 128)},
		"model.layers.0.self_attn.q_proj.lora_b": {Shape: []int{2, 64}, Data: make([]float32, 128)},
	}
	if err := safetensors.WriteFile(path, tensors, nil); err != nil {
		t.Fatalf("writing weights: %v", err)
	}
	return path
}

func TestTrainListDeleteFlow(t *testing.T) {
	ts, root := newStack(t)
	writeModel(t, root, "tiny-llama")
	dataset := writeDataset(t, root)
	weights := writeWeightsFixture(t, root)
	t.Setenv("TUNERD_TEST_WEIGHTS", weights)

	script := `#!/bin/sh
echo '{"type":"log","message":"tokenizing"}'
echo '{"type":"progress","step":1,"total_steps":1,"loss":1.25}'
echo "{\"type\":\"complete\",\"adapter_path\":\"$TUNERD_TEST_WEIGHTS\"}"
`
	if err := os.WriteFile(filepath.Join(root, "scripts", "train_lora.py"), []byte(script), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	reqBody, _ := json.Marshal(types.TrainRequest{
		Dataset: dataset,
		Model:   "tiny-llama",
		Name:    "e2e-tune",
		Rank:    2,
		Alpha:   4,
	})
	resp, err := http.Post(ts.URL+"/train", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /train: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("train status = %d body=%s", resp.StatusCode, body)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var final types.TrainEvent
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &final); err != nil {
		t.Fatalf("decoding final event: %v", err)
	}
	if final.Type != "result" || final.AdapterID == "" {
		t.Fatalf("unexpected final event %+v", final)
	}

	// The trained adapter is visible in listings and retrievable in full.
	resp, err = http.Get(ts.URL + "/adapters")
	if err != nil {
		t.Fatalf("GET /adapters: %v", err)
	}
	var list types.AdaptersResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	resp.Body.Close()
	if len(list.Adapters) != 1 || list.Adapters[0].Name != "e2e-tune" {
		t.Fatalf("unexpected adapters %+v", list.Adapters)
	}

	resp, err = http.Get(ts.URL + "/adapters/" + final.AdapterID)
	if err != nil {
		t.Fatalf("GET /adapters/{id}: %v", err)
	}
	var detail types.AdapterDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decoding detail: %v", err)
	}
	resp.Body.Close()
	if detail.FinalLoss != 1.25 || len(detail.Layers) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/adapters/"+final.AdapterID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/adapters/" + final.AdapterID)
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
}

func TestCancelOverHTTP(t *testing.T) {
	ts, root := newStack(t)
	writeModel(t, root, "tiny-llama")
	dataset := writeDataset(t, root)

	script := `#!/bin/sh
echo '{"type":"progress","step":1,"total_steps":100,"loss":3.0}'
exec sleep 30
`
	if err := os.WriteFile(filepath.Join(root, "scripts", "train_lora.py"), []byte(script), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	reqBody, _ := json.Marshal(types.TrainRequest{Dataset: dataset, Model: "tiny-llama"})
	done := make(chan []string, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/train", "application/json", bytes.NewReader(reqBody))
		if err != nil {
			done <- nil
			return
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		done <- strings.Split(strings.TrimSpace(string(raw)), "\n")
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/train/status")
		if err != nil {
			t.Fatalf("GET /train/status: %v", err)
		}
		var st types.TrainStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decoding status: %v", err)
		}
		resp.Body.Close()
		if st.State == "running" && st.Step >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached running state, last %+v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/train/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /train/cancel: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}

	select {
	case lines := <-done:
		if lines == nil {
			t.Fatalf("train request failed")
		}
		var last types.TrainEvent
		if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
			t.Fatalf("decoding last event: %v", err)
		}
		if last.Type != "error" || !strings.Contains(last.Error, "cancelled") {
			t.Fatalf("unexpected final event %+v", last)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("training stream did not end after cancel")
	}

	resp, err = http.Get(ts.URL + "/train/status")
	if err != nil {
		t.Fatalf("GET /train/status: %v", err)
	}
	var st types.TrainStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	resp.Body.Close()
	if st.State != "cancelled" {
		t.Fatalf("expected cancelled state, got %q", st.State)
	}
}
