package trainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tunerd/internal/identity"
	"tunerd/internal/lora"
	"tunerd/internal/store"
	"tunerd/pkg/types"
)

// Backend variant names accepted in a TrainRequest.
const (
	BackendAdapter = "adapter"
	BackendGGUF    = "gguf"
)

// Result is the finalized artifact of a completed job. Exactly one of the
// fields is set, according to the backend.
type Result struct {
	AdapterID    string `json:"adapter_id,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// backend describes one training variant: which script runs, how the job
// maps onto its argv, and how the finished artifact is persisted.
type backend interface {
	name() string
	script() string
	argv(scriptPath string, job *Job) []string
	finalize(job *Job, final Message) (*Result, error)
}

// hyperArgs renders the flag set shared by both backend scripts.
func hyperArgs(job *Job) []string {
	cfg := job.Config
	return []string{
		"--rank", strconv.Itoa(cfg.Rank),
		"--alpha", formatFloat(cfg.Alpha),
		"--lr", formatFloat(cfg.LearningRate),
		"--batch-size", strconv.Itoa(cfg.BatchSize),
		"--epochs", strconv.Itoa(cfg.Epochs),
		"--max-seq-length", strconv.Itoa(cfg.MaxSeqLength),
		"--lora-layers", strconv.Itoa(adaptedLayerCount(job.NumLayers)),
		"--lora-dropout", "0.0",
		"--gradient-accumulation-steps", strconv.Itoa(cfg.GradAccumSteps),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// adapterBackend trains reusable adapter weights and persists them through
// the store.
type adapterBackend struct {
	store *store.Store
	log   zerolog.Logger
}

func (adapterBackend) name() string   { return BackendAdapter }
func (adapterBackend) script() string { return "train_lora.py" }

func (adapterBackend) argv(scriptPath string, job *Job) []string {
	args := []string{
		scriptPath,
		"--model-path", job.ModelPath,
		"--dataset", job.DatasetPath,
		"--output", job.OutputDir,
	}
	return append(args, hyperArgs(job)...)
}

func (b adapterBackend) finalize(job *Job, final Message) (*Result, error) {
	path := final.AdapterPath
	if path == "" {
		path = filepath.Join(job.OutputDir, "adapters.safetensors")
	}
	cfg := job.Config
	a := lora.NewAdapter(job.ID, job.Skeleton.BaseModelID, cfg.Rank, cfg.Alpha)
	if err := store.ReadWeightsFile(path, a, b.log); err != nil {
		return nil, ErrProcess("reading trained weights: " + err.Error())
	}
	// Trained layers must match the initialized skeleton; anything else is a
	// backend bug, dropped rather than persisted.
	for name, l := range a.Layers {
		ref, ok := job.Skeleton.Layers[name]
		if !ok {
			b.log.Warn().Str("layer", name).Msg("dropping trained layer absent from skeleton")
			delete(a.Layers, name)
			continue
		}
		if l.InputDim != ref.InputDim || l.OutputDim != ref.OutputDim {
			b.log.Warn().Str("layer", name).Msg("dropping trained layer with unexpected shape")
			delete(a.Layers, name)
		}
	}
	if len(a.Layers) == 0 {
		return nil, ErrProcess("backend produced no usable layers")
	}
	a.Meta = lora.Metadata{
		CreatedAt:       job.Skeleton.Meta.CreatedAt,
		TrainingDataset: job.DatasetPath,
		TrainingSteps:   finalSteps(job, final),
		FinalLoss:       job.Loss,
		Epochs:          cfg.Epochs,
		LearningRate:    cfg.LearningRate,
		BatchSize:       cfg.BatchSize,
		AdapterName:     job.Name,
		BaseModelID:     job.Skeleton.BaseModelID,
	}
	if err := b.store.Save(a); err != nil {
		return nil, err
	}
	return &Result{AdapterID: a.ID}, nil
}

// ggufBackend trains against upstream weights and merges the result into a
// standalone GGUF file registered with the identity registry.
type ggufBackend struct {
	ids *identity.Registry
	log zerolog.Logger
}

func (ggufBackend) name() string   { return BackendGGUF }
func (ggufBackend) script() string { return "train_lora_gguf.py" }

func (ggufBackend) argv(scriptPath string, job *Job) []string {
	args := []string{
		scriptPath,
		"--hf-model-id", job.UpstreamID,
		"--dataset", job.DatasetPath,
		"--output", job.OutputDir,
		"--gguf-output", job.GGUFOutput,
	}
	args = append(args, hyperArgs(job)...)
	return append(args, "--quantization", job.Config.Quantization)
}

func (b ggufBackend) finalize(job *Job, final Message) (*Result, error) {
	path := final.GGUFPath
	if path == "" {
		path = job.GGUFOutput
	}
	if _, err := os.Stat(path); err != nil {
		return nil, ErrProcess("backend reported completion but no model file at " + path)
	}
	rec := &types.ModelIdentity{
		ModelPath:          path,
		HuggingFaceModelID: job.UpstreamID,
		Quantization:       strings.ToUpper(job.Config.Quantization),
		AddedDate:          time.Now().UTC().Format(time.RFC3339),
		Notes: fmt.Sprintf("fine-tuned from %s on %s",
			job.UpstreamID, filepath.Base(job.DatasetPath)),
	}
	if err := b.ids.Register(rec); err != nil {
		b.log.Warn().Err(err).Str("path", path).Msg("could not write identity sidecar for trained model")
	}
	return &Result{ArtifactPath: path}, nil
}

// finalSteps prefers the backend's reported total over the local estimate.
func finalSteps(job *Job, final Message) int {
	if final.Step > 0 {
		return final.Step
	}
	if job.Step > 0 {
		return job.Step
	}
	return job.TotalSteps
}
