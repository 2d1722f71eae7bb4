package types

// TrainRequest starts a training job via POST /train.
type TrainRequest struct {
	// Required path to the JSONL training dataset. Each line: {"text": "..."}.
	// example: /home/user/datasets/support.jsonl
	Dataset string `json:"dataset" example:"/home/user/datasets/support.jsonl"`
	// Model id from GET /models (adapter backend) or a Hugging Face model id
	// (gguf backend when no local file matches).
	// example: Llama-3.2-3B-Instruct-Q4_K_M.gguf
	Model string `json:"model" example:"Llama-3.2-3B-Instruct-Q4_K_M.gguf"`
	// Backend variant: "adapter" produces a reusable adapter, "gguf" a merged
	// standalone model file. Defaults to "adapter".
	// example: adapter
	Backend string `json:"backend,omitempty" example:"adapter"`
	// Human-friendly name for the resulting adapter or model.
	// example: support-tone
	Name string `json:"name,omitempty" example:"support-tone"`
	// LoRA rank; 0 uses the default (8).
	// example: 8
	Rank int `json:"rank,omitempty" example:"8"`
	// LoRA alpha; 0 uses the default (16).
	// example: 16
	Alpha float64 `json:"alpha,omitempty" example:"16"`
	// Learning rate; 0 uses the default (1e-4).
	// example: 0.0001
	LearningRate float64 `json:"learning_rate,omitempty" example:"0.0001"`
	// Batch size; 0 uses the default (4).
	// example: 4
	BatchSize int `json:"batch_size,omitempty" example:"4"`
	// Number of epochs; 0 uses the default (3).
	// example: 3
	Epochs int `json:"epochs,omitempty" example:"3"`
	// Maximum sequence length in tokens; 0 uses the default (2048).
	// example: 2048
	MaxSeqLength int `json:"max_seq_length,omitempty" example:"2048"`
	// Gradient accumulation steps; 0 uses the default (4).
	// example: 4
	GradAccumSteps int `json:"gradient_accumulation_steps,omitempty" example:"4"`
	// GGUF quantization for the merged-model backend (f16, q4_k_m, q8_0, ...).
	// example: f16
	Quantization string `json:"quantization,omitempty" example:"f16"`
}

// TrainEvent is one NDJSON line of the POST /train stream.
type TrainEvent struct {
	// Event kind: progress, log, result or error.
	// example: progress
	Type string `json:"type" example:"progress"`
	// Optimizer step for progress events.
	Step int `json:"step,omitempty"`
	// Total planned steps for progress events.
	TotalSteps int `json:"total_steps,omitempty"`
	// Current epoch for progress events.
	Epoch int `json:"epoch,omitempty"`
	// Training loss for progress events.
	Loss float64 `json:"loss,omitempty"`
	// Throughput estimate for progress events.
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
	// Informational message for log events.
	Message string `json:"message,omitempty"`
	// Error text for error events.
	Error string `json:"error,omitempty"`
	// Adapter id for result events of the adapter backend.
	AdapterID string `json:"adapter_id,omitempty"`
	// Artifact path for result events of the gguf backend.
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// TrainStatus is returned by GET /train/status.
type TrainStatus struct {
	// Current job state: idle, preparing, running, completed, failed, cancelled.
	// example: running
	State string `json:"state" example:"running"`
	// Job id when a job exists.
	JobID string `json:"job_id,omitempty"`
	// Model under training.
	Model string `json:"model,omitempty"`
	// Backend variant of the job.
	Backend string `json:"backend,omitempty"`
	// Last reported step.
	Step int `json:"step,omitempty"`
	// Total planned steps.
	TotalSteps int `json:"total_steps,omitempty"`
	// Last reported loss.
	Loss float64 `json:"loss,omitempty"`
	// Failure message for failed jobs.
	Error string `json:"error,omitempty"`
}

// AdapterDetail is the single-adapter view returned by GET /adapters/{id}.
type AdapterDetail struct {
	AdapterSummary
	// Names of adapted layers in sorted order.
	Layers []string `json:"layers"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// AdaptersResponse wraps the list returned by GET /adapters.
type AdaptersResponse struct {
	// List of stored adapters.
	Adapters []AdapterSummary `json:"adapters"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: adapter not found: abc
	Error string `json:"error" example:"adapter not found: abc"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
