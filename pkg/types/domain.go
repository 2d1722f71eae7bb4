package types

// Model represents a discoverable base model file on disk.
type Model struct {
	// Stable identifier for the model (filename).
	// example: Llama-3.2-3B-Instruct-Q4_K_M.gguf
	ID string `json:"id" example:"Llama-3.2-3B-Instruct-Q4_K_M.gguf"`
	// Human-friendly name.
	// example: Llama-3.2-3B-Instruct (Q4_K_M)
	Name string `json:"name" example:"Llama-3.2-3B-Instruct (Q4_K_M)"`
	// Absolute path to the model file or directory.
	// example: /home/user/models/Llama-3.2-3B-Instruct-Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/Llama-3.2-3B-Instruct-Q4_K_M.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
}

// AdapterSummary is the listing view of a stored adapter; weights are not loaded.
type AdapterSummary struct {
	// Adapter identifier (directory name under the adapters dir).
	// example: 6f1c9a1e-support-tone
	ID string `json:"id" example:"6f1c9a1e-support-tone"`
	// Human-friendly adapter name.
	// example: support-tone
	Name string `json:"name" example:"support-tone"`
	// Identifier of the base model this adapter was trained against.
	// example: mlx-community/Llama-3.2-3B-Instruct-4bit
	BaseModelID string `json:"base_model_id" example:"mlx-community/Llama-3.2-3B-Instruct-4bit"`
	// LoRA rank shared by all layers.
	// example: 8
	Rank int `json:"rank" example:"8"`
	// LoRA alpha shared by all layers.
	// example: 16
	Alpha float64 `json:"alpha" example:"16"`
	// Number of adapted layers.
	// example: 32
	LayerCount int `json:"layer_count" example:"32"`
	// Total trainable parameters across all layers.
	// example: 1048576
	ParameterCount int64 `json:"parameter_count" example:"1048576"`
	// Creation timestamp (RFC 3339).
	// example: 2026-08-30T12:00:00Z
	CreatedAt string `json:"created_at" example:"2026-08-30T12:00:00Z"`
	// Final training loss reported by the backend.
	// example: 1.73
	FinalLoss float64 `json:"final_loss" example:"1.73"`
	// Total optimizer steps performed.
	// example: 36
	TrainingSteps int `json:"training_steps" example:"36"`
}

// ModelIdentity describes the upstream identity of a local model artifact.
type ModelIdentity struct {
	// Absolute path of the local model artifact.
	ModelPath string `json:"model_path"`
	// Upstream repository id used to fetch tokenizer/base weights.
	// example: meta-llama/Llama-3.2-3B-Instruct
	HuggingFaceModelID string `json:"hugging_face_model_id"`
	// Quantization label parsed from the filename, or "unknown".
	// example: Q4_K_M
	Quantization string `json:"quantization"`
	// When the record was first resolved (RFC 3339).
	AddedDate string `json:"added_date"`
	// Free-form notes (e.g. how the identity was resolved).
	Notes string `json:"notes,omitempty"`
}
