package lora

// TrainingConfig holds the hyperparameters handed to the training backend.
type TrainingConfig struct {
	Rank           int
	Alpha          float64
	LearningRate   float64
	BatchSize      int
	Epochs         int
	MaxSeqLength   int
	SaveSteps      int
	GradAccumSteps int
	// Module suffixes to adapt, e.g. "self_attn.q_proj".
	TargetModules []string
	// GGUF quantization for the merged-model backend (f16, q4_k_m, ...).
	Quantization string
}

// DefaultTargetModules are the attention projections adapted when the caller
// does not choose their own set.
var DefaultTargetModules = []string{
	"self_attn.q_proj",
	"self_attn.k_proj",
	"self_attn.v_proj",
	"self_attn.o_proj",
}

// DefaultTrainingConfig mirrors the backend script defaults.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Rank:           8,
		Alpha:          16,
		LearningRate:   1e-4,
		BatchSize:      4,
		Epochs:         3,
		MaxSeqLength:   2048,
		GradAccumSteps: 4,
		TargetModules:  append([]string(nil), DefaultTargetModules...),
		Quantization:   "f16",
	}
}

// Normalize fills zero fields with defaults and returns the result.
func (c TrainingConfig) Normalize() TrainingConfig {
	def := DefaultTrainingConfig()
	if c.Rank <= 0 {
		c.Rank = def.Rank
	}
	if c.Alpha <= 0 {
		c.Alpha = def.Alpha
	}
	if c.LearningRate <= 0 {
		c.LearningRate = def.LearningRate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Epochs <= 0 {
		c.Epochs = def.Epochs
	}
	if c.MaxSeqLength <= 0 {
		c.MaxSeqLength = def.MaxSeqLength
	}
	if c.GradAccumSteps <= 0 {
		c.GradAccumSteps = def.GradAccumSteps
	}
	if len(c.TargetModules) == 0 {
		c.TargetModules = append([]string(nil), def.TargetModules...)
	}
	if c.Quantization == "" {
		c.Quantization = def.Quantization
	}
	return c
}

// Progress is a transient training snapshot delivered via callback; it is
// never persisted.
type Progress struct {
	Epoch        int
	Step         int
	TotalSteps   int
	Loss         float64
	LearningRate float64
	TokensPerSec float64
}
