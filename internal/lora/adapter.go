package lora

import (
	"fmt"
	"sort"
	"time"
)

// Metadata carries the training provenance persisted alongside the weights.
type Metadata struct {
	CreatedAt       time.Time `json:"createdAt"`
	TrainingDataset string    `json:"trainingDataset"`
	TrainingSteps   int       `json:"trainingSteps"`
	FinalLoss       float64   `json:"finalLoss"`
	Epochs          int       `json:"epochs"`
	LearningRate    float64   `json:"learningRate"`
	BatchSize       int       `json:"batchSize"`
	AdapterName     string    `json:"adapterName"`
	BaseModelID     string    `json:"baseModelId"`
}

// Adapter is a named collection of low-rank layers trained against one base
// model. Rank and Alpha are fixed at creation and shared by every layer.
type Adapter struct {
	ID          string
	BaseModelID string
	Rank        int
	Alpha       float64
	Layers      map[string]*Layer
	Meta        Metadata
}

// NewAdapter creates an empty adapter; layers are added during
// initialization and training, never replaced afterwards.
func NewAdapter(id, baseModelID string, rank int, alpha float64) *Adapter {
	return &Adapter{
		ID:          id,
		BaseModelID: baseModelID,
		Rank:        rank,
		Alpha:       alpha,
		Layers:      make(map[string]*Layer),
		Meta:        Metadata{CreatedAt: time.Now().UTC(), BaseModelID: baseModelID},
	}
}

// AddLayer validates and inserts a layer. Rank and alpha must match the
// adapter-wide values; duplicate names are rejected.
func (a *Adapter) AddLayer(l *Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.Rank != a.Rank {
		return fmt.Errorf("layer %s: rank %d differs from adapter rank %d", l.Name, l.Rank, a.Rank)
	}
	if l.Alpha != a.Alpha {
		return fmt.Errorf("layer %s: alpha %g differs from adapter alpha %g", l.Name, l.Alpha, a.Alpha)
	}
	if _, ok := a.Layers[l.Name]; ok {
		return fmt.Errorf("layer %s: already present", l.Name)
	}
	a.Layers[l.Name] = l
	return nil
}

// ParamCount sums trainable parameters over all layers.
func (a *Adapter) ParamCount() int64 {
	var n int64
	for _, l := range a.Layers {
		n += l.ParamCount()
	}
	return n
}

// LayerNames returns the layer names in sorted order.
func (a *Adapter) LayerNames() []string {
	names := make([]string, 0, len(a.Layers))
	for name := range a.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
