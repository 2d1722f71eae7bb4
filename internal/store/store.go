// Package store persists LoRA adapters as one directory per adapter under a
// root dir: metadata.json, adapter_config.json and adapters.safetensors,
// with a read-only weights.json fallback for adapters written by older
// versions.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tunerd/internal/common/fsutil"
	"tunerd/internal/lora"
	"tunerd/pkg/types"
)

const (
	metadataFile      = "metadata.json"
	adapterConfigFile = "adapter_config.json"
	weightsFile       = "adapters.safetensors"
	legacyWeightsFile = "weights.json"
)

// metadata is the on-disk schema of metadata.json.
type metadata struct {
	BaseModelID     string  `json:"baseModelId"`
	Rank            int     `json:"rank"`
	Alpha           float64 `json:"alpha"`
	CreatedAt       string  `json:"createdAt"`
	TrainingDataset string  `json:"trainingDataset"`
	TrainingSteps   int     `json:"trainingSteps"`
	FinalLoss       float64 `json:"finalLoss"`
	Epochs          int     `json:"epochs"`
	LearningRate    float64 `json:"learningRate"`
	BatchSize       int     `json:"batchSize"`
	AdapterName     string  `json:"adapterName"`
	LayerCount      int     `json:"layerCount"`
	ParameterCount  int64   `json:"parameterCount"`
}

// Store owns the adapters directory. Mutating operations are serialized per
// Store instance; the daemon is the only writer of its adapters dir.
type Store struct {
	root string
	mu   sync.Mutex
	log  zerolog.Logger
	pub  Publisher
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, log zerolog.Logger) (*Store, error) {
	root, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create adapters dir: %w", err)
	}
	return &Store{root: root, log: log, pub: noopPublisher{}}, nil
}

// SetPublisher installs a Publisher for change notifications.
func (s *Store) SetPublisher(p Publisher) {
	if p == nil {
		s.pub = noopPublisher{}
		return
	}
	s.pub = p
}

// Dir returns the directory that would hold the given adapter id.
func (s *Store) Dir(id string) string { return filepath.Join(s.root, id) }

// Save persists the adapter atomically and publishes a change event.
func (s *Store) Save(a *lora.Adapter) error {
	if a.ID == "" {
		return fmt.Errorf("adapter id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.Dir(a.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create adapter dir: %w", err)
	}

	md := metadata{
		BaseModelID:     a.BaseModelID,
		Rank:            a.Rank,
		Alpha:           a.Alpha,
		CreatedAt:       a.Meta.CreatedAt.UTC().Format(time.RFC3339),
		TrainingDataset: a.Meta.TrainingDataset,
		TrainingSteps:   a.Meta.TrainingSteps,
		FinalLoss:       a.Meta.FinalLoss,
		Epochs:          a.Meta.Epochs,
		LearningRate:    a.Meta.LearningRate,
		BatchSize:       a.Meta.BatchSize,
		AdapterName:     a.Meta.AdapterName,
		LayerCount:      len(a.Layers),
		ParameterCount:  a.ParamCount(),
	}
	mdBytes, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, metadataFile), mdBytes, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	cfg := deriveAdapterConfig(a)
	cfgBytes, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, adapterConfigFile), cfgBytes, 0o644); err != nil {
		return fmt.Errorf("write adapter config: %w", err)
	}

	if err := writeWeights(filepath.Join(dir, weightsFile), a); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}

	s.log.Info().Str("adapter", a.ID).Int("layers", len(a.Layers)).
		Int64("params", md.ParameterCount).Msg("adapter saved")
	s.pub.Publish(Event{Name: EventAdaptersChanged, AdapterID: a.ID, Fields: map[string]any{"op": "save"}})
	return nil
}

// Load reads the adapter with the given id. The safetensors weights are
// preferred; weights.json is a read-only fallback for old adapters.
func (s *Store) Load(id string) (*lora.Adapter, error) {
	dir := s.Dir(id)
	if !fsutil.PathExists(dir) {
		return nil, ErrNotFound(id)
	}

	mdBytes, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, ErrInvalidMetadata(id, err)
	}
	var md metadata
	if err := json.Unmarshal(mdBytes, &md); err != nil {
		return nil, ErrInvalidMetadata(id, err)
	}
	if md.Rank <= 0 {
		return nil, ErrInvalidMetadata(id, fmt.Errorf("rank %d", md.Rank))
	}

	a := lora.NewAdapter(id, md.BaseModelID, md.Rank, md.Alpha)
	if ts, err := time.Parse(time.RFC3339, md.CreatedAt); err == nil {
		a.Meta.CreatedAt = ts
	}
	a.Meta.TrainingDataset = md.TrainingDataset
	a.Meta.TrainingSteps = md.TrainingSteps
	a.Meta.FinalLoss = md.FinalLoss
	a.Meta.Epochs = md.Epochs
	a.Meta.LearningRate = md.LearningRate
	a.Meta.BatchSize = md.BatchSize
	a.Meta.AdapterName = md.AdapterName
	a.Meta.BaseModelID = md.BaseModelID

	wpath := filepath.Join(dir, weightsFile)
	if fsutil.PathExists(wpath) {
		if err := readWeights(wpath, a, s.log); err != nil {
			return nil, ErrInvalidWeights(id, err)
		}
		return a, nil
	}
	lpath := filepath.Join(dir, legacyWeightsFile)
	if fsutil.PathExists(lpath) {
		if err := readLegacyWeights(lpath, a, s.log); err != nil {
			return nil, ErrInvalidWeights(id, err)
		}
		return a, nil
	}
	return nil, ErrInvalidWeights(id, fmt.Errorf("no weight file in %s", dir))
}

// List enumerates adapter directories. Entries with missing or corrupt
// metadata are skipped with a warning, never failing the whole listing.
func (s *Store) List() []types.AdapterSummary {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.root).Msg("adapters dir unreadable")
		return nil
	}
	var out []types.AdapterSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		mdBytes, err := os.ReadFile(filepath.Join(s.root, id, metadataFile))
		if err != nil {
			s.log.Warn().Str("adapter", id).Err(err).Msg("skipping adapter without metadata")
			continue
		}
		var md metadata
		if err := json.Unmarshal(mdBytes, &md); err != nil {
			s.log.Warn().Str("adapter", id).Err(err).Msg("skipping adapter with corrupt metadata")
			continue
		}
		out = append(out, types.AdapterSummary{
			ID:             id,
			Name:           md.AdapterName,
			BaseModelID:    md.BaseModelID,
			Rank:           md.Rank,
			Alpha:          md.Alpha,
			LayerCount:     md.LayerCount,
			ParameterCount: md.ParameterCount,
			CreatedAt:      md.CreatedAt,
			FinalLoss:      md.FinalLoss,
			TrainingSteps:  md.TrainingSteps,
		})
	}
	return out
}

// Delete removes the adapter directory and publishes a change event.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.Dir(id)
	if !fsutil.PathExists(dir) {
		return ErrNotFound(id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete adapter %s: %w", id, err)
	}
	s.log.Info().Str("adapter", id).Msg("adapter deleted")
	s.pub.Publish(Event{Name: EventAdaptersChanged, AdapterID: id, Fields: map[string]any{"op": "delete"}})
	return nil
}
