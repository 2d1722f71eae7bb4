package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"tunerd/internal/lora"
	"tunerd/internal/safetensors"
)

const (
	loraASuffix = ".lora_a"
	loraBSuffix = ".lora_b"
)

// adapterConfig is the on-disk schema of adapter_config.json, kept compatible
// with external LoRA-aware loaders. The dropout key is always present and 0.0.
type adapterConfig struct {
	FineTuneType   string         `json:"fine_tune_type"`
	NumLayers      int            `json:"num_layers"`
	LoraParameters loraParameters `json:"lora_parameters"`
}

type loraParameters struct {
	Rank    int      `json:"rank"`
	Scale   float64  `json:"scale"`
	Dropout float64  `json:"dropout"`
	Keys    []string `json:"keys"`
}

// parseLayerName splits a dotted module path like
// "model.layers.3.self_attn.q_proj" into the transformer-layer index and the
// module suffix ("self_attn.q_proj").
func parseLayerName(name string) (index int, suffix string, ok bool) {
	parts := strings.Split(name, ".")
	for i := 0; i < len(parts)-2; i++ {
		if parts[i] != "layers" {
			continue
		}
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			continue
		}
		return n, strings.Join(parts[i+2:], "."), true
	}
	return 0, "", false
}

// deriveAdapterConfig infers num_layers and the target-module key set from
// the adapter's layer names.
func deriveAdapterConfig(a *lora.Adapter) adapterConfig {
	indices := make(map[int]struct{})
	keys := make(map[string]struct{})
	for name := range a.Layers {
		idx, suffix, ok := parseLayerName(name)
		if !ok {
			continue
		}
		indices[idx] = struct{}{}
		keys[suffix] = struct{}{}
	}
	sortedKeys := make([]string, 0, len(keys))
	for k := range keys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	scale := 0.0
	if a.Rank > 0 {
		scale = a.Alpha / float64(a.Rank)
	}
	return adapterConfig{
		FineTuneType: "lora",
		NumLayers:    len(indices),
		LoraParameters: loraParameters{
			Rank:    a.Rank,
			Scale:   scale,
			Dropout: 0.0,
			Keys:    sortedKeys,
		},
	}
}

// writeWeights serializes every layer as <name>.lora_a / <name>.lora_b.
func writeWeights(path string, a *lora.Adapter) error {
	tensors := make(map[string]safetensors.Tensor, len(a.Layers)*2)
	for name, l := range a.Layers {
		if err := l.Validate(); err != nil {
			return err
		}
		tensors[name+loraASuffix] = safetensors.Tensor{Shape: []int{l.InputDim, l.Rank}, Data: l.A.Data}
		tensors[name+loraBSuffix] = safetensors.Tensor{Shape: []int{l.Rank, l.OutputDim}, Data: l.B.Data}
	}
	return safetensors.WriteFile(path, tensors, map[string]string{"format": "mlx"})
}

// ReadWeightsFile populates a from a safetensors file outside the store,
// such as a training scratch directory. Layer drop policy matches Load.
func ReadWeightsFile(path string, a *lora.Adapter, log zerolog.Logger) error {
	return readWeights(path, a, log)
}

// readWeights populates a from a safetensors file. Layers violating the
// shape invariants are dropped with a warning rather than failing the load.
func readWeights(path string, a *lora.Adapter, log zerolog.Logger) error {
	tensors, _, err := safetensors.ReadFile(path)
	if err != nil {
		return err
	}
	names := make(map[string]struct{})
	for key := range tensors {
		if strings.HasSuffix(key, loraASuffix) {
			names[strings.TrimSuffix(key, loraASuffix)] = struct{}{}
		}
	}
	for name := range names {
		at, aok := tensors[name+loraASuffix]
		bt, bok := tensors[name+loraBSuffix]
		if !aok || !bok {
			log.Warn().Str("layer", name).Msg("dropping layer with missing matrix")
			continue
		}
		l, err := layerFromTensors(name, a.Rank, a.Alpha, at, bt)
		if err != nil {
			log.Warn().Str("layer", name).Err(err).Msg("dropping layer with invalid shape")
			continue
		}
		if err := a.AddLayer(l); err != nil {
			log.Warn().Str("layer", name).Err(err).Msg("dropping layer")
		}
	}
	if len(tensors) > 0 && len(a.Layers) == 0 {
		return fmt.Errorf("no usable layers in %s", path)
	}
	return nil
}

func layerFromTensors(name string, rank int, alpha float64, at, bt safetensors.Tensor) (*lora.Layer, error) {
	if len(at.Shape) != 2 || len(bt.Shape) != 2 {
		return nil, fmt.Errorf("matrices must be 2-D, got %v and %v", at.Shape, bt.Shape)
	}
	inputDim, aRank := at.Shape[0], at.Shape[1]
	bRank, outputDim := bt.Shape[0], bt.Shape[1]
	if aRank != rank || bRank != rank {
		return nil, fmt.Errorf("rank %d/%d does not match adapter rank %d", aRank, bRank, rank)
	}
	l := &lora.Layer{
		Name:      name,
		Rank:      rank,
		Alpha:     alpha,
		InputDim:  inputDim,
		OutputDim: outputDim,
		A:         lora.Matrix{Rows: inputDim, Cols: rank, Data: at.Data},
		B:         lora.Matrix{Rows: rank, Cols: outputDim, Data: bt.Data},
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}
