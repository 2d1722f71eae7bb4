package trainer

import (
	"fmt"

	"github.com/rs/zerolog"

	"tunerd/internal/lora"
	"tunerd/internal/model"
)

// maxAdaptedLayers caps how many transformer layers receive LoRA modules.
// The backends adapt the last N layers of the model, matching MLX behavior.
const maxAdaptedLayers = 16

// adaptedLayerCount returns how many of numLayers get LoRA modules.
func adaptedLayerCount(numLayers int) int {
	if numLayers > maxAdaptedLayers {
		return maxAdaptedLayers
	}
	return numLayers
}

// buildSkeleton constructs a zero-weight adapter covering the last
// adaptedLayerCount layers of the model, one layer entry per target module,
// with matrix shapes taken from the model's dimension table. Target modules
// the model cannot size are an error rather than a silent gap.
func buildSkeleton(id, baseModelID string, cfg lora.TrainingConfig, dims model.DimLookup, numLayers int, log zerolog.Logger) (*lora.Adapter, error) {
	a := lora.NewAdapter(id, baseModelID, cfg.Rank, cfg.Alpha)
	adapted := adaptedLayerCount(numLayers)
	for idx := numLayers - adapted; idx < numLayers; idx++ {
		for _, mod := range cfg.TargetModules {
			in, out, ok := dims.Lookup(mod, idx)
			if !ok {
				return nil, fmt.Errorf("no dimensions for target module %q", mod)
			}
			name := fmt.Sprintf("model.layers.%d.%s", idx, mod)
			if err := a.AddLayer(lora.NewLayer(name, cfg.Rank, cfg.Alpha, in, out)); err != nil {
				return nil, err
			}
		}
	}
	log.Debug().
		Str("adapter", id).
		Int("layers", adapted).
		Int("modules", len(cfg.TargetModules)).
		Int64("params", a.ParamCount()).
		Msg("built adapter skeleton")
	return a, nil
}
