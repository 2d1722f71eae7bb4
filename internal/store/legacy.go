package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"tunerd/internal/lora"
)

// legacyWeights is the JSON weight format written by older versions.
// Read-only: new saves always use the safetensors format.
type legacyWeights struct {
	BaseModelID string                 `json:"baseModelId"`
	Rank        int                    `json:"rank"`
	Alpha       float64                `json:"alpha"`
	Layers      map[string]legacyLayer `json:"layers"`
}

type legacyLayer struct {
	InputDim  int          `json:"inputDim"`
	OutputDim int          `json:"outputDim"`
	Rank      int          `json:"rank"`
	Alpha     float64      `json:"alpha"`
	MatrixA   legacyMatrix `json:"matrixA"`
	MatrixB   legacyMatrix `json:"matrixB"`
}

type legacyMatrix struct {
	Data []float32 `json:"data"`
}

// readLegacyWeights populates a from weights.json, applying the same
// drop-with-warning policy as the safetensors path.
func readLegacyWeights(path string, a *lora.Adapter, log zerolog.Logger) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var lw legacyWeights
	if err := json.Unmarshal(b, &lw); err != nil {
		return fmt.Errorf("parse legacy weights: %w", err)
	}
	for name, ll := range lw.Layers {
		l := &lora.Layer{
			Name:      name,
			Rank:      ll.Rank,
			Alpha:     ll.Alpha,
			InputDim:  ll.InputDim,
			OutputDim: ll.OutputDim,
			A:         lora.Matrix{Rows: ll.InputDim, Cols: ll.Rank, Data: ll.MatrixA.Data},
			B:         lora.Matrix{Rows: ll.Rank, Cols: ll.OutputDim, Data: ll.MatrixB.Data},
		}
		if err := l.Validate(); err != nil {
			log.Warn().Str("layer", name).Err(err).Msg("dropping legacy layer with invalid shape")
			continue
		}
		if err := a.AddLayer(l); err != nil {
			log.Warn().Str("layer", name).Err(err).Msg("dropping legacy layer")
		}
	}
	if len(lw.Layers) > 0 && len(a.Layers) == 0 {
		return fmt.Errorf("no usable layers in %s", path)
	}
	return nil
}
