package model

// DimLookup answers shape queries for named modules of a base model,
// decoupling adapter construction from any particular naming scheme.
type DimLookup interface {
	// Lookup returns the input/output dimensions of the module identified by
	// suffix (e.g. "self_attn.q_proj") at the given transformer layer.
	// ok is false when the module is unknown to this model.
	Lookup(moduleSuffix string, layerIndex int) (inDim, outDim int, ok bool)
}

// LayerCount is implemented by lookups that also know the model depth.
type LayerCount interface {
	NumLayers() int
}

// dims derives module shapes from transformer attention/MLP geometry.
type dims struct {
	cfg *Config
}

// Dims builds a DimLookup from a loaded model config.
func Dims(cfg *Config) DimLookup { return &dims{cfg: cfg} }

func (d *dims) NumLayers() int { return d.cfg.NumHiddenLayers }

func (d *dims) Lookup(moduleSuffix string, layerIndex int) (int, int, bool) {
	if layerIndex < 0 || layerIndex >= d.cfg.NumHiddenLayers {
		return 0, 0, false
	}
	c := d.cfg
	qDim := c.NumAttnHeads * c.HeadDim
	kvDim := c.NumKeyValueHeads * c.HeadDim
	switch moduleSuffix {
	case "self_attn.q_proj":
		return c.HiddenSize, qDim, true
	case "self_attn.k_proj", "self_attn.v_proj":
		return c.HiddenSize, kvDim, true
	case "self_attn.o_proj":
		return qDim, c.HiddenSize, true
	case "mlp.gate_proj", "mlp.up_proj":
		if c.IntermediateSize <= 0 {
			return 0, 0, false
		}
		return c.HiddenSize, c.IntermediateSize, true
	case "mlp.down_proj":
		if c.IntermediateSize <= 0 {
			return 0, 0, false
		}
		return c.IntermediateSize, c.HiddenSize, true
	default:
		return 0, 0, false
	}
}
