package lora

import "fmt"

// Layer is a low-rank update for one module of the base model.
// A is [InputDim, Rank], B is [Rank, OutputDim]; the effective weight delta
// is A·B scaled by Alpha/Rank.
type Layer struct {
	// Dotted module path in the base model, e.g. "model.layers.3.self_attn.q_proj".
	Name      string
	Rank      int
	Alpha     float64
	InputDim  int
	OutputDim int
	A         Matrix
	B         Matrix
}

// NewLayer allocates a zero-initialized layer for the given module shape.
func NewLayer(name string, rank int, alpha float64, inputDim, outputDim int) *Layer {
	return &Layer{
		Name:      name,
		Rank:      rank,
		Alpha:     alpha,
		InputDim:  inputDim,
		OutputDim: outputDim,
		A:         NewMatrix(inputDim, rank),
		B:         NewMatrix(rank, outputDim),
	}
}

// Scaling returns the scale applied to the low-rank update.
func (l *Layer) Scaling() float64 {
	if l.Rank == 0 {
		return 0
	}
	return l.Alpha / float64(l.Rank)
}

// ParamCount returns the number of trainable parameters in this layer.
func (l *Layer) ParamCount() int64 {
	return int64(l.Rank)*int64(l.InputDim) + int64(l.OutputDim)*int64(l.Rank)
}

// Validate enforces the shape invariants:
// A.Rows == InputDim, A.Cols == Rank, B.Rows == Rank, B.Cols == OutputDim.
func (l *Layer) Validate() error {
	if l.Rank <= 0 {
		return fmt.Errorf("layer %s: rank must be positive, got %d", l.Name, l.Rank)
	}
	if err := l.A.Validate(); err != nil {
		return fmt.Errorf("layer %s: matrix A: %w", l.Name, err)
	}
	if err := l.B.Validate(); err != nil {
		return fmt.Errorf("layer %s: matrix B: %w", l.Name, err)
	}
	if l.A.Rows != l.InputDim || l.A.Cols != l.Rank {
		return fmt.Errorf("layer %s: matrix A is %dx%d, want %dx%d",
			l.Name, l.A.Rows, l.A.Cols, l.InputDim, l.Rank)
	}
	if l.B.Rows != l.Rank || l.B.Cols != l.OutputDim {
		return fmt.Errorf("layer %s: matrix B is %dx%d, want %dx%d",
			l.Name, l.B.Rows, l.B.Cols, l.Rank, l.OutputDim)
	}
	return nil
}

// Apply computes the low-rank delta for one input activation:
// (x·A)·B * scaling. x must have length InputDim. Used for verification and
// adapter-aware inference, never for training.
func (l *Layer) Apply(x []float32) ([]float32, error) {
	if len(x) != l.InputDim {
		return nil, fmt.Errorf("layer %s: input length %d, want %d", l.Name, len(x), l.InputDim)
	}
	h := l.A.mulVec(x)
	out := l.B.mulVec(h)
	s := float32(l.Scaling())
	for i := range out {
		out[i] *= s
	}
	return out, nil
}
