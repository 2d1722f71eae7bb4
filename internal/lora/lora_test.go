package lora

import (
	"math"
	"testing"
)

func TestScalingIsAlphaOverRank(t *testing.T) {
	l := NewLayer("model.layers.0.self_attn.q_proj", 8, 16, 64, 64)
	if got := l.Scaling(); got != 2.0 {
		t.Fatalf("expected scaling 2.0 got %g", got)
	}
	l2 := NewLayer("x", 4, 16, 8, 8)
	if got := l2.Scaling(); got != 4.0 {
		t.Fatalf("expected scaling 4.0 got %g", got)
	}
}

func TestLayerParamCount(t *testing.T) {
	l := NewLayer("x", 8, 16, 128, 256)
	want := int64(8*128 + 256*8)
	if got := l.ParamCount(); got != want {
		t.Fatalf("expected %d params got %d", want, got)
	}
}

func TestAdapterParamCountSumsLayers(t *testing.T) {
	a := NewAdapter("id", "base", 4, 8)
	if err := a.AddLayer(NewLayer("model.layers.0.self_attn.q_proj", 4, 8, 16, 16)); err != nil {
		t.Fatalf("add layer: %v", err)
	}
	if err := a.AddLayer(NewLayer("model.layers.1.self_attn.v_proj", 4, 8, 16, 32)); err != nil {
		t.Fatalf("add layer: %v", err)
	}
	want := int64(4*16+16*4) + int64(4*16+32*4)
	if got := a.ParamCount(); got != want {
		t.Fatalf("expected %d params got %d", want, got)
	}
}

func TestValidateRejectsShapeMismatch(t *testing.T) {
	l := NewLayer("x", 8, 16, 64, 64)
	l.A = NewMatrix(32, 8) // wrong input dim
	if err := l.Validate(); err == nil {
		t.Fatalf("expected shape violation error")
	}
	l2 := NewLayer("x", 8, 16, 64, 64)
	l2.B.Data = l2.B.Data[:len(l2.B.Data)-1]
	if err := l2.Validate(); err == nil {
		t.Fatalf("expected data length error")
	}
}

func TestAddLayerRejectsMismatchAndDuplicates(t *testing.T) {
	a := NewAdapter("id", "base", 8, 16)
	if err := a.AddLayer(NewLayer("l1", 4, 16, 8, 8)); err == nil {
		t.Fatalf("expected rank mismatch error")
	}
	if err := a.AddLayer(NewLayer("l1", 8, 32, 8, 8)); err == nil {
		t.Fatalf("expected alpha mismatch error")
	}
	if err := a.AddLayer(NewLayer("l1", 8, 16, 8, 8)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.AddLayer(NewLayer("l1", 8, 16, 8, 8)); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestApplyComputesScaledDelta(t *testing.T) {
	// rank 1, scaling = alpha/rank = 2: delta = (x·A)·B * 2
	l := NewLayer("x", 1, 2, 2, 2)
	l.A.Set(0, 0, 1)
	l.A.Set(1, 0, 1)
	l.B.Set(0, 0, 3)
	l.B.Set(0, 1, 5)
	out, err := l.Apply([]float32{1, 2})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// x·A = 3; delta = [3*3, 3*5] * 2 = [18, 30]
	if math.Abs(float64(out[0])-18) > 1e-6 || math.Abs(float64(out[1])-30) > 1e-6 {
		t.Fatalf("unexpected delta %v", out)
	}
	if _, err := l.Apply([]float32{1}); err == nil {
		t.Fatalf("expected input length error")
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	c := TrainingConfig{Rank: 16}.Normalize()
	if c.Rank != 16 {
		t.Fatalf("explicit rank overwritten: %d", c.Rank)
	}
	if c.Alpha != 16 || c.BatchSize != 4 || c.Epochs != 3 || c.MaxSeqLength != 2048 {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if len(c.TargetModules) != 4 {
		t.Fatalf("expected default target modules, got %v", c.TargetModules)
	}
}
