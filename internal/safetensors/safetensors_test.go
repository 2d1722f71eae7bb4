package safetensors

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/x448/float16"
)

func TestWriteReadRoundTrip(t *testing.T) {
	in := map[string]Tensor{
		"model.layers.0.self_attn.q_proj.lora_a": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"model.layers.0.self_attn.q_proj.lora_b": {Shape: []int{3, 2}, Data: []float32{0.5, -0.5, 1.5, -1.5, 2.5, -2.5}},
	}
	path := filepath.Join(t.TempDir(), "adapters.safetensors")
	if err := WriteFile(path, in, map[string]string{"format": "pt"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, meta, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if meta["format"] != "pt" {
		t.Fatalf("metadata lost: %v", meta)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d tensors got %d", len(in), len(out))
	}
	for name, want := range in {
		got, ok := out[name]
		if !ok {
			t.Fatalf("missing tensor %s", name)
		}
		if len(got.Shape) != 2 || got.Shape[0] != want.Shape[0] || got.Shape[1] != want.Shape[1] {
			t.Fatalf("tensor %s: shape %v want %v", name, got.Shape, want.Shape)
		}
		for i := range want.Data {
			if got.Data[i] != want.Data[i] {
				t.Fatalf("tensor %s: value %d is %g want %g", name, i, got.Data[i], want.Data[i])
			}
		}
	}
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, map[string]Tensor{"t": {Shape: []int{2, 2}, Data: []float32{1}}}, nil)
	if err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestReadF16(t *testing.T) {
	// Hand-build a one-tensor F16 file.
	header := []byte(`{"t":{"dtype":"F16","shape":[2],"data_offsets":[0,4]}}`)
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	buf.Write(lenBuf[:])
	buf.Write(header)
	for _, v := range []float32{1.5, -0.25} {
		var h [2]byte
		binary.LittleEndian.PutUint16(h[:], float16.Fromfloat32(v).Bits())
		buf.Write(h[:])
	}
	out, _, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := out["t"]
	if math.Abs(float64(got.Data[0])-1.5) > 1e-3 || math.Abs(float64(got.Data[1])+0.25) > 1e-3 {
		t.Fatalf("unexpected values %v", got.Data)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, _, err := Read(bytes.NewReader([]byte("not a safetensors file at all"))); err == nil {
		t.Fatalf("expected error for garbage input")
	}
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<40) // implausible header
	buf.Write(lenBuf[:])
	if _, _, err := Read(&buf); err == nil {
		t.Fatalf("expected error for oversized header")
	}
}
