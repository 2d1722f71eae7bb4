// Package safetensors reads and writes the safetensors tensor container:
// a little-endian uint64 header length, a JSON header mapping tensor names to
// {dtype, shape, data_offsets}, then a contiguous byte buffer. Files written
// here use F32; reading additionally accepts F16 since some trainers save
// adapters in half precision.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"
)

// maxHeaderSize bounds the JSON header to reject corrupt files early.
const maxHeaderSize = 16 << 20

// Tensor is one named entry with its decoded float32 data.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Elems returns the element count implied by the shape.
func (t Tensor) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int   `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

// Write serializes tensors to w in name order with F32 payloads.
// Metadata, if non-nil, is stored under the __metadata__ key.
func Write(w io.Writer, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]json.RawMessage, len(tensors)+1)
	var offset int64
	for _, name := range names {
		t := tensors[name]
		if len(t.Data) != t.Elems() {
			return fmt.Errorf("tensor %s: %d values do not match shape %v", name, len(t.Data), t.Shape)
		}
		size := int64(len(t.Data)) * 4
		entry := headerEntry{DType: "F32", Shape: t.Shape, Offsets: [2]int64{offset, offset + size}}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		header[name] = raw
		offset += size
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		header["__metadata__"] = raw
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteFile writes tensors to path via Write.
func WriteFile(path string, tensors map[string]Tensor, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, tensors, metadata); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read decodes all tensors from r. F16 payloads are widened to float32.
func Read(r io.Reader) (map[string]Tensor, map[string]string, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen == 0 || headerLen > maxHeaderSize {
		return nil, nil, fmt.Errorf("implausible header length %d", headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, nil, fmt.Errorf("parse header: %w", err)
	}

	var metadata map[string]string
	if raw, ok := rawHeader["__metadata__"]; ok {
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return nil, nil, fmt.Errorf("parse __metadata__: %w", err)
		}
		delete(rawHeader, "__metadata__")
	}

	entries := make(map[string]headerEntry, len(rawHeader))
	var total int64
	for name, raw := range rawHeader {
		var e headerEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, nil, fmt.Errorf("tensor %s: parse entry: %w", name, err)
		}
		if e.Offsets[1] < e.Offsets[0] || e.Offsets[0] < 0 {
			return nil, nil, fmt.Errorf("tensor %s: invalid offsets %v", name, e.Offsets)
		}
		if e.Offsets[1] > total {
			total = e.Offsets[1]
		}
		entries[name] = e
	}

	payload := make([]byte, total)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("read tensor data: %w", err)
	}

	tensors := make(map[string]Tensor, len(entries))
	for name, e := range entries {
		data, err := decode(e.DType, payload[e.Offsets[0]:e.Offsets[1]])
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		t := Tensor{Shape: e.Shape, Data: data}
		if len(data) != t.Elems() {
			return nil, nil, fmt.Errorf("tensor %s: %d values do not match shape %v", name, len(data), e.Shape)
		}
		tensors[name] = t
	}
	return tensors, metadata, nil
}

// ReadFile reads all tensors from path via Read.
func ReadFile(path string) (map[string]Tensor, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Read(f)
}

func decode(dtype string, raw []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("F32 payload length %d not a multiple of 4", len(raw))
		}
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "F16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("F16 payload length %d not a multiple of 2", len(raw))
		}
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
}
