package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Entry is a tensor to be written: its dtype name ("F32", "I64", ...), shape and raw
// little-endian data.
type Entry struct {
	Name  string
	Dtype string
	Shape []int
	Data  []byte
}

// Int64Entry creates an "I64" Entry.
func Int64Entry(name string, shape []int, values []int64) Entry {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], uint64(v))
	}
	return Entry{Name: name, Dtype: "I64", Shape: shape, Data: data}
}

// Int32Entry creates an "I32" Entry.
func Int32Entry(name string, shape []int, values []int32) Entry {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return Entry{Name: name, Dtype: "I32", Shape: shape, Data: data}
}

// Float32Entry creates an "F32" Entry.
func Float32Entry(name string, shape []int, values []float32) Entry {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return Entry{Name: name, Dtype: "F32", Shape: shape, Data: data}
}

// Float64Entry creates an "F64" Entry.
func Float64Entry(name string, shape []int, values []float64) Entry {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return Entry{Name: name, Dtype: "F64", Shape: shape, Data: data}
}

// WriteFile writes the entries, in order, to a safetensors file at path.
// The metadata is optional.
func WriteFile(path string, metadata map[string]string, entries ...Entry) error {
	header := make(map[string]any, len(entries)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, e := range entries {
		if e.Name == metadataKey {
			return errors.Errorf("tensor name %q is reserved", metadataKey)
		}
		if _, found := header[e.Name]; found {
			return errors.Errorf("duplicate tensor name %q", e.Name)
		}
		end := offset + int64(len(e.Data))
		shape := e.Shape
		if shape == nil {
			shape = []int{}
		}
		header[e.Name] = &TensorMetadata{Dtype: e.Dtype, Shape: shape, DataOffsets: [2]int64{offset, end}}
		offset = end
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to encode header")
	}
	// Pad the header with spaces so the data starts 8-byte aligned.
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	var buf bytes.Buffer
	buf.Grow(8 + len(headerBytes) + int(offset))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(headerBytes)))
	buf.Write(headerBytes)
	for _, e := range entries {
		buf.Write(e.Data)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
