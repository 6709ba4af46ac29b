package safetensors

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// MaxHeaderSize is the largest JSON header accepted.
const MaxHeaderSize = 100 * 1024 * 1024

// metadataKey is the header entry holding free-form string metadata.
const metadataKey = "__metadata__"

// TensorMetadata describes one tensor stored in the file.
type TensorMetadata struct {
	Name        string   `json:"-"`
	Dtype       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// NumElements is the product of the dimensions. A scalar has one element.
func (tm *TensorMetadata) NumElements() int {
	n := 1
	for _, dim := range tm.Shape {
		n *= dim
	}
	return n
}

// SizeBytes is the size of the tensor data as recorded in the header.
func (tm *TensorMetadata) SizeBytes() int64 {
	return tm.DataOffsets[1] - tm.DataOffsets[0]
}

// Header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata
	Metadata map[string]string
}

// Names of the tensors, in the order their data is stored.
func (h *Header) Names() []string {
	metas := make([]*TensorMetadata, 0, len(h.Tensors))
	for _, tm := range h.Tensors {
		metas = append(metas, tm)
	}
	slices.SortFunc(metas, func(a, b *TensorMetadata) int {
		if c := cmp.Compare(a.DataOffsets[0], b.DataOffsets[0]); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	names := make([]string, len(metas))
	for i, tm := range metas {
		names[i] = tm.Name
	}
	return names
}

// readHeader parses the header of a safetensors file:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
//
// It returns the header and the offset where the tensor data starts.
func readHeader(r io.ReaderAt, fileSize int64) (*Header, int64, error) {
	var sizeBytes [8]byte
	if _, err := r.ReadAt(sizeBytes[:], 0); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header size")
	}
	headerSize := binary.LittleEndian.Uint64(sizeBytes[:])
	if headerSize > MaxHeaderSize {
		return nil, 0, errors.Errorf("header size too large: %d bytes", headerSize)
	}
	dataOffset := int64(8 + headerSize)
	if dataOffset > fileSize {
		return nil, 0, errors.Errorf("header size %d larger than file (%d bytes)", headerSize, fileSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, 8); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}
	header := &Header{
		Tensors:  make(map[string]*TensorMetadata, len(rawHeader)),
		Metadata: make(map[string]string),
	}
	dataSize := fileSize - dataOffset
	for key, value := range rawHeader {
		if key == metadataKey {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrapf(err, "failed to parse %s", metadataKey)
			}
			continue
		}
		tm := &TensorMetadata{Name: key}
		if err := json.Unmarshal(value, tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %q", key)
		}
		if tm.DataOffsets[0] < 0 || tm.DataOffsets[1] < tm.DataOffsets[0] || tm.DataOffsets[1] > dataSize {
			return nil, 0, errors.Errorf("tensor %q has invalid data offsets %v (data has %d bytes)",
				key, tm.DataOffsets, dataSize)
		}
		header.Tensors[key] = tm
	}
	return header, dataOffset, nil
}

// dtypeToGoMLX converts a safetensors dtype name ("F32", "I64", ...) to a GoMLX dtype.
func dtypeToGoMLX(stDtype string) (dtypes.DType, error) {
	dtype, found := dtypes.MapOfNames[strings.ToLower(stDtype)]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("dtype %q not supported", stDtype)
	}
	return dtype, nil
}
