package safetensors

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/dialogsum/contrastive"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Default tensor names of an activation dump.
const (
	InputIDsName     = "input_ids"
	HiddenStatesName = "encoder_hidden_states"
)

// LoadBatch reads the token ids (shaped [B, L], int32 or int64) and the encoder hidden states
// (shaped [B, L, H], float32 or float64) from the safetensors file at path.
// A dump of a single sequence may drop the batch axis: ids [L] and hidden states [L, H].
func LoadBatch(path, idsName, hiddenName string) (*contrastive.Batch, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	ids, err := f.ReadTensor(idsName)
	if err != nil {
		return nil, err
	}
	hidden, err := f.ReadTensor(hiddenName)
	if err != nil {
		return nil, err
	}
	batch, err := ToBatch(ids, hidden)
	if err != nil {
		return nil, errors.WithMessagef(err, "while loading %s", path)
	}
	return batch, nil
}

// ToBatch converts token ids and hidden states tensors to a contrastive.Batch.
func ToBatch(ids, hidden *tensors.Tensor) (*contrastive.Batch, error) {
	idsDims := ids.Shape().Dimensions
	hiddenDims := hidden.Shape().Dimensions
	if len(idsDims) == 1 && len(hiddenDims) == 2 {
		idsDims = []int{1, idsDims[0]}
		hiddenDims = []int{1, hiddenDims[0], hiddenDims[1]}
	}
	if len(idsDims) != 2 || len(hiddenDims) != 3 {
		return nil, errors.Wrapf(contrastive.ErrShapeMismatch,
			"input ids shaped %s and hidden states shaped %s: want [B, L] and [B, L, H]", ids.Shape(), hidden.Shape())
	}
	if idsDims[0] != hiddenDims[0] || idsDims[1] != hiddenDims[1] {
		return nil, errors.Wrapf(contrastive.ErrShapeMismatch,
			"input ids shaped %s don't match hidden states shaped %s", ids.Shape(), hidden.Shape())
	}

	flatIDs, err := intValues(ids)
	if err != nil {
		return nil, err
	}
	flatHidden, err := floatValues(hidden)
	if err != nil {
		return nil, err
	}

	batchSize, seqLen, hiddenSize := hiddenDims[0], hiddenDims[1], hiddenDims[2]
	batch := &contrastive.Batch{
		InputIDs: make([][]int, batchSize),
		Hidden:   make([]*mat.Dense, batchSize),
	}
	for b := range batchSize {
		batch.InputIDs[b] = flatIDs[b*seqLen : (b+1)*seqLen]
		if seqLen == 0 || hiddenSize == 0 {
			continue
		}
		stride := seqLen * hiddenSize
		batch.Hidden[b] = mat.NewDense(seqLen, hiddenSize, flatHidden[b*stride:(b+1)*stride])
	}
	return batch, nil
}

// rawBytes returns a copy of the tensor's little-endian bytes.
func rawBytes(t *tensors.Tensor) []byte {
	var raw []byte
	t.MutableBytes(func(data []byte) {
		raw = make([]byte, len(data))
		copy(raw, data)
	})
	return raw
}

func intValues(t *tensors.Tensor) ([]int, error) {
	raw := rawBytes(t)
	switch dtype := t.Shape().DType; dtype {
	case dtypes.Int32:
		values := make([]int, len(raw)/4)
		for i := range values {
			values[i] = int(int32(binary.LittleEndian.Uint32(raw[4*i:])))
		}
		return values, nil
	case dtypes.Int64:
		values := make([]int, len(raw)/8)
		for i := range values {
			values[i] = int(int64(binary.LittleEndian.Uint64(raw[8*i:])))
		}
		return values, nil
	default:
		return nil, errors.Errorf("input ids must be int32 or int64, got %s", dtype)
	}
}

func floatValues(t *tensors.Tensor) ([]float64, error) {
	raw := rawBytes(t)
	switch dtype := t.Shape().DType; dtype {
	case dtypes.Float32:
		values := make([]float64, len(raw)/4)
		for i := range values {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		}
		return values, nil
	case dtypes.Float64:
		values := make([]float64, len(raw)/8)
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return values, nil
	default:
		return nil, errors.Errorf("hidden states must be float32 or float64, got %s", dtype)
	}
}
