// Package safetensors reads activation dumps stored in the safetensors format: token ids and
// encoder hidden states exported by a training step, to be scored by the contrastive objective.
//
// Example:
//
//	batch, err := safetensors.LoadBatch("step_100.safetensors", safetensors.InputIDsName, safetensors.HiddenStatesName)
package safetensors

import (
	"github.com/gomlx/dialogsum/hub"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"k8s.io/klog/v2"
)

// File is an open, memory-mapped safetensors file.
type File struct {
	Path   string
	Header *Header

	reader     *mmap.ReaderAt
	dataOffset int64
}

// Open memory-maps the safetensors file at path and parses its header.
// The File must be closed after use.
func Open(path string) (*File, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	header, dataOffset, err := readHeader(reader, int64(reader.Len()))
	if err != nil {
		_ = reader.Close()
		return nil, errors.WithMessagef(err, "while parsing header of %s", path)
	}
	klog.V(2).Infof("safetensors: %s has %d tensors", path, len(header.Tensors))
	return &File{
		Path:       path,
		Header:     header,
		reader:     reader,
		dataOffset: dataOffset,
	}, nil
}

// OpenFromRepo downloads (if not cached yet) fileName from the repository and opens it.
func OpenFromRepo(repo *hub.Repo, fileName string) (*File, error) {
	localPath, err := repo.DownloadFile(fileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to download %s", fileName)
	}
	return Open(localPath)
}

// Close unmaps the file.
func (f *File) Close() error {
	return f.reader.Close()
}

// Names of the tensors in the file, in storage order.
func (f *File) Names() []string {
	return f.Header.Names()
}

// Metadata returns the metadata of the named tensor.
func (f *File) Metadata(name string) (*TensorMetadata, error) {
	meta, found := f.Header.Tensors[name]
	if !found {
		return nil, errors.Errorf("tensor %q not found in %s", name, f.Path)
	}
	return meta, nil
}

// ReadTensor reads the named tensor into a new GoMLX tensor.
func (f *File) ReadTensor(name string) (*tensors.Tensor, error) {
	meta, err := f.Metadata(name)
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor %q", name)
	}
	shape := shapes.Make(dtype, meta.Shape...)
	expectedBytes := int64(shape.Size()) * int64(dtype.Size())
	if expectedBytes != meta.SizeBytes() {
		return nil, errors.Errorf("tensor %q of shape %s needs %d bytes, but the file holds %d bytes",
			name, shape, expectedBytes, meta.SizeBytes())
	}

	t := tensors.FromShape(shape)
	var readErr error
	t.MutableBytes(func(data []byte) {
		if int64(len(data)) != expectedBytes {
			readErr = errors.Errorf("tensor shape %s expected %d bytes, but got %d bytes", shape, expectedBytes, len(data))
			return
		}
		_, readErr = f.reader.ReadAt(data, f.dataOffset+meta.DataOffsets[0])
	})
	if readErr != nil {
		return nil, errors.Wrapf(readErr, "failed to read tensor %q from %s", name, f.Path)
	}
	return t, nil
}
