// Package tokenizers loads the tokenizer of a model, from a local directory or from a
// HuggingFace Hub repository, picking the backend from the files available:
// "tokenizer.json" (hftokenizer) or "tokenizer.model" (sentencepiece).
package tokenizers

import (
	"path/filepath"

	"github.com/gomlx/dialogsum/hub"
	"github.com/gomlx/dialogsum/internal/files"
	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/gomlx/dialogsum/tokenizers/hftokenizer"
	"github.com/gomlx/dialogsum/tokenizers/sentencepiece"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConfigFile is the name of the tokenizer configuration in a model repository.
const ConfigFile = "tokenizer_config.json"

// source gives access to the files of a model: hub.Repo or a local directory.
type source interface {
	HasFile(fileName string) bool
	DownloadFile(fileName string) (string, error)
}

var _ source = (*hub.Repo)(nil)

// localDir is a source backed by a directory.
type localDir string

func (d localDir) HasFile(fileName string) bool {
	return files.Exists(filepath.Join(string(d), fileName))
}

func (d localDir) DownloadFile(fileName string) (string, error) {
	path := filepath.Join(string(d), fileName)
	if !files.Exists(path) {
		return "", errors.Errorf("file %q not found", path)
	}
	return path, nil
}

// Load creates the tokenizer of a model, given a local directory or a hub repository id.
// The specialTokens (e.g. sentinel.DialogueTokens) are registered as additional special
// tokens, both in the tokenizer and in the returned configuration.
func Load(ref string, specialTokens ...string) (api.TokenizerWithVocab, *api.Config, error) {
	if files.IsDir(ref) {
		return load(localDir(ref), ref, specialTokens)
	}
	return LoadFromRepo(hub.New(ref), specialTokens...)
}

// LoadFromRepo is like Load for a configured hub.Repo.
func LoadFromRepo(repo *hub.Repo, specialTokens ...string) (api.TokenizerWithVocab, *api.Config, error) {
	return load(repo, repo.String(), specialTokens)
}

func load(src source, name string, specialTokens []string) (api.TokenizerWithVocab, *api.Config, error) {
	var config *api.Config
	if src.HasFile(ConfigFile) {
		path, err := src.DownloadFile(ConfigFile)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "can't get %s of %s", ConfigFile, name)
		}
		if config, err = api.LoadConfig(path); err != nil {
			return nil, nil, err
		}
	} else {
		klog.Warningf("tokenizers: %s has no %s, special tokens are recognized by name", name, ConfigFile)
	}

	tok, err := newTokenizer(src, name, config)
	if err != nil {
		return nil, nil, err
	}
	if hf, ok := tok.(*hftokenizer.Tokenizer); ok {
		if added := hf.AddSpecialTokens(specialTokens...); added > 0 {
			klog.V(1).Infof("tokenizers: %d new token(s) added to %s, vocabulary size is now %d", added, name, hf.VocabSize())
		}
	}
	if config == nil {
		config = &api.Config{}
	}
	config.AddSpecialTokens(specialTokens...)
	return tok, config, nil
}

// newTokenizer creates the tokenizer backend matching the files of src.
func newTokenizer(src source, name string, config *api.Config) (api.TokenizerWithVocab, error) {
	switch {
	case src.HasFile(hftokenizer.TokenizerFile):
		path, err := src.DownloadFile(hftokenizer.TokenizerFile)
		if err != nil {
			return nil, errors.WithMessagef(err, "can't get %s of %s", hftokenizer.TokenizerFile, name)
		}
		return hftokenizer.NewFromFile(config, path)

	case src.HasFile(sentencepiece.ModelFile):
		path, err := src.DownloadFile(sentencepiece.ModelFile)
		if err != nil {
			return nil, errors.WithMessagef(err, "can't get %s of %s", sentencepiece.ModelFile, name)
		}
		return sentencepiece.NewFromFile(config, path)
	}
	return nil, errors.Errorf("%s has neither %s nor %s", name, hftokenizer.TokenizerFile, sentencepiece.ModelFile)
}
