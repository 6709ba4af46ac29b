// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json format, for the
// byte-level BPE models (BART, RoBERTa, GPT-2) used to encode dialogues.
//
// Added tokens are matched before the model runs, so special tokens written in the text (like
// "<sep>") always encode to their own id. New special tokens can be registered with
// Tokenizer.AddSpecialTokens.
package hftokenizer

import (
	"encoding/json"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/gomlx/dialogsum/hub"
	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
	"k8s.io/klog/v2"
)

// TokenizerFile is the name of the tokenizer file in a model repository.
const TokenizerFile = "tokenizer.json"

// Tokenizer implements the api.Tokenizer interface for HuggingFace tokenizer.json files.
type Tokenizer struct {
	config *api.Config
	json   *TokenizerJSON

	vocab      map[string]int
	idToToken  map[int]string
	mergeRanks map[[2]string]int

	byteLevel      bool
	splitRegex     bool
	addPrefixSpace bool

	// added holds the added tokens, longest content first, for matching.
	added    []AddedToken
	addedIDs map[string]int

	unkID    int
	specials map[api.SpecialToken]int

	// cache of BPE results per word.
	cache sync.Map
}

// Compile time assert that Tokenizer implements api.TokenizerWithVocab interface.
var _ api.TokenizerWithVocab = &Tokenizer{}

// New creates a HuggingFace tokenizer from the tokenizer.json file of a repository.
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
	if !repo.HasFile(TokenizerFile) {
		return nil, errors.Errorf("%q file not found in repo %s", TokenizerFile, repo)
	}
	tokenizerFile, err := repo.DownloadFile(TokenizerFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't download %s file", TokenizerFile)
	}
	return NewFromFile(config, tokenizerFile)
}

// NewFromFile creates a HuggingFace tokenizer from a local tokenizer.json file path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a HuggingFace tokenizer from tokenizer.json content.
// The config may be nil, in which case special tokens are recognized by their usual names.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	if tj.Model.Type != "" && tj.Model.Type != "BPE" {
		return nil, errors.Errorf("tokenizer model %q not supported, only BPE models are", tj.Model.Type)
	}

	t := &Tokenizer{
		config:     config,
		json:       &tj,
		vocab:      tj.Model.Vocab,
		idToToken:  make(map[int]string, len(tj.Model.Vocab)+len(tj.AddedTokens)),
		mergeRanks: make(map[[2]string]int, len(tj.Model.Merges)),
		addedIDs:   make(map[string]int, len(tj.AddedTokens)),
		unkID:      -1,
		splitRegex: true,
	}
	if t.vocab == nil {
		t.vocab = make(map[string]int)
	}
	for token, id := range t.vocab {
		t.idToToken[id] = token
	}
	for rank, merge := range tj.Model.Merges {
		if _, found := t.mergeRanks[merge]; !found {
			t.mergeRanks[merge] = rank
		}
	}
	if tj.PreTokenizer != nil {
		t.configurePreTokenizer(tj.PreTokenizer)
	}
	if tj.Decoder != nil && tj.Decoder.Type == "ByteLevel" {
		t.byteLevel = true
	}
	for _, at := range tj.AddedTokens {
		t.addToken(at)
	}
	if id, ok := t.vocab[tj.Model.UnkToken]; ok {
		t.unkID = id
	}
	t.resolveSpecialTokens()
	return t, nil
}

func (t *Tokenizer) configurePreTokenizer(pt *PreTokenizer) {
	switch pt.Type {
	case "ByteLevel":
		t.byteLevel = true
		t.addPrefixSpace = pt.AddPrefixSpace
		if pt.UseRegex != nil {
			t.splitRegex = *pt.UseRegex
		}
	case "Sequence":
		for i := range pt.PreTokenizers {
			t.configurePreTokenizer(&pt.PreTokenizers[i])
		}
	default:
		klog.V(1).Infof("hftokenizer: pre-tokenizer %q not supported, splitting on whitespace", pt.Type)
	}
}

// addToken registers an added token, keeping t.added sorted longest first.
func (t *Tokenizer) addToken(at AddedToken) {
	if _, found := t.addedIDs[at.Content]; found || at.Content == "" {
		return
	}
	t.addedIDs[at.Content] = at.ID
	t.idToToken[at.ID] = at.Content
	idx, _ := slices.BinarySearchFunc(t.added, at, func(a, b AddedToken) int {
		return len(b.Content) - len(a.Content)
	})
	t.added = slices.Insert(t.added, idx, at)
}

// AddSpecialTokens registers special tokens, so they are always encoded to a single id.
// A token already in the vocabulary keeps its id, others get new ids after the current
// largest one. If the Tokenizer was created with a configuration, the tokens are also added
// to its additional special tokens.
//
// It returns the number of tokens that were given a new id.
func (t *Tokenizer) AddSpecialTokens(tokens ...string) int {
	newIDs := 0
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, found := t.addedIDs[token]; found {
			continue
		}
		id, found := t.vocab[token]
		if !found {
			id = t.nextID()
			newIDs++
		}
		t.addToken(AddedToken{ID: id, Content: token, Special: true})
		klog.V(2).Infof("hftokenizer: special token %q registered with id %d", token, id)
	}
	if t.config != nil {
		t.config.AddSpecialTokens(tokens...)
	}
	return newIDs
}

func (t *Tokenizer) nextID() int {
	if len(t.idToToken) == 0 {
		return 0
	}
	return slices.Max(slices.Collect(maps.Keys(t.idToToken))) + 1
}

// resolveSpecialTokens maps special tokens from config to their IDs.
func (t *Tokenizer) resolveSpecialTokens() {
	t.specials = make(map[api.SpecialToken]int)
	if t.config != nil {
		for token := range api.TokSpecialTokensCount {
			if content := t.config.Token(token); content != "" {
				if id, ok := t.TokenToID(content); ok {
					t.specials[token] = id
				}
			}
		}
	} else {
		for _, at := range t.json.AddedTokens {
			if !at.Special {
				continue
			}
			switch at.Content {
			case "<unk>", "[UNK]":
				t.specials[api.TokUnknown] = at.ID
			case "<pad>", "[PAD]":
				t.specials[api.TokPad] = at.ID
			case "<s>":
				t.specials[api.TokBeginningOfSentence] = at.ID
				t.specials[api.TokClassification] = at.ID
			case "[CLS]":
				t.specials[api.TokClassification] = at.ID
			case "</s>":
				t.specials[api.TokEndOfSentence] = at.ID
				t.specials[api.TokSeparator] = at.ID
			case "[SEP]":
				t.specials[api.TokSeparator] = at.ID
			case "<mask>", "[MASK]":
				t.specials[api.TokMask] = at.ID
			}
		}
	}
	if _, found := t.specials[api.TokUnknown]; !found && t.unkID >= 0 {
		t.specials[api.TokUnknown] = t.unkID
	}
	// BERT-style models use CLS/SEP as sentence boundaries.
	if id, found := t.specials[api.TokClassification]; found {
		if _, found := t.specials[api.TokBeginningOfSentence]; !found {
			t.specials[api.TokBeginningOfSentence] = id
		}
	}
	if id, found := t.specials[api.TokSeparator]; found {
		if _, found := t.specials[api.TokEndOfSentence]; !found {
			t.specials[api.TokEndOfSentence] = id
		}
	}
}

// segment is a piece of the input text: either an added token (id >= 0) or plain text.
type segment struct {
	text string
	id   int
}

// splitAdded splits text around the added tokens, longest match first.
func (t *Tokenizer) splitAdded(text string) []segment {
	if len(t.added) == 0 {
		return []segment{{text: text, id: -1}}
	}
	var segments []segment
	plainStart := 0
	for i := 0; i < len(text); {
		var match *AddedToken
		for j := range t.added {
			if strings.HasPrefix(text[i:], t.added[j].Content) {
				match = &t.added[j]
				break
			}
		}
		if match == nil {
			i++
			continue
		}
		plain := text[plainStart:i]
		if match.Lstrip {
			plain = strings.TrimRightFunc(plain, unicode.IsSpace)
		}
		if plain != "" {
			segments = append(segments, segment{text: plain, id: -1})
		}
		segments = append(segments, segment{text: match.Content, id: match.ID})
		i += len(match.Content)
		if match.Rstrip {
			for i < len(text) && unicode.IsSpace(rune(text[i])) {
				i++
			}
		}
		plainStart = i
	}
	if plainStart < len(text) {
		segments = append(segments, segment{text: text[plainStart:], id: -1})
	}
	return segments
}

// Encode converts text to a sequence of token IDs. No special tokens are added around the
// sequence.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, seg := range t.splitAdded(text) {
		if seg.id >= 0 {
			ids = append(ids, seg.id)
			continue
		}
		for _, word := range t.preTokenize(t.normalize(seg.text)) {
			ids = append(ids, t.bpe(word)...)
		}
	}
	return ids
}

// normalize applies the normalizer to the text.
func (t *Tokenizer) normalize(text string) string {
	if t.json.Normalizer == nil {
		return text
	}
	return applyNormalizer(text, t.json.Normalizer)
}

func applyNormalizer(text string, n *Normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "Sequence":
		for i := range n.Normalizers {
			text = applyNormalizer(text, &n.Normalizers[i])
		}
		return text
	default:
		return text
	}
}

// preTokenize splits text into words, byte-level encoded if the model is.
func (t *Tokenizer) preTokenize(text string) []string {
	if !t.byteLevel {
		return strings.Fields(text)
	}
	if t.addPrefixSpace && text != "" && text[0] != ' ' {
		text = " " + text
	}
	words := []string{text}
	if t.splitRegex {
		words = gpt2Split(text)
	}
	for i, w := range words {
		words[i] = byteLevelEncode(w)
	}
	return words
}

// Decode converts a sequence of token IDs back to text. Unknown ids are skipped.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		token, ok := t.idToToken[id]
		if !ok {
			continue
		}
		if _, added := t.addedIDs[token]; added {
			sb.WriteString(token)
			continue
		}
		sb.WriteString(t.decodeToken(token))
	}
	return sb.String()
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if id, found := t.specials[token]; found {
		return id, nil
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// VocabSize returns the number of distinct token ids, added tokens included.
func (t *Tokenizer) VocabSize() int {
	return len(t.idToToken)
}

// TokenToID converts a token string to its ID.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedIDs[token]; ok {
		return id, true
	}
	id, ok := t.vocab[token]
	return id, ok
}

// IDToToken converts a token ID to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// AddedTokensList returns the list of added tokens sorted by ID.
func (t *Tokenizer) AddedTokensList() []AddedToken {
	result := slices.Clone(t.added)
	slices.SortFunc(result, func(a, b AddedToken) int { return a.ID - b.ID })
	return result
}
