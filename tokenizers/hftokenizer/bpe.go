package hftokenizer

import "strings"

// bpe splits a byte-level encoded word into vocabulary symbols, applying the merges in
// rank order, and returns their ids. Symbols missing from the vocabulary map to the unknown
// token if there is one, and are dropped otherwise.
func (t *Tokenizer) bpe(word string) []int {
	if word == "" {
		return nil
	}
	if id, ok := t.vocab[word]; ok {
		return []int{id}
	}
	if ids, found := t.cache.Load(word); found {
		return ids.([]int)
	}

	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	if suffix := t.json.Model.EndOfWordSuffix; suffix != "" {
		symbols[len(symbols)-1] += suffix
	}

	for len(symbols) > 1 {
		bestRank, bestIdx := -1, -1
		for i := 0; i < len(symbols)-1; i++ {
			if rank, ok := t.mergeRanks[[2]string{symbols[i], symbols[i+1]}]; ok && (bestRank < 0 || rank < bestRank) {
				bestRank, bestIdx = rank, i
			}
		}
		if bestIdx < 0 {
			break
		}
		symbols[bestIdx] += symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx+1], symbols[bestIdx+2:]...)
	}

	ids := make([]int, 0, len(symbols))
	for _, sym := range symbols {
		if id, ok := t.vocab[sym]; ok {
			ids = append(ids, id)
		} else if t.unkID >= 0 {
			ids = append(ids, t.unkID)
		}
	}
	t.cache.Store(word, ids)
	return ids
}

// decodeToken returns the text of one vocabulary token.
func (t *Tokenizer) decodeToken(token string) string {
	if suffix := t.json.Model.EndOfWordSuffix; suffix != "" && strings.HasSuffix(token, suffix) {
		token = strings.TrimSuffix(token, suffix) + " "
	}
	if t.byteLevel {
		return byteLevelDecode(token)
	}
	return token
}
