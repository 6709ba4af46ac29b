package contrastive

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	testBOS   = 0
	testEOS   = 2
	testSep   = 50
	testDelim = 51
	testWord  = 60
)

var testSentinels = Sentinels{TurnSeparator: testSep, SpeakerDelimiter: testDelim}

// dialogue builds "<s> (<sep> speaker : word*n)* </s>" with one single-token speaker label per
// turn and wordsPerTurn utterance tokens.
func dialogue(speakers []int, wordsPerTurn int) []int {
	ids := []int{testBOS}
	for turn, speaker := range speakers {
		ids = append(ids, testSep, speaker, testDelim)
		for w := range wordsPerTurn {
			ids = append(ids, testWord+(turn*wordsPerTurn+w)%20)
		}
	}
	return append(ids, testEOS)
}

// hiddenFor builds hidden states of dimension 2 for ids, deterministic per position.
func hiddenFor(ids []int) *mat.Dense {
	h := mat.NewDense(len(ids), 2, nil)
	for i, id := range ids {
		h.Set(i, 0, float64(id)/10)
		h.Set(i, 1, float64(i%5))
	}
	return h
}

func TestExtractSpans(t *testing.T) {
	ids := dialogue([]int{10, 11, 10}, 2)
	// <s> <sep> 10 : w w <sep> 11 : w w <sep> 10 : w w </s>
	//  0    1   2  3 4 5   6    7 8 9 10  11  12 13 14 15 16
	spans := ExtractSpans(ids, testSentinels)
	assert.Equal(t, []int{1, 6, 11}, spans.Separators)
	assert.Equal(t, []Span{
		{Kind: SpanSpeaker, Start: 2, End: 3},
		{Kind: SpanSpeaker, Start: 7, End: 8},
		{Kind: SpanSpeaker, Start: 12, End: 13},
	}, spans.Speakers)
	assert.Equal(t, []Span{
		{Kind: SpanUtterance, Start: 4, End: 6},
		{Kind: SpanUtterance, Start: 9, End: 11},
	}, spans.Utterances)
	assert.False(t, spans.Degenerate())
	assert.Equal(t, 2, spans.NumSpeakers(ids))
	assert.Equal(t, [][]int{{10}, {11}, {10}}, spans.SpeakerTokens(ids))
	assert.Equal(t, "utterance[4:6]", spans.Utterances[0].String())
}

func TestExtractSpansMultiTokenSpeaker(t *testing.T) {
	ids := []int{testSep, 10, 12, testDelim, 70, 71, testSep, 11, testDelim, 72}
	spans := ExtractSpans(ids, testSentinels)
	require.Len(t, spans.Speakers, 2)
	assert.Equal(t, Span{Kind: SpanSpeaker, Start: 1, End: 3}, spans.Speakers[0])
	assert.Equal(t, Span{Kind: SpanSpeaker, Start: 7, End: 8}, spans.Speakers[1])
	// The utterance starts 3 tokens after the separator, which with a 2-token speaker label
	// includes the delimiter.
	assert.Equal(t, []Span{{Kind: SpanUtterance, Start: 3, End: 6}}, spans.Utterances)
}

func TestExtractSpansDegenerate(t *testing.T) {
	spans := ExtractSpans(dialogue([]int{10}, 3), testSentinels)
	assert.True(t, spans.Degenerate())
	assert.Len(t, spans.Speakers, 1)
	assert.Empty(t, spans.Utterances)

	spans = ExtractSpans([]int{1, 2, 3}, testSentinels)
	assert.True(t, spans.Degenerate())
	assert.Empty(t, spans.Speakers)

	// Speaker labels run up to the next delimiter, separators included. Empty labels and
	// turns with no room for text are dropped.
	spans = ExtractSpans([]int{testSep, testSep, testDelim, testSep}, testSentinels)
	assert.Equal(t, []int{0, 1, 3}, spans.Separators)
	assert.Equal(t, []Span{{Kind: SpanSpeaker, Start: 1, End: 2}}, spans.Speakers)
	assert.Empty(t, spans.Utterances)
}

func TestExtractSpansProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	alphabet := []int{testSep, testDelim, 10, 11, 12, testWord}
	for trial := range 500 {
		ids := make([]int, rng.IntN(40))
		for i := range ids {
			ids[i] = alphabet[rng.IntN(len(alphabet))]
		}
		spans := ExtractSpans(ids, testSentinels)
		assert.LessOrEqual(t, len(spans.Speakers), len(spans.Separators), "trial %d", trial)
		for _, span := range append(spans.Speakers, spans.Utterances...) {
			assert.Less(t, span.Start, span.End, "trial %d: %s in %v", trial, span, ids)
			assert.GreaterOrEqual(t, span.Start, 0)
			assert.LessOrEqual(t, span.End, len(ids))
		}
		for _, span := range spans.Speakers {
			assert.Equal(t, testSep, ids[span.Start-1])
			assert.NotContains(t, ids[span.Start:span.End], testDelim)
		}
		// Every extracted span can be pooled.
		_, err := MeanPool(hiddenFor(ids), append(spans.Speakers, spans.Utterances...))
		require.NoError(t, err, "trial %d", trial)
	}
}
