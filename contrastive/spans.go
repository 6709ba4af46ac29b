package contrastive

import "fmt"

// SpanKind tags a Span as covering a speaker label or an utterance body.
type SpanKind int

const (
	SpanSpeaker SpanKind = iota
	SpanUtterance
)

// String implements fmt.Stringer.
func (k SpanKind) String() string {
	switch k {
	case SpanSpeaker:
		return "speaker"
	case SpanUtterance:
		return "utterance"
	default:
		return fmt.Sprintf("SpanKind(%d)", int(k))
	}
}

// Span is a half-open range [Start, End) of token positions in one sequence.
type Span struct {
	Kind  SpanKind
	Start int
	End   int
}

// Len returns the number of tokens covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// String implements fmt.Stringer.
func (s Span) String() string {
	return fmt.Sprintf("%s[%d:%d]", s.Kind, s.Start, s.End)
}

// utteranceOffset is the distance from a turn separator to the first utterance token:
// the separator itself, the speaker token and the speaker delimiter.
const utteranceOffset = 3

// Sentinels holds the two reserved token ids that structure a tokenized dialogue:
//
//	<sep>Amanda: I baked cookies.<sep>Jerry: Sure!
//
// TurnSeparator is the id of "<sep>" and SpeakerDelimiter the id of ":".
type Sentinels struct {
	TurnSeparator    int
	SpeakerDelimiter int
}

// Spans holds the structure recovered from one tokenized dialogue.
type Spans struct {
	// Separators are the positions of every TurnSeparator token.
	Separators []int

	// Speakers has one span per turn covering the speaker label, between the separator and
	// the following SpeakerDelimiter. Turns with an empty label are left out.
	Speakers []Span

	// Utterances has one span per pair of consecutive separators, covering the text of the
	// turn. Degenerate turns (too short to hold any text) are left out.
	Utterances []Span
}

// Degenerate reports whether the dialogue has fewer than two turn separators, in which case
// no contrastive loss is computed for it.
func (s Spans) Degenerate() bool {
	return len(s.Separators) < 2
}

// SpeakerTokens returns the token sub-sequence under each speaker span of ids.
func (s Spans) SpeakerTokens(ids []int) [][]int {
	tokens := make([][]int, len(s.Speakers))
	for i, span := range s.Speakers {
		tokens[i] = ids[span.Start:span.End]
	}
	return tokens
}

// NumSpeakers counts the distinct speaker labels of ids.
func (s Spans) NumSpeakers(ids []int) int {
	_, firstMention := speakerIdentities(s.SpeakerTokens(ids))
	return len(firstMention)
}

// ExtractSpans locates the turn separators, speaker labels and utterance bodies in ids.
//
// A speaker span starts right after each separator and ends at the first SpeakerDelimiter
// found from there (or at the end of the sequence). An utterance span goes from 3 tokens
// after a separator up to the next separator. The last turn has no closing separator, so
// it yields a speaker span but no utterance span.
//
// Every returned span is non-empty and lies within [0, len(ids)).
func ExtractSpans(ids []int, sentinels Sentinels) Spans {
	var spans Spans
	for pos, id := range ids {
		if id == sentinels.TurnSeparator {
			spans.Separators = append(spans.Separators, pos)
		}
	}

	for _, sep := range spans.Separators {
		end := sep + 1
		for end < len(ids) && ids[end] != sentinels.SpeakerDelimiter {
			end++
		}
		if end > sep+1 {
			spans.Speakers = append(spans.Speakers, Span{Kind: SpanSpeaker, Start: sep + 1, End: end})
		}
	}

	for i := 1; i < len(spans.Separators); i++ {
		start, end := spans.Separators[i-1]+utteranceOffset, spans.Separators[i]
		if start < end {
			spans.Utterances = append(spans.Utterances, Span{Kind: SpanUtterance, Start: start, End: end})
		}
	}
	return spans
}
