package contrastive

import (
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SpeakerScorer computes the speaker-aware contrastive loss: mentions of the same speaker
// should pool to nearby vectors, mentions of different speakers to distant ones.
type SpeakerScorer struct {
	Margin float64
}

// Score returns one loss per speaker identity, given one pooled vector per speaker span and
// the tokens under each span.
//
// Identities are numbered by first appearance; two spans share an identity if their tokens
// are equal. Identity 0 only serves as the anchor convention and gets no loss. For every other
// identity, the benchmark is its first mention, positives are its other mentions and negatives
// are the mentions of any other speaker, all taken from span positions >= 1.
//
// If any identity lacks positives or negatives, the whole call returns the zero Result.
func (s SpeakerScorer) Score(vectors [][]float64, speakerTokens [][]int) (Result, error) {
	if len(vectors) != len(speakerTokens) {
		return Result{}, errors.Wrapf(ErrShapeMismatch, "%d speaker vectors but %d speaker token spans",
			len(vectors), len(speakerTokens))
	}
	if _, err := checkDims(vectors); err != nil {
		return Result{}, errors.WithMessage(err, "speaker vectors")
	}

	identities, firstMention := speakerIdentities(speakerTokens)
	if len(firstMention) < 2 {
		klog.V(2).Infof("speaker loss skipped: %d distinct speaker(s)", len(firstMention))
		return degenerate(DegenerateSingleSpeaker), nil
	}

	losses := make([]float64, 0, len(firstMention)-1)
	for identity := 1; identity < len(firstMention); identity++ {
		benchmark := firstMention[identity]
		var positives, negatives []int
		for i := 1; i < len(vectors); i++ {
			if i == benchmark {
				continue
			}
			if identities[i] == identity {
				positives = append(positives, i)
			} else {
				negatives = append(negatives, i)
			}
		}
		if len(positives) == 0 || len(negatives) == 0 {
			klog.V(2).Infof("speaker loss aborted: identity %d has %d positive(s) and %d negative(s)",
				identity, len(positives), len(negatives))
			return degenerate(DegenerateEmptyPartition), nil
		}
		anchor := vectors[benchmark]
		losses = append(losses, PairwiseMarginLoss(s.Margin,
			distancesTo(vectors, positives, anchor),
			distancesTo(vectors, negatives, anchor)))
	}
	return Result{Losses: losses}, nil
}

// speakerIdentities assigns an identity to each span, numbered by first appearance, and
// returns the span position of each identity's first mention.
func speakerIdentities(speakerTokens [][]int) (identities []int, firstMention []int) {
	identities = make([]int, len(speakerTokens))
	for i, tokens := range speakerTokens {
		identity := slices.IndexFunc(firstMention, func(pos int) bool {
			return slices.Equal(speakerTokens[pos], tokens)
		})
		if identity < 0 {
			identity = len(firstMention)
			firstMention = append(firstMention, i)
		}
		identities[i] = identity
	}
	return
}
