package contrastive

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Degeneracy tells why a scorer produced the zero loss instead of a loss stack.
// Degenerate inputs are part of normal training and never reported as errors.
type Degeneracy int

const (
	// DegenerateNone means the losses were computed.
	DegenerateNone Degeneracy = iota

	// DegenerateInactive means the scorer is not selected by the configured Mode.
	DegenerateInactive

	// DegenerateTooFewTurns means the dialogue has fewer than 2 turn separators.
	DegenerateTooFewTurns

	// DegenerateSingleSpeaker means there is no speaker identity besides the first one.
	DegenerateSingleSpeaker

	// DegenerateEmptyPartition means some identity or cluster lacked either positive or
	// negative samples, which aborts the whole call.
	DegenerateEmptyPartition

	// DegenerateTooFewUtterances means fewer than 3 utterances, too few to cluster.
	DegenerateTooFewUtterances

	// DegenerateDiagnostic means the clustering strategy is observational only and does
	// not feed the loss.
	DegenerateDiagnostic
)

var degeneracyNames = []string{
	"none", "inactive", "too_few_turns", "single_speaker", "empty_partition", "too_few_utterances", "diagnostic",
}

// String implements fmt.Stringer.
func (d Degeneracy) String() string {
	if d < 0 || int(d) >= len(degeneracyNames) {
		return fmt.Sprintf("Degeneracy(%d)", int(d))
	}
	return degeneracyNames[d]
}

// Result is the output of one scorer call: one loss per speaker identity (or topic cluster).
type Result struct {
	Losses     []float64
	Degenerate Degeneracy
}

// Mean of the loss stack, or 0 for an empty stack.
func (r Result) Mean() float64 {
	if len(r.Losses) == 0 {
		return 0
	}
	return floats.Sum(r.Losses) / float64(len(r.Losses))
}

// degenerate returns the zero Result tagged with the reason.
func degenerate(reason Degeneracy) Result {
	return Result{Degenerate: reason}
}
