package contrastive

import (
	"github.com/gomlx/dialogsum/contrastive/cluster"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MinUtterances is the minimum number of utterances for the topic loss to be computed.
const MinUtterances = 3

// TopicScorer computes the topic-aware contrastive loss: utterances assigned to the same
// topic cluster should pool close to the cluster's centroid, the others far from it.
type TopicScorer struct {
	Margin float64
}

// Score returns one loss per cluster label of the assignment, given one pooled vector per
// utterance.
//
// For each label c, positives are the members of c except the first one, negatives are all
// utterances not in c, and distances are measured to the centroid of c. If any label lacks
// positives or negatives, the whole call returns the zero Result.
func (s TopicScorer) Score(vectors [][]float64, assignment *cluster.Assignment) (Result, error) {
	if len(vectors) < MinUtterances {
		klog.V(2).Infof("topic loss skipped: %d utterance(s)", len(vectors))
		return degenerate(DegenerateTooFewUtterances), nil
	}
	if assignment == nil {
		return Result{}, errors.Wrap(ErrShapeMismatch, "nil cluster assignment")
	}
	if len(assignment.Labels) != len(vectors) {
		return Result{}, errors.Wrapf(ErrShapeMismatch, "%d utterance vectors but %d cluster labels",
			len(vectors), len(assignment.Labels))
	}
	dim, err := checkDims(vectors)
	if err != nil {
		return Result{}, errors.WithMessage(err, "utterance vectors")
	}
	if assignment.Diagnostic {
		return degenerate(DegenerateDiagnostic), nil
	}

	losses := make([]float64, 0, len(assignment.Centroids))
	for label, centroid := range assignment.Centroids {
		if len(centroid) != dim {
			return Result{}, errors.Wrapf(ErrShapeMismatch, "centroid %d has dimension %d, utterances have %d",
				label, len(centroid), dim)
		}
		var positives, negatives []int
		seen := false
		for i, l := range assignment.Labels {
			switch {
			case l != label:
				negatives = append(negatives, i)
			case !seen:
				seen = true
			default:
				positives = append(positives, i)
			}
		}
		if len(positives) == 0 || len(negatives) == 0 {
			klog.V(2).Infof("topic loss aborted: cluster %d has %d positive(s) and %d negative(s)",
				label, len(positives), len(negatives))
			return degenerate(DegenerateEmptyPartition), nil
		}
		losses = append(losses, PairwiseMarginLoss(s.Margin,
			distancesTo(vectors, positives, centroid),
			distancesTo(vectors, negatives, centroid)))
	}
	return Result{Losses: losses}, nil
}
