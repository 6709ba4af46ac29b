// Package contrastive implements the speaker-aware and topic-aware auxiliary losses used to
// fine-tune seq2seq summarizers on dialogues.
//
// The host training loop runs the encoder, then hands the token ids and the encoder hidden
// states of a batch to an Objective. The Objective locates speaker and utterance spans
// (delimited by the Sentinels), mean-pools the hidden states over each span, scores the
// pooled vectors with the configured scorers and returns an auxiliary Loss. The training loss
// is then:
//
//	total := loss.Total(primaryLoss, cfg.Weight)
//
// Example:
//
//	obj, err := contrastive.New(contrastive.DefaultConfig(), sentinels)
//	if err != nil {
//		panic(err)
//	}
//	batchLoss, err := obj.Batch(ctx, &contrastive.Batch{InputIDs: ids, Hidden: hidden})
package contrastive

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/gomlx/dialogsum/contrastive/cluster"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Batch of tokenized sequences and their encoder hidden states.
type Batch struct {
	// InputIDs holds the token ids of each sequence.
	InputIDs [][]int

	// Hidden holds the encoder hidden states of each sequence, shaped
	// [len(InputIDs[i]), hiddenSize].
	Hidden []*mat.Dense
}

// Len returns the number of sequences in the batch.
func (b *Batch) Len() int {
	return len(b.InputIDs)
}

// BatchLoss is the auxiliary loss of a batch.
type BatchLoss struct {
	// Sequences holds the loss of each scored sequence, in batch order.
	Sequences []*Loss

	// Auxiliary is the mean of the scored sequences' auxiliary losses.
	Auxiliary float64
}

// Objective computes the auxiliary loss. It holds only the run's fixed configuration and is
// safe for concurrent use.
type Objective struct {
	cfg       Config
	sentinels Sentinels
	speaker   SpeakerScorer
	topic     TopicScorer
	clusterer cluster.Clusterer

	runID string
	plots atomic.Int64
}

// New validates cfg and creates an Objective for the given sentinel ids.
func New(cfg Config, sentinels Sentinels) (*Objective, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sentinels.TurnSeparator == sentinels.SpeakerDelimiter {
		return nil, errors.Wrapf(ErrInvalidConfig, "turn separator and speaker delimiter share the token id %d",
			sentinels.TurnSeparator)
	}
	clusterer, err := cluster.New(cfg.Cluster)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	o := &Objective{
		cfg:       cfg,
		sentinels: sentinels,
		speaker:   SpeakerScorer{Margin: cfg.Margin},
		topic:     TopicScorer{Margin: cfg.Margin},
		clusterer: clusterer,
		runID:     uuid.NewString(),
	}
	klog.V(1).Infof("contrastive objective %s: mode=%s margin=%g weight=%g clustering=%s sentinels=%+v",
		o.runID, cfg.Mode, cfg.Margin, cfg.Weight, clusterer.Strategy(), sentinels)
	return o, nil
}

// Config returns the configuration the Objective was built with.
func (o *Objective) Config() Config {
	return o.cfg
}

// Total returns the training loss for the primary loss and the auxiliary loss l, using the
// configured weight.
func (o *Objective) Total(primary float64, l *Loss) float64 {
	return l.Total(primary, o.cfg.Weight)
}

// Sequence computes the auxiliary loss of one sequence. hidden must have one row per token id.
func (o *Objective) Sequence(ids []int, hidden *mat.Dense) (*Loss, error) {
	if hidden == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "hidden states are nil")
	}
	if rows, _ := hidden.Dims(); rows != len(ids) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d token ids but %d hidden-state rows", len(ids), rows)
	}
	if o.cfg.Mode == ModeNone {
		loss := Aggregate(o.cfg.Mode, Result{}, Result{})
		return &loss, nil
	}

	spans := ExtractSpans(ids, o.sentinels)
	if spans.Degenerate() {
		klog.V(2).Infof("auxiliary loss skipped: %d turn separator(s)", len(spans.Separators))
		loss := Aggregate(o.cfg.Mode, degenerate(DegenerateTooFewTurns), degenerate(DegenerateTooFewTurns))
		loss.Spans = spans
		return &loss, nil
	}

	var speaker, topic Result
	var err error
	if o.cfg.Mode.Speaker() {
		speaker, err = o.speakerLoss(ids, hidden, spans)
		if err != nil {
			return nil, err
		}
	}
	if o.cfg.Mode.Topic() {
		topic, err = o.topicLoss(hidden, spans)
		if err != nil {
			return nil, err
		}
	}
	loss := Aggregate(o.cfg.Mode, speaker, topic)
	loss.Spans = spans
	klog.V(1).Infof("auxiliary loss %.6f (speaker %.6f [%s], topic %.6f [%s])",
		loss.Auxiliary, loss.Speaker.Mean(), loss.Speaker.Degenerate, loss.Topic.Mean(), loss.Topic.Degenerate)
	return &loss, nil
}

func (o *Objective) speakerLoss(ids []int, hidden *mat.Dense, spans Spans) (Result, error) {
	pooled, err := MeanPool(hidden, spans.Speakers)
	if err != nil {
		return Result{}, errors.WithMessage(err, "pooling speaker spans")
	}
	return o.speaker.Score(pooled, spans.SpeakerTokens(ids))
}

func (o *Objective) topicLoss(hidden *mat.Dense, spans Spans) (Result, error) {
	pooled, err := MeanPool(hidden, spans.Utterances)
	if err != nil {
		return Result{}, errors.WithMessage(err, "pooling utterance spans")
	}
	if len(pooled) < MinUtterances {
		return o.topic.Score(pooled, nil)
	}
	assignment, err := o.clusterer.Cluster(pooled)
	if err != nil {
		return Result{}, errors.WithMessagef(err, "clustering %d utterances with %s", len(pooled), o.clusterer.Strategy())
	}
	if assignment.Diagnostic && o.cfg.PlotDir != "" {
		o.writePlot(assignment)
	}
	return o.topic.Score(pooled, assignment)
}

// writePlot saves the diagnostic projection. Failures are logged and otherwise ignored.
func (o *Objective) writePlot(assignment *cluster.Assignment) {
	n := o.plots.Add(1)
	path := filepath.Join(o.cfg.PlotDir, fmt.Sprintf("%s-%s-%04d.png", o.clusterer.Strategy(), o.runID, n))
	title := fmt.Sprintf("%d %s clusters by 2 PCA components", assignment.NumClusters(), o.clusterer.Strategy())
	if err := cluster.WritePlot(path, title, assignment); err != nil {
		klog.Warningf("failed to write cluster plot: %+v", err)
		return
	}
	klog.V(1).Infof("cluster plot written to %s", path)
}

// Batch computes the auxiliary loss of a batch.
//
// By default only the first sequence is scored. With Config.AllSequences every sequence is
// scored independently, in parallel, and the batch auxiliary loss is the mean over sequences.
// An error in any sequence aborts the batch.
func (o *Objective) Batch(ctx context.Context, batch *Batch) (*BatchLoss, error) {
	if batch == nil || batch.Len() == 0 {
		return &BatchLoss{}, nil
	}
	if len(batch.Hidden) != batch.Len() {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d sequences of token ids but %d of hidden states",
			batch.Len(), len(batch.Hidden))
	}
	n := 1
	if o.cfg.AllSequences {
		n = batch.Len()
	}

	losses := make([]*Loss, n)
	g, ctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			loss, err := o.Sequence(batch.InputIDs[i], batch.Hidden[i])
			if err != nil {
				return errors.WithMessagef(err, "sequence #%d", i)
			}
			losses[i] = loss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BatchLoss{Sequences: losses}
	for _, loss := range losses {
		result.Auxiliary += loss.Auxiliary
	}
	result.Auxiliary /= float64(n)
	return result, nil
}
