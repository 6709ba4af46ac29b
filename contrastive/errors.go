package contrastive

import "github.com/pkg/errors"

var (
	// ErrInvalidSpan is returned when a span is empty or falls outside the hidden states.
	ErrInvalidSpan = errors.New("invalid span")

	// ErrShapeMismatch is returned when token ids, hidden states, pooled vectors or
	// cluster assignments disagree on their sizes.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidConfig is returned by Config.Validate and New for unusable configurations.
	ErrInvalidConfig = errors.New("invalid configuration")
)
