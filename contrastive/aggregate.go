package contrastive

import (
	"fmt"

	"github.com/pkg/errors"
)

// Mode selects which auxiliary losses are active. It is chosen once per training run.
type Mode int

const (
	// ModeNone trains with the primary generation loss only.
	ModeNone Mode = iota
	// ModeSpeaker adds the speaker-aware loss.
	ModeSpeaker
	// ModeTopic adds the topic-aware loss.
	ModeTopic
	// ModeBoth adds the speaker-aware and the topic-aware losses.
	ModeBoth
)

// ParseMode converts the integer switch used in training configurations into a Mode.
func ParseMode(v int) (Mode, error) {
	m := Mode(v)
	if m < ModeNone || m > ModeBoth {
		return ModeNone, errors.Wrapf(ErrInvalidConfig, "unsupported mode %d, valid modes are 0 (none), 1 (speaker), 2 (topic) and 3 (both)", v)
	}
	return m, nil
}

// Speaker reports whether the speaker-aware loss is active.
func (m Mode) Speaker() bool { return m == ModeSpeaker || m == ModeBoth }

// Topic reports whether the topic-aware loss is active.
func (m Mode) Topic() bool { return m == ModeTopic || m == ModeBoth }

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeSpeaker:
		return "speaker"
	case ModeTopic:
		return "topic"
	case ModeBoth:
		return "speaker+topic"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Loss is the auxiliary loss of one sequence.
type Loss struct {
	Mode    Mode
	Speaker Result
	Topic   Result

	// Auxiliary = Speaker.Mean() + Topic.Mean().
	Auxiliary float64

	// Spans recovered from the sequence, for reporting.
	Spans Spans
}

// Aggregate folds the speaker and topic results into one Loss. The result of a scorer the
// mode does not select is replaced by the zero Result.
func Aggregate(mode Mode, speaker, topic Result) Loss {
	if !mode.Speaker() {
		speaker = degenerate(DegenerateInactive)
	}
	if !mode.Topic() {
		topic = degenerate(DegenerateInactive)
	}
	return Loss{
		Mode:      mode,
		Speaker:   speaker,
		Topic:     topic,
		Auxiliary: speaker.Mean() + topic.Mean(),
	}
}

// Total returns the training loss: primary + weight * Auxiliary.
func (l *Loss) Total(primary, weight float64) float64 {
	return primary + weight*l.Auxiliary
}
