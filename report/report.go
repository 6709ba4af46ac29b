// Package report collects the per-example auxiliary losses of an evaluation, renders them
// as a terminal table and stores them as parquet files.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/dialogsum/contrastive"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// Record is the report line of one example.
type Record struct {
	Example    int     `parquet:"example"`
	Turns      int     `parquet:"turns"`
	Speakers   int     `parquet:"speakers"`
	Utterances int     `parquet:"utterances"`
	Speaker    float64 `parquet:"speaker_loss"`
	Topic      float64 `parquet:"topic_loss"`
	Auxiliary  float64 `parquet:"auxiliary_loss"`
	Degenerate string  `parquet:"degenerate"`
}

// NewRecord describes the loss l of the example with token ids.
func NewRecord(example int, ids []int, l *contrastive.Loss) Record {
	var reasons []string
	if d := l.Speaker.Degenerate; d != contrastive.DegenerateNone && d != contrastive.DegenerateInactive {
		reasons = append(reasons, "speaker:"+d.String())
	}
	if d := l.Topic.Degenerate; d != contrastive.DegenerateNone && d != contrastive.DegenerateInactive {
		reasons = append(reasons, "topic:"+d.String())
	}
	return Record{
		Example:    example,
		Turns:      len(l.Spans.Separators),
		Speakers:   l.Spans.NumSpeakers(ids),
		Utterances: len(l.Spans.Utterances),
		Speaker:    l.Speaker.Mean(),
		Topic:      l.Topic.Mean(),
		Auxiliary:  l.Auxiliary,
		Degenerate: strings.Join(reasons, ","),
	}
}

// FromBatch creates the records of the scored sequences of a batch.
func FromBatch(batch *contrastive.Batch, bl *contrastive.BatchLoss) []Record {
	records := make([]Record, len(bl.Sequences))
	for i, l := range bl.Sequences {
		records[i] = NewRecord(i, batch.InputIDs[i], l)
	}
	return records
}

// Mean returns the mean losses of the records. It returns the zero Record if there are none.
func Mean(records []Record) Record {
	var mean Record
	if len(records) == 0 {
		return mean
	}
	var degenerate int
	for _, r := range records {
		mean.Turns += r.Turns
		mean.Speakers += r.Speakers
		mean.Utterances += r.Utterances
		mean.Speaker += r.Speaker
		mean.Topic += r.Topic
		mean.Auxiliary += r.Auxiliary
		if r.Degenerate != "" {
			degenerate++
		}
	}
	n := float64(len(records))
	mean.Example = len(records)
	mean.Speaker /= n
	mean.Topic /= n
	mean.Auxiliary /= n
	mean.Degenerate = fmt.Sprintf("%d degenerate", degenerate)
	return mean
}

// WriteParquet writes the records to a parquet file.
func WriteParquet(path string, records []Record) error {
	if err := parquet.WriteFile(path, records); err != nil {
		return errors.Wrapf(err, "failed to write report to %s", path)
	}
	return nil
}

// ReadParquet reads the records of a parquet report.
func ReadParquet(path string) ([]Record, error) {
	records, err := parquet.ReadFile[Record](path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read report from %s", path)
	}
	return records, nil
}

var (
	accent      = lipgloss.Color("#00ff9f")
	dim         = lipgloss.Color("#6e7681")
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = cellStyle.Foreground(dim)
)

// Headers of the rendered table.
var Headers = []string{"example", "turns", "speakers", "utterances", "speaker", "topic", "auxiliary", "degenerate"}

// Render formats the records as a table, followed by a row with the totals and means.
func Render(records []Record) string {
	rows := make([][]string, 0, len(records)+1)
	for _, r := range records {
		rows = append(rows, []string{
			fmt.Sprint(r.Example), fmt.Sprint(r.Turns), fmt.Sprint(r.Speakers), fmt.Sprint(r.Utterances),
			formatLoss(r.Speaker), formatLoss(r.Topic), formatLoss(r.Auxiliary), r.Degenerate,
		})
	}
	mean := Mean(records)
	rows = append(rows, []string{
		"mean", "", "", "",
		formatLoss(mean.Speaker), formatLoss(mean.Topic), formatLoss(mean.Auxiliary), mean.Degenerate,
	})
	footer := len(rows) - 1

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers(Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch row {
			case table.HeaderRow:
				return headerStyle
			case footer:
				return footerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func formatLoss(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
