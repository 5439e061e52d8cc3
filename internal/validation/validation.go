// Package validation accumulates labeled classification runs and reports
// accuracy and latency.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoSamples = errors.New("validation: no samples recorded")

// Sample is one classified frame with its ground truth.
type Sample struct {
	ID        string        `json:"id"`
	Expected  string        `json:"expected"`
	Predicted string        `json:"predicted"`
	Latency   time.Duration `json:"latency_ns"`
	Scores    []int8        `json:"scores,omitempty"`
}

// Correct reports whether the prediction matches the ground truth.
func (s Sample) Correct() bool { return s.Expected == s.Predicted }

// ClassMetrics are one-vs-rest counts for a label.
type ClassMetrics struct {
	Label          string  `json:"label"`
	Support        int     `json:"support"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
}

// LatencyMetrics summarizes per-frame latency in milliseconds.
type LatencyMetrics struct {
	MeanMs   float64 `json:"mean_ms"`
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	StdDevMs float64 `json:"stddev_ms"`
}

// Metrics is the report for one run.
type Metrics struct {
	RunID    uuid.UUID      `json:"run_id"`
	Samples  int            `json:"samples"`
	Correct  int            `json:"correct"`
	Accuracy float64        `json:"accuracy"`
	Classes  []ClassMetrics `json:"classes"`
	Latency  LatencyMetrics `json:"latency"`
	// Confusion[i][j] counts frames of Classes[i] predicted as Classes[j].
	Confusion [][]int `json:"confusion"`
}

// Recorder collects samples for a fixed label set. Not safe for concurrent use.
type Recorder struct {
	runID   uuid.UUID
	labels  []string
	index   map[string]int
	samples []Sample
}

func NewRecorder(labels []string) *Recorder {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return &Recorder{
		runID:  uuid.New(),
		labels: append([]string(nil), labels...),
		index:  idx,
	}
}

func (r *Recorder) RunID() uuid.UUID { return r.runID }

// Add records s. Both labels must belong to the recorder's label set.
func (r *Recorder) Add(s Sample) error {
	if _, ok := r.index[s.Expected]; !ok {
		return fmt.Errorf("validation: sample %q: unknown expected label %q", s.ID, s.Expected)
	}
	if _, ok := r.index[s.Predicted]; !ok {
		return fmt.Errorf("validation: sample %q: unknown predicted label %q", s.ID, s.Predicted)
	}
	s.Scores = append([]int8(nil), s.Scores...)
	r.samples = append(r.samples, s)
	return nil
}

func (r *Recorder) Samples() []Sample { return r.samples }

// Metrics computes the report. Precision or recall of a class with no
// predictions or no support is zero.
func (r *Recorder) Metrics() (Metrics, error) {
	if len(r.samples) == 0 {
		return Metrics{}, ErrNoSamples
	}

	n := len(r.labels)
	confusion := make([][]int, n)
	for i := range confusion {
		confusion[i] = make([]int, n)
	}
	lat := make([]float64, len(r.samples))
	correct := 0
	for i, s := range r.samples {
		confusion[r.index[s.Expected]][r.index[s.Predicted]]++
		if s.Correct() {
			correct++
		}
		lat[i] = float64(s.Latency.Microseconds()) / 1000
	}

	classes := make([]ClassMetrics, n)
	for i, label := range r.labels {
		cm := ClassMetrics{Label: label, TruePositives: confusion[i][i]}
		for j := 0; j < n; j++ {
			cm.Support += confusion[i][j]
			if j != i {
				cm.FalseNegatives += confusion[i][j]
				cm.FalsePositives += confusion[j][i]
			}
		}
		cm.Precision = ratio(cm.TruePositives, cm.TruePositives+cm.FalsePositives)
		cm.Recall = ratio(cm.TruePositives, cm.Support)
		classes[i] = cm
	}

	m := Metrics{
		RunID:     r.runID,
		Samples:   len(r.samples),
		Correct:   correct,
		Accuracy:  ratio(correct, len(r.samples)),
		Classes:   classes,
		Confusion: confusion,
		Latency: LatencyMetrics{
			MinMs: floats.Min(lat),
			MaxMs: floats.Max(lat),
		},
	}
	m.Latency.MeanMs, m.Latency.StdDevMs = stat.MeanStdDev(lat, nil)
	if len(lat) == 1 {
		m.Latency.StdDevMs = 0
	}
	return m, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// WriteJSON writes m indented.
func (m Metrics) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// WriteTable prints a plain text summary.
func (m Metrics) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s: %d/%d correct (%.1f%%)\n", m.RunID, m.Correct, m.Samples, 100*m.Accuracy); err != nil {
		return err
	}
	fmt.Fprintf(w, "%-16s %8s %10s %8s\n", "label", "support", "precision", "recall")
	for _, c := range m.Classes {
		fmt.Fprintf(w, "%-16s %8d %10.3f %8.3f\n", c.Label, c.Support, c.Precision, c.Recall)
	}
	_, err := fmt.Fprintf(w, "latency ms: mean %.3f min %.3f max %.3f stddev %.3f\n",
		m.Latency.MeanMs, m.Latency.MinMs, m.Latency.MaxMs, m.Latency.StdDevMs)
	return err
}
