// Package interpret converts a quantized output vector into a classification.
package interpret

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

// MaxClasses bounds the label table so results can be plain values.
const MaxClasses = 16

var ErrLabelMismatch = errors.New("interpret: label table does not match output tensor")

// ConfidenceKind states how Result.Confidence was derived.
type ConfidenceKind int

const (
	// Margin is best score minus second best score, in raw quantized units.
	Margin ConfidenceKind = iota
	// Percent is the winning class probability scaled to 0..100.
	Percent
)

func (k ConfidenceKind) String() string {
	if k == Percent {
		return "percent"
	}
	return "margin"
}

// Result is one classification. It holds no references, so assigning it
// copies the whole snapshot.
type Result struct {
	Label          string
	Index          int
	NumClasses     int
	Scores         [MaxClasses]int8
	Percent        [MaxClasses]float32
	Confidence     float32
	ConfidenceKind ConfidenceKind
	Latency        time.Duration
	Seq            uint64
	At             time.Time
}

// ScoreSlice returns the per-class raw scores.
func (r *Result) ScoreSlice() []int8 { return r.Scores[:r.NumClasses] }

// PercentSlice returns the per-class percentages; all zero for Margin results.
func (r *Result) PercentSlice() []float32 { return r.Percent[:r.NumClasses] }

// Interpreter maps output vectors onto the label table.
type Interpreter struct {
	labels  []string
	out     tensor.Descriptor
	kind    ConfidenceKind
	scratch []float64
}

// New checks that the label table covers the output tensor exactly.
func New(labels []string, out tensor.Descriptor) (*Interpreter, error) {
	n := out.Elements()
	if len(labels) != n {
		return nil, fmt.Errorf("%w: %d labels, %d outputs", ErrLabelMismatch, len(labels), n)
	}
	if n == 0 || n > MaxClasses {
		return nil, fmt.Errorf("%w: %d classes, supported 1..%d", ErrLabelMismatch, n, MaxClasses)
	}
	kind := Margin
	if out.Semantics == tensor.Probabilities || out.Semantics == tensor.Logits {
		kind = Percent
	}
	return &Interpreter{
		labels:  labels,
		out:     out,
		kind:    kind,
		scratch: make([]float64, n),
	}, nil
}

// Kind reports the confidence representation this interpreter produces.
func (in *Interpreter) Kind() ConfidenceKind { return in.kind }

// Interpret fills res from out. The highest score wins and ties go to the
// lowest index. Timing and sequence fields are left to the caller.
func (in *Interpreter) Interpret(out []int8, res *Result) error {
	n := len(in.labels)
	if len(out) != n {
		return fmt.Errorf("%w: got %d scores, want %d", ErrLabelMismatch, len(out), n)
	}
	best, second := 0, -1
	for i := 1; i < n; i++ {
		switch {
		case out[i] > out[best]:
			best, second = i, best
		case second < 0 || out[i] > out[second]:
			second = i
		}
	}

	res.Label = in.labels[best]
	res.Index = best
	res.NumClasses = n
	res.Scores = [MaxClasses]int8{}
	res.Percent = [MaxClasses]float32{}
	copy(res.Scores[:], out)
	res.ConfidenceKind = in.kind

	if in.kind == Margin {
		if second < 0 {
			res.Confidence = 0
		} else {
			res.Confidence = float32(int(out[best]) - int(out[second]))
		}
		return nil
	}

	q := in.out.Quant
	for i, v := range out {
		in.scratch[i] = float64(q.Dequantize(v))
	}
	if in.out.Semantics == tensor.Logits {
		lse := floats.LogSumExp(in.scratch)
		for i, v := range in.scratch {
			in.scratch[i] = math.Exp(v - lse)
		}
	}
	for i, p := range in.scratch {
		res.Percent[i] = float32(100 * p)
	}
	res.Confidence = res.Percent[best]
	return nil
}
