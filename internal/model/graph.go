package model

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/edge-classifier/internal/arena"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

// Kind names a layer operator.
type Kind string

const (
	KindAveragePool2D  Kind = "average_pool_2d"
	KindFullyConnected Kind = "fully_connected"
	KindSoftmax        Kind = "softmax"
)

// TensorAlignment is the byte alignment of every tensor carved from the arena.
const TensorAlignment = 16

// ErrInvalidGraph reports a graph whose layers do not chain.
var ErrInvalidGraph = errors.New("model: invalid graph")

// Graph is the decoded operator graph plus weights. Graphs are immutable
// once parsed.
type Graph struct {
	Name     string            `cbor:"name"`
	Revision string            `cbor:"revision"`
	Input    tensor.Descriptor `cbor:"input"`
	Layers   []Layer           `cbor:"layers"`
}

// Layer is one operator. Only the fields of its Kind are set.
type Layer struct {
	Kind   Kind              `cbor:"kind"`
	Output tensor.Descriptor `cbor:"output"`

	// average_pool_2d
	Kernel int `cbor:"kernel,omitempty"`
	Stride int `cbor:"stride,omitempty"`

	// fully_connected: Weights is row-major [outputs][inputs], symmetric
	// (zero point 0) with WeightScale; Bias is in units of
	// input scale * WeightScale.
	Weights     []int8  `cbor:"weights,omitempty"`
	Bias        []int32 `cbor:"bias,omitempty"`
	WeightScale float32 `cbor:"weight_scale,omitempty"`
	ReLU        bool    `cbor:"relu,omitempty"`
}

// Output returns the descriptor of the graph's final tensor.
func (g *Graph) Output() tensor.Descriptor {
	if len(g.Layers) == 0 {
		return g.Input
	}
	return g.Layers[len(g.Layers)-1].Output
}

// RequiredArenaBytes is the arena footprint of the graph: the input tensor
// followed by every layer output, each aligned to align.
func (g *Graph) RequiredArenaBytes(align int) int {
	n := g.Input.Bytes()
	for _, l := range g.Layers {
		n = arena.AlignUp(n, align) + l.Output.Bytes()
	}
	return n
}

// Validate checks that every layer consumes its predecessor's shape.
func (g *Graph) Validate() error {
	if err := g.Input.Validate(); err != nil {
		return fmt.Errorf("%w: input: %w", ErrInvalidGraph, err)
	}
	if g.Input.DType != tensor.Int8 {
		return fmt.Errorf("%w: input dtype %s", ErrInvalidGraph, g.Input.DType)
	}
	if len(g.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidGraph)
	}
	in := g.Input
	for i, l := range g.Layers {
		if err := l.validate(in); err != nil {
			return fmt.Errorf("%w: layer %d (%s): %w", ErrInvalidGraph, i, l.Kind, err)
		}
		in = l.Output
	}
	return nil
}

func (l *Layer) validate(in tensor.Descriptor) error {
	out := l.Output
	if err := out.Validate(); err != nil {
		return err
	}
	if out.DType != tensor.Int8 {
		return fmt.Errorf("output dtype %s", out.DType)
	}
	switch l.Kind {
	case KindAveragePool2D:
		if in.Layout != tensor.NHWC {
			return errors.New("input is not NHWC")
		}
		if l.Kernel <= 0 || l.Stride <= 0 || l.Kernel > in.Height() || l.Kernel > in.Width() {
			return fmt.Errorf("kernel %d stride %d over %dx%d", l.Kernel, l.Stride, in.Height(), in.Width())
		}
		h := (in.Height()-l.Kernel)/l.Stride + 1
		w := (in.Width()-l.Kernel)/l.Stride + 1
		if out.Layout != tensor.NHWC || out.Height() != h || out.Width() != w || out.Depth() != in.Depth() {
			return fmt.Errorf("output shape %v, want [1 %d %d %d]", out.Shape, h, w, in.Depth())
		}
		if out.Quant != in.Quant {
			return fmt.Errorf("output quantization %+v differs from input %+v", out.Quant, in.Quant)
		}
	case KindFullyConnected:
		n, m := in.Elements(), out.Elements()
		if len(l.Weights) != n*m {
			return fmt.Errorf("%d weights, want %d×%d", len(l.Weights), m, n)
		}
		if len(l.Bias) != 0 && len(l.Bias) != m {
			return fmt.Errorf("%d biases, want %d", len(l.Bias), m)
		}
		if !(l.WeightScale > 0) {
			return fmt.Errorf("weight scale %v", l.WeightScale)
		}
	case KindSoftmax:
		if in.Elements() != out.Elements() {
			return fmt.Errorf("%d outputs for %d inputs", out.Elements(), in.Elements())
		}
	default:
		return fmt.Errorf("unknown operator %q", l.Kind)
	}
	return nil
}
