// Package engine executes model graphs on int8 tensors carved from a fixed
// arena.
//
// An Engine moves through Uninitialized, ModelLoaded, TensorsAllocated and
// Ready. Any setup failure moves it to Failed, which is terminal. Once Ready,
// Invoke never changes the state: a failed forward pass is reported to the
// caller and the next frame may be tried.
package engine

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/Brownie44l1/edge-classifier/internal/arena"
	"github.com/Brownie44l1/edge-classifier/internal/model"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

// State is the engine lifecycle position.
type State int

const (
	Uninitialized State = iota
	ModelLoaded
	TensorsAllocated
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ModelLoaded:
		return "model_loaded"
	case TensorsAllocated:
		return "tensors_allocated"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotReady      = errors.New("engine: not ready")
	ErrWrongState    = errors.New("engine: operation not valid in current state")
	ErrInvokeFailure = errors.New("engine: invoke failed")
)

// Engine is the reference int8 runtime. It is not safe for concurrent use.
type Engine struct {
	state State
	err   error

	graph   *model.Graph
	arena   *arena.Arena
	input   []int8
	outputs [][]int8 // one per layer
}

// New returns an engine in the Uninitialized state.
func New() *Engine {
	return &Engine{}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Err returns the error that moved the engine to Failed, if any.
func (e *Engine) Err() error { return e.err }

func (e *Engine) fail(err error) error {
	e.state = Failed
	e.err = err
	return err
}

// LoadModel parses and validates blob. A version mismatch or corrupt graph
// moves the engine to Failed.
func (e *Engine) LoadModel(blob []byte) error {
	if e.state != Uninitialized {
		return fmt.Errorf("%w: load model in %s", ErrWrongState, e.state)
	}
	g, err := model.Parse(blob)
	if err != nil {
		return e.fail(fmt.Errorf("engine: load model: %w", err))
	}
	e.graph = g
	e.state = ModelLoaded
	return nil
}

// AllocateTensors carves the input tensor and every layer output from a.
// Running out of arena moves the engine to Failed with arena.ErrOverflow.
// On success the input and output handles are bound and the engine is Ready.
func (e *Engine) AllocateTensors(a *arena.Arena) error {
	if e.state != ModelLoaded {
		return fmt.Errorf("%w: allocate tensors in %s", ErrWrongState, e.state)
	}
	in, err := carve(a, e.graph.Input)
	if err != nil {
		return e.fail(fmt.Errorf("engine: allocate input: %w", err))
	}
	outs := make([][]int8, len(e.graph.Layers))
	for i, l := range e.graph.Layers {
		buf, err := carve(a, l.Output)
		if err != nil {
			return e.fail(fmt.Errorf("engine: allocate layer %d (%s): %w", i, l.Kind, err))
		}
		outs[i] = buf
	}
	e.arena = a
	e.input = in
	e.outputs = outs
	e.state = TensorsAllocated

	// Handles are bound above; nothing else is needed to serve Invoke.
	e.state = Ready
	return nil
}

func carve(a *arena.Arena, d tensor.Descriptor) ([]int8, error) {
	region, err := a.TryAllocate(d.Bytes(), model.TensorAlignment)
	if err != nil {
		return nil, err
	}
	if len(region) == 0 {
		return []int8{}, nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&region[0])), len(region)), nil
}

// Invoke copies input into the input tensor and runs one forward pass. It
// is only valid when Ready; failures leave the engine Ready.
func (e *Engine) Invoke(input []int8) error {
	if e.state != Ready {
		return fmt.Errorf("%w: state %s", ErrNotReady, e.state)
	}
	if len(input) != len(e.input) {
		return fmt.Errorf("%w: input has %d elements, tensor %d", ErrInvokeFailure, len(input), len(e.input))
	}
	copy(e.input, input)

	src, srcDesc := e.input, e.graph.Input
	for i := range e.graph.Layers {
		l := &e.graph.Layers[i]
		if err := run(l, srcDesc, src, e.outputs[i]); err != nil {
			return fmt.Errorf("%w: layer %d (%s): %w", ErrInvokeFailure, i, l.Kind, err)
		}
		src, srcDesc = e.outputs[i], l.Output
	}
	return nil
}

// InputDescriptor describes the tensor Invoke fills.
func (e *Engine) InputDescriptor() tensor.Descriptor {
	if e.graph == nil {
		return tensor.Descriptor{}
	}
	return e.graph.Input
}

// OutputDescriptor describes the tensor Output returns.
func (e *Engine) OutputDescriptor() tensor.Descriptor {
	if e.graph == nil {
		return tensor.Descriptor{}
	}
	return e.graph.Output()
}

// Output returns the engine-owned output tensor. Its contents are replaced
// by the next Invoke.
func (e *Engine) Output() []int8 {
	if len(e.outputs) == 0 {
		return nil
	}
	return e.outputs[len(e.outputs)-1]
}

// ArenaUsed reports the bytes the allocated tensors occupy.
func (e *Engine) ArenaUsed() int {
	if e.arena == nil {
		return 0
	}
	return e.arena.Used()
}

// Graph returns the loaded graph, nil before LoadModel.
func (e *Engine) Graph() *model.Graph { return e.graph }

// Setup runs LoadModel and AllocateTensors against a fresh arena of the given
// capacity, the usual startup sequence.
func Setup(blob []byte, arenaCapacity int) (*Engine, error) {
	e := New()
	if err := e.LoadModel(blob); err != nil {
		return e, err
	}
	if err := e.AllocateTensors(arena.New(arenaCapacity)); err != nil {
		return e, err
	}
	return e, nil
}
