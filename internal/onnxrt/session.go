// Package onnxrt runs the classifier on ONNX Runtime instead of the built-in
// engine. It exposes the same contract: preallocated int8 input and output
// tensors, one blocking Invoke per frame.
package onnxrt

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

var ErrInvokeFailure = errors.New("onnxrt: invoke failed")

// Options configures a Session.
type Options struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// library's default lookup.
	LibraryPath string
	ModelPath   string
	InputName   string
	OutputName  string
	Input       tensor.Descriptor
	Output      tensor.Descriptor
}

// Session owns the runtime session and its bound tensors.
type Session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[int8]
	outputTensor *ort.Tensor[int8]
	input        tensor.Descriptor
	output       tensor.Descriptor
}

func shapeOf(d tensor.Descriptor) ort.Shape {
	dims := make([]int64, len(d.Shape))
	for i, s := range d.Shape {
		dims[i] = int64(s)
	}
	return ort.NewShape(dims...)
}

// NewSession initializes the runtime environment and binds int8 tensors for
// opts.Input and opts.Output.
func NewSession(opts Options) (*Session, error) {
	for _, d := range []tensor.Descriptor{opts.Input, opts.Output} {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("onnxrt: %w", err)
		}
		if d.DType != tensor.Int8 {
			return nil, fmt.Errorf("onnxrt: tensor %s is %s, only int8 is supported", d.Name, d.DType)
		}
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	s := &Session{input: opts.Input, output: opts.Output}
	var err error
	s.inputTensor, err = ort.NewEmptyTensor[int8](shapeOf(opts.Input))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	s.outputTensor, err = ort.NewEmptyTensor[int8](shapeOf(opts.Output))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s.session, err = ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return s, nil
}

// Invoke copies input into the bound tensor and runs the session.
func (s *Session) Invoke(input []int8) error {
	data := s.inputTensor.GetData()
	if len(input) != len(data) {
		return fmt.Errorf("%w: input has %d elements, tensor %d", ErrInvokeFailure, len(input), len(data))
	}
	copy(data, input)
	if err := s.session.Run(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvokeFailure, err)
	}
	return nil
}

// Output returns the bound output tensor data.
func (s *Session) Output() []int8 {
	return s.outputTensor.GetData()
}

func (s *Session) InputDescriptor() tensor.Descriptor  { return s.input }
func (s *Session) OutputDescriptor() tensor.Descriptor { return s.output }

// Close releases the tensors, the session and the environment.
func (s *Session) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
