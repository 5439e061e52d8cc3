// Package tensor describes the memory layout of quantized tensors
// independently of any model binary.
package tensor

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/edge-classifier/internal/quant"
)

// DType is the element type of a tensor.
type DType uint8

const (
	Int8 DType = iota + 1
	Uint8
	Int32
	Float32
)

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int32, Float32:
		return 4
	}
	return 0
}

func (d DType) String() string {
	switch d {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Layout is the dimension order of an image tensor.
type Layout uint8

const (
	// NHWC is batch, height, width, channels with channels interleaved.
	NHWC Layout = iota + 1
	// Flat is a 1-D vector, used for class scores.
	Flat
)

// ChannelOrder names what the innermost dimension of an image tensor holds.
type ChannelOrder uint8

const (
	ChannelsNone ChannelOrder = iota
	Gray
	RGB
)

// Count returns the number of interleaved channels.
func (c ChannelOrder) Count() int {
	switch c {
	case Gray:
		return 1
	case RGB:
		return 3
	}
	return 0
}

func (c ChannelOrder) String() string {
	switch c {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	}
	return "none"
}

// ParseChannelOrder maps "gray" or "rgb" to a ChannelOrder.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch s {
	case "gray", "grayscale":
		return Gray, nil
	case "rgb":
		return RGB, nil
	}
	return ChannelsNone, fmt.Errorf("unknown channel order %q", s)
}

// Semantics says how the values of an output tensor should be read.
type Semantics uint8

const (
	// Raw scores have no probabilistic meaning.
	Raw Semantics = iota
	// Logits are unnormalised log-probabilities.
	Logits
	// Probabilities already sum to one after dequantization.
	Probabilities
)

var (
	ErrShape  = errors.New("tensor: invalid shape")
	ErrDType  = errors.New("tensor: unsupported dtype")
	ErrLayout = errors.New("tensor: layout does not match shape")
)

// Descriptor is the tagged description of one tensor.
type Descriptor struct {
	Name      string       `cbor:"name" json:"name"`
	DType     DType        `cbor:"dtype" json:"dtype"`
	Shape     []int        `cbor:"shape" json:"shape"`
	Layout    Layout       `cbor:"layout" json:"layout"`
	Channels  ChannelOrder `cbor:"channels" json:"channels"`
	Quant     quant.Params `cbor:"quant" json:"quant"`
	// Sample is the quantizer mapping from 8-bit pixel samples into an image
	// tensor. It is only set on model inputs.
	Sample    quant.Params `cbor:"sample,omitempty" json:"sample,omitempty"`
	Semantics Semantics    `cbor:"semantics" json:"semantics"`
}

// Elements returns the product of the shape.
func (d Descriptor) Elements() int {
	if len(d.Shape) == 0 {
		return 0
	}
	n := 1
	for _, s := range d.Shape {
		n *= s
	}
	return n
}

// Bytes returns the buffer size the tensor needs.
func (d Descriptor) Bytes() int {
	return d.Elements() * d.DType.Size()
}

// Height, Width and Depth read an NHWC shape. They return 0 for other layouts.
func (d Descriptor) Height() int { return d.dim(1) }
func (d Descriptor) Width() int  { return d.dim(2) }
func (d Descriptor) Depth() int  { return d.dim(3) }

func (d Descriptor) dim(i int) int {
	if d.Layout != NHWC || len(d.Shape) != 4 {
		return 0
	}
	return d.Shape[i]
}

// Validate checks that the descriptor is self-consistent.
func (d Descriptor) Validate() error {
	if d.DType.Size() == 0 {
		return fmt.Errorf("%w: %s %v", ErrDType, d.Name, d.DType)
	}
	if len(d.Shape) == 0 {
		return fmt.Errorf("%w: %s has no dimensions", ErrShape, d.Name)
	}
	for _, s := range d.Shape {
		if s <= 0 {
			return fmt.Errorf("%w: %s %v", ErrShape, d.Name, d.Shape)
		}
	}
	switch d.Layout {
	case NHWC:
		if len(d.Shape) != 4 || d.Shape[0] != 1 {
			return fmt.Errorf("%w: %s NHWC needs [1,h,w,c], got %v", ErrLayout, d.Name, d.Shape)
		}
		if n := d.Channels.Count(); n != 0 && n != d.Shape[3] {
			return fmt.Errorf("%w: %s channel order %s with depth %d", ErrLayout, d.Name, d.Channels, d.Shape[3])
		}
	case Flat:
	default:
		return fmt.Errorf("%w: %s layout %d", ErrLayout, d.Name, d.Layout)
	}
	if d.DType == Int8 || d.DType == Uint8 {
		if err := d.Quant.Validate(); err != nil {
			return fmt.Errorf("tensor %s: %w", d.Name, err)
		}
	}
	if d.Sample != (quant.Params{}) {
		if err := d.Sample.Validate(); err != nil {
			return fmt.Errorf("tensor %s sample: %w", d.Name, err)
		}
	}
	return nil
}

// Image returns an int8 NHWC input descriptor for a h×w image whose pixels
// are quantized with sample. The tensor quantization is derived from it.
func Image(name string, h, w int, ch ChannelOrder, sample quant.Params) Descriptor {
	return Descriptor{
		Name:     name,
		DType:    Int8,
		Shape:    []int{1, h, w, ch.Count()},
		Layout:   NHWC,
		Channels: ch,
		Quant:    sample.TensorParams(),
		Sample:   sample,
	}
}

// Vector returns an int8 flat descriptor of n elements.
func Vector(name string, n int, q quant.Params, sem Semantics) Descriptor {
	return Descriptor{
		Name:      name,
		DType:     Int8,
		Shape:     []int{1, n},
		Layout:    Flat,
		Quant:     q,
		Semantics: sem,
	}
}
