// Package quant holds the affine int8 quantization used by every pipeline
// stage. All numeric agreement between the resampler, the engine and the
// interpreter reduces to the functions in this file.
//
// Two readings of Params exist. Quantize takes a zero point in sample units:
// the 8-bit pixel value that lands on 0. Dequantize and Requantize take it in
// quantized units, real = scale*(q-zeroPoint), as tensor descriptors store it.
// TensorParams converts the first into the second.
package quant

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinInt8 = -128
	MaxInt8 = 127
)

// ErrBadScale is returned by Params.Validate for a non-positive or
// non-finite scale.
var ErrBadScale = errors.New("quant: scale must be positive and finite")

// Params is a per-tensor affine quantization pair.
type Params struct {
	Scale     float32 `cbor:"scale" json:"scale"`
	ZeroPoint int32   `cbor:"zero_point" json:"zero_point"`
}

// Validate reports whether p can be used to quantize.
func (p Params) Validate() error {
	s := float64(p.Scale)
	if !(s > 0) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: got %v", ErrBadScale, p.Scale)
	}
	return nil
}

// Quantize maps a sample onto int8 as round((value-zeroPoint)/scale),
// clamped to [-128, 127]. Halves round away from zero. NaN maps to 0.
func Quantize(value float32, scale float32, zeroPoint int32) int8 {
	v := (float64(value) - float64(zeroPoint)) / float64(scale)
	return Clamp(math.Round(v))
}

// Clamp converts an already rounded value to int8 with saturation.
func Clamp(v float64) int8 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= MinInt8:
		return MinInt8
	case v >= MaxInt8:
		return MaxInt8
	}
	return int8(v)
}

// Quantize applies the package function with p's parameters.
func (p Params) Quantize(value float32) int8 {
	return Quantize(value, p.Scale, p.ZeroPoint)
}

// Dequantize returns the real value represented by q: scale*(q-zeroPoint).
func Dequantize(q int8, scale float32, zeroPoint int32) float32 {
	return scale * float32(int32(q)-zeroPoint)
}

// Dequantize applies the package function with p's parameters.
func (p Params) Dequantize(q int8) float32 {
	return Dequantize(q, p.Scale, p.ZeroPoint)
}

// TensorParams returns the tensor-side parameters equivalent to p read as a
// sample quantizer: scale*q + zp == scale*(q - round(-zp/scale)).
func (p Params) TensorParams() Params {
	return Params{
		Scale:     p.Scale,
		ZeroPoint: int32(math.Round(-float64(p.ZeroPoint) / float64(p.Scale))),
	}
}

// Table is the quantized value of every 8-bit sample.
type Table [256]int8

// NewTable precomputes Quantize for all sample values so hot loops index
// instead of dividing. Entries are identical to calling Quantize directly.
func NewTable(p Params) Table {
	var t Table
	for v := range t {
		t[v] = Quantize(float32(v), p.Scale, p.ZeroPoint)
	}
	return t
}

// Requantize scales an int32 accumulator by multiplier and offsets it by
// zeroPoint, the output stage of integer kernels.
func Requantize(acc int32, multiplier float64, zeroPoint int32) int8 {
	return Clamp(math.Round(float64(acc)*multiplier) + float64(zeroPoint))
}
