package model

import (
	"github.com/Brownie44l1/edge-classifier/internal/quant"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

// Reference model geometry.
const (
	ReferenceInputSize = 96
	referencePool      = 8
	referenceCells     = ReferenceInputSize / referencePool
	referenceClasses   = 2
)

// ReferenceSample maps pixel values 0..255 onto -128..127.
var ReferenceSample = quant.Params{Scale: 1, ZeroPoint: 128}

// Reference builds the graph compiled into the firmware: a 96×96 grayscale
// input pooled to 12×12 cells, a fully connected layer scoring brightness
// with the centre of the frame weighted double, and a softmax.
func Reference() *Graph {
	return ReferenceFor(tensor.Gray)
}

// ReferenceFor builds the reference graph for an input channel order. The RGB
// variant weights every channel equally, so a full-white frame scores the
// same in both.
func ReferenceFor(ch tensor.ChannelOrder) *Graph {
	depth := ch.Count()
	in := tensor.Image("input", ReferenceInputSize, ReferenceInputSize, ch, ReferenceSample)

	pooled := in
	pooled.Name = "pooled"
	pooled.Sample = quant.Params{}
	pooled.Shape = []int{1, referenceCells, referenceCells, depth}

	inputs := referenceCells * referenceCells * depth
	weights := make([]int8, referenceClasses*inputs)
	var sum int32
	for y := 0; y < referenceCells; y++ {
		for x := 0; x < referenceCells; x++ {
			w := int8(1)
			if x >= 3 && x < 9 && y >= 3 && y < 9 {
				w = 2
			}
			for c := 0; c < depth; c++ {
				i := (y*referenceCells+x)*depth + c
				weights[i] = w
				weights[inputs+i] = -w
				sum += int32(w)
			}
		}
	}

	// Full-white input accumulates sum*255; scale that onto logits in [-4, 4].
	maxAcc := float32(sum) * 255
	weightScale := 8 / maxAcc
	half := int32(maxAcc / 2)

	logits := tensor.Vector("logits", referenceClasses, quant.Params{Scale: 1.0 / 16, ZeroPoint: 0}, tensor.Logits)
	probs := tensor.Vector("probabilities", referenceClasses, quant.Params{Scale: 1.0 / 256, ZeroPoint: -128}, tensor.Probabilities)

	name := "cartridge-reference"
	if ch != tensor.Gray {
		name += "-" + ch.String()
	}
	return &Graph{
		Name:     name,
		Revision: "1",
		Input:    in,
		Layers: []Layer{
			{Kind: KindAveragePool2D, Output: pooled, Kernel: referencePool, Stride: referencePool},
			{Kind: KindFullyConnected, Output: logits, Weights: weights, Bias: []int32{-half, half}, WeightScale: weightScale},
			{Kind: KindSoftmax, Output: probs},
		},
	}
}

// ReferenceBlob returns Reference encoded with the current schema version.
func ReferenceBlob() []byte {
	return ReferenceBlobFor(tensor.Gray)
}

// ReferenceBlobFor returns ReferenceFor(ch) encoded with the current schema
// version.
func ReferenceBlobFor(ch tensor.ChannelOrder) []byte {
	blob, err := Encode(ReferenceFor(ch))
	if err != nil {
		panic("model: reference graph does not encode: " + err.Error())
	}
	return blob
}
