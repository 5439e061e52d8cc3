package engine

import (
	"fmt"
	"math"

	"github.com/Brownie44l1/edge-classifier/internal/model"
	"github.com/Brownie44l1/edge-classifier/internal/quant"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

func run(l *model.Layer, in tensor.Descriptor, src, dst []int8) error {
	if len(src) != in.Elements() || len(dst) != l.Output.Elements() {
		return fmt.Errorf("buffer sizes %d/%d, want %d/%d", len(src), len(dst), in.Elements(), l.Output.Elements())
	}
	switch l.Kind {
	case model.KindAveragePool2D:
		averagePool(l, in, src, dst)
	case model.KindFullyConnected:
		fullyConnected(l, in, src, dst)
	case model.KindSoftmax:
		softmax(in, l.Output, src, dst)
	default:
		return fmt.Errorf("unsupported operator %q", l.Kind)
	}
	return nil
}

// averagePool keeps the input quantization, so the mean of the raw values
// is the output value.
func averagePool(l *model.Layer, in tensor.Descriptor, src, dst []int8) {
	inW, depth := in.Width(), in.Depth()
	outH, outW := l.Output.Height(), l.Output.Width()
	area := float64(l.Kernel * l.Kernel)
	i := 0
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			for c := 0; c < depth; c++ {
				var sum int32
				for ky := 0; ky < l.Kernel; ky++ {
					row := (oy*l.Stride + ky) * inW
					for kx := 0; kx < l.Kernel; kx++ {
						sum += int32(src[(row+ox*l.Stride+kx)*depth+c])
					}
				}
				dst[i] = quant.Clamp(math.Round(float64(sum) / area))
				i++
			}
		}
	}
}

// fullyConnected accumulates w*(x-zp) in int32 and requantizes with
// inScale*weightScale/outScale.
func fullyConnected(l *model.Layer, in tensor.Descriptor, src, dst []int8) {
	n := len(src)
	zp := in.Quant.ZeroPoint
	out := l.Output.Quant
	multiplier := float64(in.Quant.Scale) * float64(l.WeightScale) / float64(out.Scale)
	for o := range dst {
		var acc int32
		if len(l.Bias) > 0 {
			acc = l.Bias[o]
		}
		w := l.Weights[o*n : (o+1)*n]
		for i, x := range src {
			acc += int32(w[i]) * (int32(x) - zp)
		}
		q := quant.Requantize(acc, multiplier, out.ZeroPoint)
		if l.ReLU && int32(q) < out.ZeroPoint {
			q = quant.Clamp(float64(out.ZeroPoint))
		}
		dst[o] = q
	}
}

// softmax dequantizes, normalises against the maximum for stability and
// quantizes the probabilities into the output parameters. exp is evaluated
// twice instead of keeping a scratch buffer.
func softmax(in, out tensor.Descriptor, src, dst []int8) {
	maxQ := src[0]
	for _, x := range src[1:] {
		maxQ = max(maxQ, x)
	}
	maxV := float64(in.Quant.Dequantize(maxQ))
	var sum float64
	for _, x := range src {
		sum += math.Exp(float64(in.Quant.Dequantize(x)) - maxV)
	}
	for i, x := range src {
		p := math.Exp(float64(in.Quant.Dequantize(x))-maxV) / sum
		dst[i] = quant.Clamp(math.Round(p/float64(out.Quant.Scale)) + float64(out.Quant.ZeroPoint))
	}
}
