// Package resample turns captured frames into model input tensors. Resizing,
// colour conversion and quantization happen in a single pass over the
// destination buffer.
package resample

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/quant"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

var (
	ErrDescriptor = errors.New("resample: unsupported destination tensor")
	ErrBounds     = errors.New("resample: buffer size mismatch")
)

// Resampler fills int8 NHWC tensors of one fixed shape. It is not safe for
// concurrent use; the capture loop owns it.
type Resampler struct {
	width, height int
	channels      int
	table         quant.Table

	// Source coordinate maps, rebuilt only when the source size changes.
	srcW, srcH int
	xmap, ymap []int
}

// New builds a resampler for the model input described by desc.
func New(desc tensor.Descriptor) (*Resampler, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescriptor, err)
	}
	if desc.DType != tensor.Int8 || desc.Layout != tensor.NHWC {
		return nil, fmt.Errorf("%w: need int8 NHWC, got %s layout %d", ErrDescriptor, desc.DType, desc.Layout)
	}
	if err := desc.Sample.Validate(); err != nil {
		return nil, fmt.Errorf("%w: input sample quantization: %w", ErrDescriptor, err)
	}
	ch := desc.Channels.Count()
	if ch == 0 {
		return nil, fmt.Errorf("%w: channel order %s", ErrDescriptor, desc.Channels)
	}
	return &Resampler{
		width:    desc.Width(),
		height:   desc.Height(),
		channels: ch,
		table:    quant.NewTable(desc.Sample),
		xmap:     make([]int, desc.Width()),
		ymap:     make([]int, desc.Height()),
	}, nil
}

// Len is the exact destination length: width*height*channels.
func (r *Resampler) Len() int {
	return r.width * r.height * r.channels
}

// Channels returns 1 for grayscale output and 3 for interleaved RGB.
func (r *Resampler) Channels() int { return r.channels }

// Resample samples an RGB565 frame of srcW×srcH into dst using nearest
// neighbour: source (x*srcW/dstW, y*srcH/dstH), floored. Only sizes are
// checked; the caller has already validated the pixel format.
func (r *Resampler) Resample(srcW, srcH int, src []byte, dst []int8) error {
	if srcW <= 0 || srcH <= 0 {
		return fmt.Errorf("%w: source %dx%d", ErrBounds, srcW, srcH)
	}
	// Divide rather than multiply so huge dimensions cannot wrap.
	if srcW > len(src)/2/srcH {
		return fmt.Errorf("%w: source holds %d bytes, too few for %dx%d rgb565", ErrBounds, len(src), srcW, srcH)
	}
	if len(dst) != r.Len() {
		return fmt.Errorf("%w: destination %d, want %d", ErrBounds, len(dst), r.Len())
	}
	r.mapSource(srcW, srcH)

	i := 0
	for y := 0; y < r.height; y++ {
		row := r.ymap[y] * srcW
		for x := 0; x < r.width; x++ {
			p := pixel.At(src, row+r.xmap[x])
			if r.channels == 1 {
				dst[i] = r.table[pixel.LumaRGB565(p)]
				i++
				continue
			}
			cr, cg, cb := pixel.DecodeRGB565(p)
			dst[i] = r.table[cr]
			dst[i+1] = r.table[cg]
			dst[i+2] = r.table[cb]
			i += 3
		}
	}
	return nil
}

func (r *Resampler) mapSource(srcW, srcH int) {
	if srcW == r.srcW && srcH == r.srcH {
		return
	}
	for x := range r.xmap {
		r.xmap[x] = x * srcW / r.width
	}
	for y := range r.ymap {
		r.ymap[y] = y * srcH / r.height
	}
	r.srcW, r.srcH = srcW, srcH
}
