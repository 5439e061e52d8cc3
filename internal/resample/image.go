package resample

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
)

// ResampleImage fills dst from an already decoded image, used for frames the
// camera delivered compressed. Source pixels are picked with the same floored
// coordinate maps as Resample, relative to img.Bounds().Min, and quantized
// through the same table.
func (r *Resampler) ResampleImage(img image.Image, dst []int8) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: empty image", ErrBounds)
	}
	if len(dst) != r.Len() {
		return fmt.Errorf("%w: destination %d, want %d", ErrBounds, len(dst), r.Len())
	}
	r.mapSource(b.Dx(), b.Dy())

	i := 0
	for y := 0; y < r.height; y++ {
		sy := b.Min.Y + r.ymap[y]
		for x := 0; x < r.width; x++ {
			cr, cg, cb, _ := img.At(b.Min.X+r.xmap[x], sy).RGBA()
			r8, g8, b8 := uint8(cr>>8), uint8(cg>>8), uint8(cb>>8)
			if r.channels == 1 {
				dst[i] = r.table[pixel.Luma(r8, g8, b8)]
				i++
				continue
			}
			dst[i] = r.table[r8]
			dst[i+1] = r.table[g8]
			dst[i+2] = r.table[b8]
			i += 3
		}
	}
	return nil
}
