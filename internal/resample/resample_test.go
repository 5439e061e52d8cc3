package resample

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/quant"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

var unitQuant = quant.Params{Scale: 1, ZeroPoint: 128}

func solidFrame(w, h int, p uint16) []byte {
	buf := make([]byte, w*h*2)
	for i := 0; i < w*h; i++ {
		pixel.Put(buf, i, p)
	}
	return buf
}

// gradientFrame encodes each pixel's coordinates so sampling errors show up.
func gradientFrame(w, h int) []byte {
	buf := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixel.Put(buf, y*w+x, pixel.EncodeRGB565(uint8(x*255/w), uint8(y*255/h), uint8((x+y)%256)))
		}
	}
	return buf
}

func newResampler(t *testing.T, h, w int, ch tensor.ChannelOrder) *Resampler {
	t.Helper()
	r, err := New(tensor.Image("input", h, w, ch, unitQuant))
	require.NoError(t, err)
	return r
}

func TestResample_AllWhiteClampsTo127(t *testing.T) {
	for _, ch := range []tensor.ChannelOrder{tensor.Gray, tensor.RGB} {
		r := newResampler(t, 96, 96, ch)
		dst := make([]int8, r.Len())
		require.NoError(t, r.Resample(160, 120, solidFrame(160, 120, 0xFFFF), dst))
		for i, v := range dst {
			if v != 127 {
				t.Fatalf("%s: dst[%d]=%d, want 127", ch, i, v)
			}
		}
	}
}

func TestResample_OutputLengthForAnySourceSize(t *testing.T) {
	sources := [][2]int{{160, 120}, {96, 96}, {32, 24}, {97, 61}, {1, 1}, {640, 480}}
	for _, ch := range []tensor.ChannelOrder{tensor.Gray, tensor.RGB} {
		r := newResampler(t, 96, 96, ch)
		for _, s := range sources {
			dst := make([]int8, r.Len())
			require.NoError(t, r.Resample(s[0], s[1], gradientFrame(s[0], s[1]), dst), "%v", s)
			assert.Len(t, dst, 96*96*ch.Count())
		}
	}
}

func TestResample_NearestNeighbourIndices(t *testing.T) {
	const srcW, srcH = 160, 120
	src := gradientFrame(srcW, srcH)
	r := newResampler(t, 96, 96, tensor.RGB)
	dst := make([]int8, r.Len())
	require.NoError(t, r.Resample(srcW, srcH, src, dst))

	table := quant.NewTable(unitQuant)
	for _, pt := range [][2]int{{0, 0}, {95, 95}, {47, 13}, {1, 80}} {
		x, y := pt[0], pt[1]
		sx, sy := x*srcW/96, y*srcH/96
		cr, cg, cb := pixel.DecodeRGB565(pixel.At(src, sy*srcW+sx))
		i := (y*96 + x) * 3
		assert.Equal(t, []int8{table[cr], table[cg], table[cb]}, dst[i:i+3], "dst (%d,%d)", x, y)
	}
}

func TestResample_Deterministic(t *testing.T) {
	src := gradientFrame(160, 120)
	r := newResampler(t, 96, 96, tensor.Gray)
	a := make([]int8, r.Len())
	b := make([]int8, r.Len())
	require.NoError(t, r.Resample(160, 120, src, a))
	// A different source size in between must not leak into the next call.
	require.NoError(t, r.Resample(32, 24, gradientFrame(32, 24), b))
	require.NoError(t, r.Resample(160, 120, src, b))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("resample not deterministic (-first +second):\n%s", diff)
	}
}

func TestResample_Bounds(t *testing.T) {
	r := newResampler(t, 8, 8, tensor.Gray)
	dst := make([]int8, r.Len())
	assert.ErrorIs(t, r.Resample(0, 10, nil, dst), ErrBounds)
	assert.ErrorIs(t, r.Resample(10, 10, make([]byte, 199), dst), ErrBounds)
	assert.ErrorIs(t, r.Resample(10, 10, make([]byte, 200), dst[:10]), ErrBounds)
	assert.NoError(t, r.Resample(10, 10, make([]byte, 200), dst))
}

func TestResample_HugeDimensionsDoNotWrap(t *testing.T) {
	r := newResampler(t, 8, 8, tensor.RGB)
	dst := make([]int8, r.Len())
	src := make([]byte, 16)
	for _, dims := range [][2]int{
		{math.MaxInt/8 + 1, 4}, // srcW*srcH*2 wraps to 0
		{4, math.MaxInt/8 + 1},
		{math.MaxInt / 2, math.MaxInt / 2},
		{math.MaxInt, 1},
	} {
		assert.NotPanics(t, func() {
			assert.ErrorIs(t, r.Resample(dims[0], dims[1], src, dst), ErrBounds, "%v", dims)
		})
	}
	assert.NoError(t, r.Resample(4, 2, src, dst))
}

func TestNew_RejectsUnsupported(t *testing.T) {
	_, err := New(tensor.Vector("scores", 2, unitQuant, tensor.Raw))
	assert.ErrorIs(t, err, ErrDescriptor)

	d := tensor.Image("input", 4, 4, tensor.Gray, unitQuant)
	d.DType = tensor.Float32
	_, err = New(d)
	assert.ErrorIs(t, err, ErrDescriptor)
}

func TestResampleImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	r := newResampler(t, 16, 16, tensor.Gray)
	dst := make([]int8, r.Len())
	require.NoError(t, r.ResampleImage(img, dst))
	for i, v := range dst {
		require.Equal(t, int8(127), v, "dst[%d]", i)
	}

	assert.ErrorIs(t, r.ResampleImage(image.NewRGBA(image.Rectangle{}), dst), ErrBounds)
	assert.ErrorIs(t, r.ResampleImage(img, dst[:3]), ErrBounds)
}

// rgbaFrame renders an RGB565 frame into an image with the decoded colours.
func rgbaFrame(w, h int, src []byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb := pixel.DecodeRGB565(pixel.At(src, y*w+x))
			img.SetRGBA(x, y, color.RGBA{R: cr, G: cg, B: cb, A: 255})
		}
	}
	return img
}

func TestResampleImage_MatchesRGB565Path(t *testing.T) {
	sources := [][2]int{{160, 120}, {97, 61}, {32, 24}, {640, 480}}
	for _, ch := range []tensor.ChannelOrder{tensor.Gray, tensor.RGB} {
		for _, s := range sources {
			srcW, srcH := s[0], s[1]
			src := gradientFrame(srcW, srcH)
			r := newResampler(t, 96, 96, ch)

			raw := make([]int8, r.Len())
			require.NoError(t, r.Resample(srcW, srcH, src, raw))
			decoded := make([]int8, r.Len())
			require.NoError(t, r.ResampleImage(rgbaFrame(srcW, srcH, src), decoded))

			if diff := cmp.Diff(raw, decoded); diff != "" {
				t.Errorf("%s %dx%d: image path differs (-rgb565 +image):\n%s", ch, srcW, srcH, diff)
			}
		}
	}
}

func TestResampleImage_OffsetBounds(t *testing.T) {
	const srcW, srcH = 160, 120
	src := gradientFrame(srcW, srcH)
	r := newResampler(t, 96, 96, tensor.RGB)
	want := make([]int8, r.Len())
	require.NoError(t, r.Resample(srcW, srcH, src, want))

	// Same pixels placed at a non-zero origin.
	framed := image.NewRGBA(image.Rect(0, 0, srcW+20, srcH+10))
	inner := rgbaFrame(srcW, srcH, src)
	for y := 0; y < srcH; y++ {
		for x := 0; x < srcW; x++ {
			framed.SetRGBA(x+20, y+10, inner.RGBAAt(x, y))
		}
	}
	sub := framed.SubImage(image.Rect(20, 10, srcW+20, srcH+10))

	got := make([]int8, r.Len())
	require.NoError(t, r.ResampleImage(sub, got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("offset image differs (-want +got):\n%s", diff)
	}
}
