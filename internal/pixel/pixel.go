// Package pixel decodes native camera sensor pixel encodings into 8-bit samples.
package pixel

import "fmt"

// Format tags the encoding of a captured frame buffer.
type Format int

const (
	FormatUnknown Format = iota
	FormatRGB565
	FormatJPEG
	FormatGrayscale
)

func (f Format) String() string {
	switch f {
	case FormatRGB565:
		return "rgb565"
	case FormatJPEG:
		return "jpeg"
	case FormatGrayscale:
		return "grayscale"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a configuration name to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "rgb565", "RGB565":
		return FormatRGB565, nil
	case "jpeg", "jpg", "JPEG":
		return FormatJPEG, nil
	case "grayscale", "gray":
		return FormatGrayscale, nil
	}
	return FormatUnknown, fmt.Errorf("unknown pixel format %q", s)
}

// BytesPerPixel returns the fixed sample width of uncompressed formats and 0
// for compressed ones.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGB565:
		return 2
	case FormatGrayscale:
		return 1
	default:
		return 0
	}
}

const (
	max5 = 0x1f
	max6 = 0x3f
)

// DecodeRGB565 expands a packed 5-6-5 pixel into three 8-bit channels using
// value*255/max with integer (floor) division.
func DecodeRGB565(p uint16) (r, g, b uint8) {
	r5 := uint32(p>>11) & max5
	g6 := uint32(p>>5) & max6
	b5 := uint32(p) & max5
	return uint8(r5 * 255 / max5), uint8(g6 * 255 / max6), uint8(b5 * 255 / max5)
}

// Luma weights the channels by 0.299, 0.587 and 0.114. The weights are held as
// thousandths so that the result floors exactly and white stays at 255.
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
}

// LumaRGB565 decodes p and returns its luma.
func LumaRGB565(p uint16) uint8 {
	return Luma(DecodeRGB565(p))
}

// EncodeRGB565 packs 8-bit channels by truncating the low bits. It is the
// inverse used by synthetic sources and camera adapters.
func EncodeRGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// At reads pixel i from an RGB565 buffer stored high byte first, which is how
// the camera driver lays out the frame.
func At(buf []byte, i int) uint16 {
	return uint16(buf[2*i])<<8 | uint16(buf[2*i+1])
}

// Put writes pixel i into an RGB565 buffer, high byte first.
func Put(buf []byte, i int, p uint16) {
	buf[2*i] = byte(p >> 8)
	buf[2*i+1] = byte(p)
}
