package vidoxide

import (
	"fmt"
)

// PixelFormat describes the layout of one pixel in a Frame.
type PixelFormat int

// Pixel formats. 16-bit samples are stored in the machine's native byte order.
const (
	PixelFormatInvalid PixelFormat = iota
	PixelFormatMono8
	PixelFormatMono16
	PixelFormatRGB8
	PixelFormatRGB16
	PixelFormatCFARGGB8
	PixelFormatCFAGRBG8
	PixelFormatCFAGBRG8
	PixelFormatCFABGGR8
	PixelFormatCFARGGB16
	PixelFormatCFAGRBG16
	PixelFormatCFAGBRG16
	PixelFormatCFABGGR16
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatMono8:     "Mono8",
	PixelFormatMono16:    "Mono16",
	PixelFormatRGB8:      "RGB8",
	PixelFormatRGB16:     "RGB16",
	PixelFormatCFARGGB8:  "CFA-RGGB8",
	PixelFormatCFAGRBG8:  "CFA-GRBG8",
	PixelFormatCFAGBRG8:  "CFA-GBRG8",
	PixelFormatCFABGGR8:  "CFA-BGGR8",
	PixelFormatCFARGGB16: "CFA-RGGB16",
	PixelFormatCFAGRBG16: "CFA-GRBG16",
	PixelFormatCFAGBRG16: "CFA-GBRG16",
	PixelFormatCFABGGR16: "CFA-BGGR16",
}

// String returns a short name, e.g. "RGB8".
func (f PixelFormat) String() string {
	if s, ok := pixelFormatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Valid reports whether f is one of the defined pixel formats.
func (f PixelFormat) Valid() bool {
	_, ok := pixelFormatNames[f]
	return ok
}

// BytesPerChannel is 1 or 2, or 0 for an invalid format.
func (f PixelFormat) BytesPerChannel() int {
	switch f {
	case PixelFormatMono8, PixelFormatRGB8, PixelFormatCFARGGB8, PixelFormatCFAGRBG8, PixelFormatCFAGBRG8, PixelFormatCFABGGR8:
		return 1
	case PixelFormatMono16, PixelFormatRGB16, PixelFormatCFARGGB16, PixelFormatCFAGRBG16, PixelFormatCFAGBRG16, PixelFormatCFABGGR16:
		return 2
	}
	return 0
}

// Channels is 3 for RGB formats and 1 for mono and CFA formats.
func (f PixelFormat) Channels() int {
	switch {
	case !f.Valid():
		return 0
	case f == PixelFormatRGB8 || f == PixelFormatRGB16:
		return 3
	}
	return 1
}

// BytesPerPixel returns Channels() * BytesPerChannel().
func (f PixelFormat) BytesPerPixel() int {
	return f.Channels() * f.BytesPerChannel()
}

// IsMono reports whether f is plain monochrome (not CFA).
func (f PixelFormat) IsMono() bool {
	return f == PixelFormatMono8 || f == PixelFormatMono16
}

// IsCFA reports whether f is raw color-filter-array data.
func (f PixelFormat) IsCFA() bool {
	_, ok := f.CFAPattern()
	return ok
}

// CFAPattern returns the Bayer phase of a CFA format.
func (f PixelFormat) CFAPattern() (CFAPattern, bool) {
	switch f {
	case PixelFormatCFARGGB8, PixelFormatCFARGGB16:
		return CFARGGB, true
	case PixelFormatCFAGRBG8, PixelFormatCFAGRBG16:
		return CFAGRBG, true
	case PixelFormatCFAGBRG8, PixelFormatCFAGBRG16:
		return CFAGBRG, true
	case PixelFormatCFABGGR8, PixelFormatCFABGGR16:
		return CFABGGR, true
	}
	return 0, false
}

// CFAFormat returns the CFA pixel format with the given phase and bytes per
// channel (1 or 2).
func CFAFormat(p CFAPattern, bytesPerChannel int) (PixelFormat, error) {
	formats := map[CFAPattern][2]PixelFormat{
		CFARGGB: {PixelFormatCFARGGB8, PixelFormatCFARGGB16},
		CFAGRBG: {PixelFormatCFAGRBG8, PixelFormatCFAGRBG16},
		CFAGBRG: {PixelFormatCFAGBRG8, PixelFormatCFAGBRG16},
		CFABGGR: {PixelFormatCFABGGR8, PixelFormatCFABGGR16},
	}
	fs, ok := formats[p]
	if !ok || bytesPerChannel < 1 || bytesPerChannel > 2 {
		return PixelFormatInvalid, fmt.Errorf("no CFA format for pattern %v with %d bytes per channel: %w", p, bytesPerChannel, ErrInvariant)
	}
	return fs[bytesPerChannel-1], nil
}

// CFAPattern is the Bayer phase of a sensor: which corner of the repeating
// 2x2 tile holds the red sample.
type CFAPattern int

// Bayer phases, named by the top row followed by the bottom row of the tile.
const (
	CFARGGB CFAPattern = iota
	CFAGRBG
	CFAGBRG
	CFABGGR
)

func (p CFAPattern) String() string {
	switch p {
	case CFARGGB:
		return "RGGB"
	case CFAGRBG:
		return "GRBG"
	case CFAGBRG:
		return "GBRG"
	case CFABGGR:
		return "BGGR"
	}
	return fmt.Sprintf("CFAPattern(%d)", int(p))
}

// RedRowOffset is the row parity (0 or 1) of red samples.
func (p CFAPattern) RedRowOffset() int {
	return (int(p) >> 1) & 1
}

// RedColOffset is the column parity (0 or 1) of red samples.
func (p CFAPattern) RedColOffset() int {
	return int(p) & 1
}

// Shift returns the pattern seen by a view whose top-left pixel is at (dx, dy)
// in the original frame.
func (p CFAPattern) Shift(dx, dy int) CFAPattern {
	row := p.RedRowOffset() ^ (dy & 1)
	col := p.RedColOffset() ^ (dx & 1)
	return CFAPattern(row<<1 | col)
}
