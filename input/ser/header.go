package ser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	vidoxide "github.com/vidoxide/vidoxide-go"
)

// ColorID is the color format stored in a SER header.
type ColorID uint32

// Color IDs. Only Mono, RGB and BGR can currently be decoded; the CFA IDs are
// recognized so they can be reported by name.
const (
	ColorMono      ColorID = 0
	ColorBayerRGGB ColorID = 8
	ColorBayerGRBG ColorID = 9
	ColorBayerGBRG ColorID = 10
	ColorBayerBGGR ColorID = 11
	ColorBayerCYYM ColorID = 16
	ColorBayerYCMY ColorID = 17
	ColorBayerYMCY ColorID = 18
	ColorBayerMYYC ColorID = 19
	ColorRGB       ColorID = 100
	ColorBGR       ColorID = 101
)

var colorNames = map[ColorID]string{
	ColorMono:      "MONO",
	ColorBayerRGGB: "BAYER_RGGB",
	ColorBayerGRBG: "BAYER_GRBG",
	ColorBayerGBRG: "BAYER_GBRG",
	ColorBayerBGGR: "BAYER_BGGR",
	ColorBayerCYYM: "BAYER_CYYM",
	ColorBayerYCMY: "BAYER_YCMY",
	ColorBayerYMCY: "BAYER_YMCY",
	ColorBayerMYYC: "BAYER_MYYC",
	ColorRGB:       "RGB",
	ColorBGR:       "BGR",
}

func (c ColorID) String() string {
	if s, ok := colorNames[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", uint32(c))
}

// Values of Header.Endianness. The flag is named "LittleEndian" in the format
// description, but 0 marks big-endian 16-bit samples.
const (
	EndiannessBig    uint32 = 0
	EndiannessLittle uint32 = 1
)

// Header is the fixed-size file header. All fields are stored little-endian
// without padding.
type Header struct {
	Signature      [14]byte
	CameraSeriesID uint32
	ColorID        ColorID
	Endianness     uint32
	Width          uint32
	Height         uint32
	BitsPerChannel uint32
	FrameCount     uint32
	Observer       [40]byte
	Instrument     [40]byte
	Telescope      [40]byte
	DateTime       int64
	DateTimeUTC    int64
}

// HeaderSize is the encoded size of Header in bytes.
const HeaderSize = 178

// FrameCountOffset is the byte offset of Header.FrameCount in the file.
const FrameCountOffset = 38

// ReadHeader decodes a header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, &vidoxide.FormatError{Msg: "reading SER header", Err: err}
	}
	return h, nil
}

// Write encodes the header to w.
func (h *Header) Write(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// LittleEndianSamples reports whether 16-bit samples are stored little-endian.
func (h *Header) LittleEndianSamples() bool {
	return h.Endianness != EndiannessBig
}

// PixelFormat derives the frame pixel format from the color ID and bit depth.
// CFA color IDs are rejected until frames can be demosaiced.
func (h *Header) PixelFormat() (vidoxide.PixelFormat, error) {
	if h.BitsPerChannel > 16 {
		return vidoxide.PixelFormatInvalid, &vidoxide.FormatError{Msg: fmt.Sprintf("unsupported bit depth %d", h.BitsPerChannel)}
	}
	wide := h.BitsPerChannel > 8
	switch h.ColorID {
	case ColorMono:
		if wide {
			return vidoxide.PixelFormatMono16, nil
		}
		return vidoxide.PixelFormatMono8, nil
	case ColorRGB, ColorBGR:
		if wide {
			return vidoxide.PixelFormatRGB16, nil
		}
		return vidoxide.PixelFormatRGB8, nil
	}
	return vidoxide.PixelFormatInvalid, &vidoxide.FormatError{Msg: fmt.Sprintf("unsupported pixel format %d (%s)", uint32(h.ColorID), h.ColorID)}
}

// SetText copies s into a fixed-size text field, truncating or zero-padding.
func SetText(field []byte, s string) {
	n := copy(field, s)
	for i := n; i < len(field); i++ {
		field[i] = 0
	}
}

// Text returns a fixed-size text field up to the first NUL, trimmed of spaces.
func Text(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(bytes.TrimSpace(field))
}

// ticksToUnix is the number of 100ns ticks from 0001-01-01 to 1970-01-01.
const ticksToUnix = 621355968000000000

// Time converts a header timestamp, counted in 100ns ticks since 0001-01-01,
// to a time. It returns false for an unset (zero) timestamp.
func Time(ticks int64) (time.Time, bool) {
	if ticks <= 0 {
		return time.Time{}, false
	}
	d := ticks - ticksToUnix
	return time.Unix(d/10000000, (d%10000000)*100).UTC(), true
}

// Ticks converts a time to a header timestamp.
func Ticks(t time.Time) int64 {
	return t.Unix()*10000000 + int64(t.Nanosecond()/100) + ticksToUnix
}
