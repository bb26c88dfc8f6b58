// Package ser reads SER video files: a fixed header followed by raw frames.
package ser

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/input"
)

// Opts are options for opening a SER video.
type Opts struct {
	Verbose bool
}

// Video is a SER file opened for random access to its frames.
type Video struct {
	file          *os.File
	header        Header
	format        vidoxide.PixelFormat
	littleEndian  bool
	bgr           bool
	frameSize     int64
	numImages     int
	width, height int
}

// Ensure that Video implements interface Sequence.
var _ input.Sequence = (*Video)(nil)

// Open opens a SER file and validates its header. A malformed header or an
// unsupported pixel format fails with a *vidoxide.FormatError.
func Open(path string, opts *Opts) (video *Video, rerr error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening SER video: %w", err)
	}
	defer func() {
		if rerr != nil {
			f.Close()
		}
	}()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}
	format, err := h.PixelFormat()
	if err != nil {
		return nil, err
	}
	if err := checkSize(h.Width, h.Height, format.BytesPerPixel()); err != nil {
		return nil, err
	}

	v := &Video{
		file:         f,
		header:       h,
		format:       format,
		littleEndian: h.LittleEndianSamples(),
		bgr:          h.ColorID == ColorBGR,
		numImages:    int(h.FrameCount),
		width:        int(h.Width),
		height:       int(h.Height),
	}
	v.frameSize = int64(v.width) * int64(v.height) * int64(format.BytesPerPixel())

	if xopts.Verbose {
		log.Printf("ser: %s: %dx%d %v (color %v, %d bits, little endian samples %v), %d frames",
			path, v.width, v.height, format, h.ColorID, h.BitsPerChannel, v.littleEndian, v.numImages)
		if fi, err := f.Stat(); err == nil {
			if need := HeaderSize + int64(v.numImages)*v.frameSize; fi.Size() < need {
				log.Printf("ser: %s: file has %d bytes, header declares %d; trailing frames will fail to read", path, fi.Size(), need)
			}
		}
	}
	return v, nil
}

// checkSize rejects empty frames and frames whose size in bytes does not fit
// in an int.
func checkSize(width, height uint32, bpp int) error {
	if width == 0 || height == 0 {
		return &vidoxide.FormatError{Msg: fmt.Sprintf("invalid frame size %dx%d", width, height)}
	}
	row := uint64(width) * uint64(bpp)
	if row > math.MaxInt || uint64(height) > math.MaxInt/row {
		return &vidoxide.FormatError{Msg: fmt.Sprintf("frame size %dx%d too large", width, height)}
	}
	return nil
}

// Header returns the decoded file header.
func (v *Video) Header() Header {
	return v.header
}

// PixelFormat returns the format of decoded frames.
func (v *Video) PixelFormat() vidoxide.PixelFormat {
	return v.format
}

// NumImages returns the frame count from the header.
func (v *Video) NumImages() int {
	return v.numImages
}

// Image decodes frame index into a new frame.
func (v *Video) Image(index int) (*vidoxide.Frame, error) {
	f, err := vidoxide.NewFrame(v.width, v.height, v.format)
	if err != nil {
		return nil, &vidoxide.IOError{Index: index, Err: err}
	}
	if err := v.ReadInto(index, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadInto decodes frame index into dst, which must have the video's size and
// pixel format. Rows are written using dst's own stride. BGR data is
// reordered to RGB, and 16-bit samples are converted to native byte order.
func (v *Video) ReadInto(index int, dst *vidoxide.Frame) error {
	if index < 0 || index >= v.numImages {
		return &vidoxide.IOError{Index: index, Err: fmt.Errorf("%w: %d not in [0, %d)", vidoxide.ErrIndexOutOfRange, index, v.numImages)}
	}
	if dst.Width != v.width || dst.Height != v.height || dst.Format != v.format {
		return &vidoxide.IOError{Index: index, Err: fmt.Errorf("destination is %dx%d %v, expected %dx%d %v",
			dst.Width, dst.Height, dst.Format, v.width, v.height, v.format)}
	}
	if err := dst.Validate(); err != nil {
		return &vidoxide.IOError{Index: index, Err: fmt.Errorf("destination: %w", err)}
	}

	offset := HeaderSize + int64(index)*v.frameSize
	rowBytes := int64(dst.RowBytes())
	for y := 0; y < v.height; y++ {
		line := dst.Line(y)
		if _, err := v.file.ReadAt(line, offset+int64(y)*rowBytes); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return &vidoxide.IOError{Index: index, Err: fmt.Errorf("reading row %d: %w", y, err)}
		}
		if v.bgr {
			switch v.format.BytesPerChannel() {
			case 1:
				vidoxide.ReverseRGB8(line)
			case 2:
				vidoxide.ReverseRGB16(line)
			default:
				return &vidoxide.IOError{Index: index, Err: fmt.Errorf("reordering BGR %v: %w", v.format, vidoxide.ErrInvariant)}
			}
		}
	}

	if v.format.BytesPerChannel() > 1 && v.littleEndian == vidoxide.NativeBigEndian() {
		dst.SwapWords16()
	}
	return nil
}

// Close closes the file.
func (v *Video) Close() error {
	return v.file.Close()
}
