// Package vidoxide acquires and analyzes video frames from astronomical
// cameras and recorded files.
//
// The root package holds the Frame type shared by all stages, the pixel
// formats, and small helpers. Sources live in package input, workers in
// packages capture, recording, histogram and controller.
package vidoxide

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Frame is a 2D pixel buffer with a pixel format. Rows are Stride bytes apart.
//
// A Frame is owned by one stage at a time. Sending it on a channel hands it
// over; a stage that keeps using pixels after that must send a Clone.
type Frame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// NewFrame allocates a zeroed frame with tightly packed rows.
func NewFrame(width, height int, format PixelFormat) (*Frame, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("new frame: invalid pixel format %v", format)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("new frame: invalid size %dx%d", width, height)
	}
	bpp := format.BytesPerPixel()
	if width > math.MaxInt/bpp || (height > 0 && width*bpp > math.MaxInt/height) {
		return nil, fmt.Errorf("new frame: size %dx%d too large", width, height)
	}
	stride := width * bpp
	return &Frame{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Pix:    make([]byte, stride*height),
	}, nil
}

// Validate checks that the buffer can hold Height rows Stride bytes apart, each
// wide enough for Width pixels.
func (f *Frame) Validate() error {
	if !f.Format.Valid() {
		return fmt.Errorf("invalid pixel format %v", f.Format)
	}
	if f.Width < 0 || f.Height < 0 {
		return fmt.Errorf("invalid size %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width*f.Format.BytesPerPixel() {
		return fmt.Errorf("stride %d too small for %d %v pixels", f.Stride, f.Width, f.Format)
	}
	// The last row may omit its padding, as in a View.
	if f.Height > 0 && len(f.Pix) < (f.Height-1)*f.Stride+f.RowBytes() {
		return fmt.Errorf("buffer of %d bytes too small for %d rows of %d bytes", len(f.Pix), f.Height, f.Stride)
	}
	return nil
}

// Bounds returns the rectangle (0, 0)-(Width, Height).
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// RowBytes is the number of pixel bytes in a row, excluding stride padding.
func (f *Frame) RowBytes() int {
	return f.Width * f.Format.BytesPerPixel()
}

// Line returns the pixel bytes of row y, without padding.
func (f *Frame) Line(y int) []byte {
	off := y * f.Stride
	return f.Pix[off : off+f.RowBytes()]
}

// PixelBytes is the number of bytes of pixel data without row padding.
func (f *Frame) PixelBytes() int {
	return f.Height * f.RowBytes()
}

// View returns a frame sharing f's pixels, restricted to r. The rectangle must
// lie within the frame.
func (f *Frame) View(r image.Rectangle) (*Frame, error) {
	if r.Empty() || !r.In(f.Bounds()) {
		return nil, fmt.Errorf("view %v outside frame %v: %w", r, f.Bounds(), ErrIndexOutOfRange)
	}
	bpp := f.Format.BytesPerPixel()
	off := r.Min.Y*f.Stride + r.Min.X*bpp
	end := (r.Max.Y-1)*f.Stride + r.Max.X*bpp
	format := f.Format
	if p, ok := format.CFAPattern(); ok {
		var err error
		if format, err = CFAFormat(p.Shift(r.Min.X, r.Min.Y), format.BytesPerChannel()); err != nil {
			return nil, err
		}
	}
	return &Frame{
		Width:  r.Dx(),
		Height: r.Dy(),
		Stride: f.Stride,
		Format: format,
		Pix:    f.Pix[off:end:end],
	}, nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	nf := *f
	nf.Pix = make([]byte, len(f.Pix))
	copy(nf.Pix, f.Pix)
	return &nf
}

// Sample16 returns the i-th 16-bit sample of a row from Line.
func Sample16(line []byte, i int) uint16 {
	return binary.NativeEndian.Uint16(line[2*i:])
}

// SetSample16 sets the i-th 16-bit sample of a row from Line.
func SetSample16(line []byte, i int, v uint16) {
	binary.NativeEndian.PutUint16(line[2*i:], v)
}

// NativeBigEndian reports whether the machine stores multi-byte values
// big-endian first.
func NativeBigEndian() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 0x1122)
	return b[0] == 0x11
}

// SwapWords16 swaps the bytes of every 16-bit sample in the frame. It is a
// no-op for 8-bit formats.
func (f *Frame) SwapWords16() {
	if f.Format.BytesPerChannel() != 2 {
		return
	}
	for y := 0; y < f.Height; y++ {
		line := f.Line(y)
		for i := 0; i+1 < len(line); i += 2 {
			line[i], line[i+1] = line[i+1], line[i]
		}
	}
}

// ReverseRGB8 swaps the first and third channel of every 3-byte pixel.
func ReverseRGB8(line []byte) {
	for i := 0; i+2 < len(line); i += 3 {
		line[i], line[i+2] = line[i+2], line[i]
	}
}

// ReverseRGB16 swaps the first and third channel of every 6-byte pixel,
// moving whole 16-bit units.
func ReverseRGB16(line []byte) {
	for i := 0; i+5 < len(line); i += 6 {
		line[i], line[i+1], line[i+4], line[i+5] = line[i+4], line[i+5], line[i], line[i+1]
	}
}

// ToImage copies the frame into a standard library image: Gray or Gray16 for
// mono and CFA data, NRGBA or NRGBA64 for RGB.
func (f *Frame) ToImage() (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	r := f.Bounds()
	switch f.Format.BytesPerPixel() {
	case 1:
		img := image.NewGray(r)
		for y := 0; y < f.Height; y++ {
			copy(img.Pix[y*img.Stride:], f.Line(y))
		}
		return img, nil
	case 2:
		img := image.NewGray16(r)
		for y := 0; y < f.Height; y++ {
			line := f.Line(y)
			for x := 0; x < f.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: Sample16(line, x)})
			}
		}
		return img, nil
	case 3:
		img := image.NewNRGBA(r)
		for y := 0; y < f.Height; y++ {
			line := f.Line(y)
			row := img.Pix[y*img.Stride:]
			for x := 0; x < f.Width; x++ {
				copy(row[4*x:4*x+3], line[3*x:3*x+3])
				row[4*x+3] = 0xff
			}
		}
		return img, nil
	case 6:
		img := image.NewNRGBA64(r)
		for y := 0; y < f.Height; y++ {
			line := f.Line(y)
			for x := 0; x < f.Width; x++ {
				img.SetNRGBA64(x, y, color.NRGBA64{
					R: Sample16(line, 3*x),
					G: Sample16(line, 3*x+1),
					B: Sample16(line, 3*x+2),
					A: 0xffff,
				})
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("converting %v frame to image: %w", f.Format, ErrInvariant)
}

// FrameFromImage converts a decoded image. Gray and Gray16 images become Mono8
// and Mono16; 16-bit color images become RGB16; everything else RGB8.
func FrameFromImage(img image.Image) (*Frame, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var format PixelFormat
	switch img.(type) {
	case *image.Gray:
		format = PixelFormatMono8
	case *image.Gray16:
		format = PixelFormatMono16
	case *image.NRGBA64, *image.RGBA64:
		format = PixelFormatRGB16
	default:
		format = PixelFormatRGB8
	}

	f, err := NewFrame(w, h, format)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		line := f.Line(y)
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch format {
			case PixelFormatMono8:
				line[x] = color.GrayModel.Convert(c).(color.Gray).Y
			case PixelFormatMono16:
				SetSample16(line, x, color.Gray16Model.Convert(c).(color.Gray16).Y)
			case PixelFormatRGB16:
				p := color.NRGBA64Model.Convert(c).(color.NRGBA64)
				SetSample16(line, 3*x, p.R)
				SetSample16(line, 3*x+1, p.G)
				SetSample16(line, 3*x+2, p.B)
			default:
				p := color.NRGBAModel.Convert(c).(color.NRGBA)
				line[3*x], line[3*x+1], line[3*x+2] = p.R, p.G, p.B
			}
		}
	}
	return f, nil
}

// RGBToCFA samples an RGB8 frame into an 8-bit CFA frame with the given
// phase, keeping for each pixel only the channel its filter passes.
func RGBToCFA(src *Frame, pattern CFAPattern) (*Frame, error) {
	if src.Format != PixelFormatRGB8 {
		return nil, fmt.Errorf("converting %v to CFA: only RGB8 is supported", src.Format)
	}
	format, err := CFAFormat(pattern, 1)
	if err != nil {
		return nil, err
	}
	dst, err := NewFrame(src.Width, src.Height, format)
	if err != nil {
		return nil, err
	}
	const red, green, blue = 0, 1, 2
	dyR, dxR := pattern.RedRowOffset(), pattern.RedColOffset()
	for y := 0; y < src.Height; y++ {
		s := src.Line(y)
		d := dst.Line(y)
		for x := 0; x < src.Width; x++ {
			ch := green
			if y&1 == dyR && x&1 == dxR {
				ch = red
			} else if y&1 != dyR && x&1 != dxR {
				ch = blue
			}
			d[x] = s[3*x+ch]
		}
	}
	return dst, nil
}
