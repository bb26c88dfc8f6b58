// Package ser writes recorded frames into a SER video file.
package ser

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"log"
	"os"
	"time"

	vidoxide "github.com/vidoxide/vidoxide-go"
	inser "github.com/vidoxide/vidoxide-go/input/ser"
	"github.com/vidoxide/vidoxide-go/output"
)

// Signature is written at the start of every file, zero-padded.
const Signature = "Vidoxide"

// Opts are options for a SER writer. The text fields are truncated to 40 bytes.
type Opts struct {
	Observer   string
	Instrument string
	Telescope  string
	Verbose    bool
}

// Writer writes frames into a SER file. The header is written on the first
// frame, and the frame count is filled in by Finalize.
type Writer struct {
	opts   Opts
	path   string
	file   *os.File
	buf    *bufio.Writer
	header *inser.Header
	frames uint32
	now    func() time.Time
}

// Ensure that Writer implements interface output.Writer.
var _ output.Writer = (*Writer)(nil)

// Create creates or truncates the file at path.
func Create(path string, opts *Opts) (*Writer, error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating SER file: %w", err)
	}
	return &Writer{
		opts: xopts,
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, 1<<20),
		now:  time.Now,
	}, nil
}

// ColorID returns the header color ID used for frames of format f.
func ColorID(f vidoxide.PixelFormat) (inser.ColorID, error) {
	if f.IsMono() {
		return inser.ColorMono, nil
	}
	if p, ok := f.CFAPattern(); ok {
		return inser.ColorBayerRGGB + inser.ColorID(p), nil
	}
	if f == vidoxide.PixelFormatRGB8 || f == vidoxide.PixelFormatRGB16 {
		return inser.ColorRGB, nil
	}
	return 0, fmt.Errorf("no SER color ID for %v: %w", f, vidoxide.ErrInvariant)
}

func (w *Writer) newHeader(width, height int, format vidoxide.PixelFormat) (*inser.Header, error) {
	color, err := ColorID(format)
	if err != nil {
		return nil, err
	}
	h := &inser.Header{
		ColorID:        color,
		Endianness:     inser.EndiannessLittle,
		Width:          uint32(width),
		Height:         uint32(height),
		BitsPerChannel: uint32(8 * format.BytesPerChannel()),
	}
	if vidoxide.NativeBigEndian() {
		h.Endianness = inser.EndiannessBig
	}
	inser.SetText(h.Signature[:], Signature)
	inser.SetText(h.Observer[:], w.opts.Observer)
	inser.SetText(h.Instrument[:], w.opts.Instrument)
	inser.SetText(h.Telescope[:], w.opts.Telescope)
	now := w.now()
	h.DateTime = inser.Ticks(now)
	h.DateTimeUTC = inser.Ticks(now.UTC())
	return h, nil
}

// Write appends the region of frame. The first frame fixes the size and pixel
// format; later frames that differ are rejected.
func (w *Writer) Write(frame *vidoxide.Frame, region image.Rectangle) error {
	if w.file == nil {
		return fmt.Errorf("writing to finalized SER file %s", w.path)
	}
	f, err := output.Region(frame, region)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}

	if w.header == nil {
		h, err := w.newHeader(f.Width, f.Height, f.Format)
		if err != nil {
			return err
		}
		if err := h.Write(w.buf); err != nil {
			return fmt.Errorf("writing SER header: %w", err)
		}
		w.header = h
		if w.opts.Verbose {
			log.Printf("ser: %s: recording %dx%d %v", w.path, f.Width, f.Height, f.Format)
		}
	} else {
		h := w.header
		color, _ := ColorID(f.Format)
		if int(h.Width) != f.Width || int(h.Height) != f.Height || h.ColorID != color ||
			int(h.BitsPerChannel) != 8*f.Format.BytesPerChannel() {
			return fmt.Errorf("frame %dx%d %v does not match recording %dx%d %v/%d bits",
				f.Width, f.Height, f.Format, h.Width, h.Height, h.ColorID, h.BitsPerChannel)
		}
	}

	for y := 0; y < f.Height; y++ {
		if _, err := w.buf.Write(f.Line(y)); err != nil {
			return fmt.Errorf("writing frame %d: %w", w.frames, err)
		}
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int {
	return int(w.frames)
}

// Finalize flushes buffered data, stores the frame count in the header and
// closes the file. Without any frames, an empty Mono8 header is written.
func (w *Writer) Finalize() error {
	if w.file == nil {
		return nil
	}
	defer func() {
		w.file = nil
	}()

	if w.header == nil {
		h, err := w.newHeader(0, 0, vidoxide.PixelFormatMono8)
		if err != nil {
			w.file.Close()
			return err
		}
		if err := h.Write(w.buf); err != nil {
			w.file.Close()
			return fmt.Errorf("writing SER header: %w", err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flushing SER file: %w", err)
	}

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], w.frames)
	if _, err := w.file.WriteAt(count[:], inser.FrameCountOffset); err != nil {
		w.file.Close()
		return fmt.Errorf("writing SER frame count: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing SER file: %w", err)
	}
	if w.opts.Verbose {
		log.Printf("ser: %s: finalized with %d frames", w.path, w.frames)
	}
	return nil
}
