// Package fileseq writes recorded frames as a numbered sequence of TIFF or
// BMP files.
package fileseq

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/output"
)

// Opts are options for a sequence writer.
type Opts struct {
	// Prefix starts every file name. Default "frame".
	Prefix string

	// Compress enables deflate compression for TIFF files.
	Compress bool

	Verbose bool
}

// Writer stores each frame as <dir>/<prefix>_<nnnnn>.<ext>. TIFF keeps 16-bit
// samples; BMP reduces them to 8 bits.
type Writer struct {
	dir    string
	format output.Format
	opts   Opts
	index  int
	first  *vidoxide.Frame
	closed bool
}

// Ensure that Writer implements interface output.Writer.
var _ output.Writer = (*Writer)(nil)

// New creates dir if needed and returns a writer for format, which must be
// output.FormatTIFF or output.FormatBMP.
func New(dir string, format output.Format, opts *Opts) (*Writer, error) {
	if format != output.FormatTIFF && format != output.FormatBMP {
		return nil, fmt.Errorf("image sequence cannot be written as %v", format)
	}
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Prefix == "" {
		xopts.Prefix = "frame"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{dir: dir, format: format, opts: xopts}, nil
}

// Path returns the file name used for frame index.
func (w *Writer) Path(index int) string {
	ext := ".tif"
	if w.format == output.FormatBMP {
		ext = ".bmp"
	}
	return filepath.Join(w.dir, fmt.Sprintf("%s_%05d%s", w.opts.Prefix, index, ext))
}

// Write stores the region of frame as the next file.
func (w *Writer) Write(frame *vidoxide.Frame, region image.Rectangle) (rerr error) {
	if w.closed {
		return fmt.Errorf("writing to finalized image sequence in %s", w.dir)
	}
	f, err := output.Region(frame, region)
	if err != nil {
		return err
	}
	if w.first == nil {
		w.first = &vidoxide.Frame{Width: f.Width, Height: f.Height, Format: f.Format}
	} else if f.Width != w.first.Width || f.Height != w.first.Height || f.Format != w.first.Format {
		return fmt.Errorf("frame %dx%d %v does not match recording %dx%d %v",
			f.Width, f.Height, f.Format, w.first.Width, w.first.Height, w.first.Format)
	}

	img, err := f.ToImage()
	if err != nil {
		return fmt.Errorf("converting frame: %w", err)
	}

	path := w.Path(w.index)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("closing image file: %w", err)
		}
	}()

	buf := bufio.NewWriter(file)
	if err := w.encode(buf, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	w.index++
	return nil
}

func (w *Writer) encode(dst io.Writer, img image.Image) error {
	if w.format == output.FormatBMP {
		return bmp.Encode(dst, img)
	}
	opts := &tiff.Options{Compression: tiff.Uncompressed}
	if w.opts.Compress {
		opts.Compression = tiff.Deflate
	}
	return tiff.Encode(dst, img, opts)
}

// Frames returns the number of files written.
func (w *Writer) Frames() int {
	return w.index
}

// Finalize ends the sequence. Files are complete after each Write, so nothing
// is flushed here.
func (w *Writer) Finalize() error {
	if !w.closed && w.opts.Verbose {
		log.Printf("fileseq: %s: wrote %d %v files", w.dir, w.index, w.format)
	}
	w.closed = true
	return nil
}
