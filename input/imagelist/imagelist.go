// Package imagelist reads a list of image files as a frame sequence.
package imagelist

import (
	"errors"
	"fmt"
	"log"

	"github.com/disintegration/imaging"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/input"
)

// Opts are options for an image list.
type Opts struct {
	// AutoOrientation applies the EXIF orientation of JPEG files.
	AutoOrientation bool

	Verbose bool
}

// List decodes one file per image. The codec is chosen from the file
// extension by imaging.
type List struct {
	paths []string
	opts  Opts
}

// Ensure that List implements interface Sequence.
var _ input.Sequence = (*List)(nil)

// New returns a sequence of the images in paths. Files are not opened until
// requested.
func New(paths []string, opts *Opts) (*List, error) {
	if len(paths) == 0 {
		return nil, errors.New("image list: no files")
	}
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	return &List{
		paths: append([]string(nil), paths...),
		opts:  xopts,
	}, nil
}

// NumImages returns the number of paths.
func (l *List) NumImages() int {
	return len(l.paths)
}

// Path returns the file name of image index.
func (l *List) Path(index int) string {
	return l.paths[index]
}

// Image opens and decodes the file at index. Decoder failures are returned
// unchanged inside a *vidoxide.IOError.
func (l *List) Image(index int) (*vidoxide.Frame, error) {
	if index < 0 || index >= len(l.paths) {
		return nil, &vidoxide.IOError{Index: index, Err: fmt.Errorf("%w: %d not in [0, %d)", vidoxide.ErrIndexOutOfRange, index, len(l.paths))}
	}
	path := l.paths[index]
	img, err := imaging.Open(path, imaging.AutoOrientation(l.opts.AutoOrientation))
	if err != nil {
		return nil, &vidoxide.IOError{Index: index, Err: err}
	}
	f, err := vidoxide.FrameFromImage(img)
	if err != nil {
		return nil, &vidoxide.IOError{Index: index, Err: fmt.Errorf("converting %s: %w", path, err)}
	}
	if l.opts.Verbose {
		log.Printf("imagelist: %s: %dx%d %v", path, f.Width, f.Height, f.Format)
	}
	return f, nil
}

// Close does nothing; files are closed after each Image call.
func (l *List) Close() error {
	return nil
}
