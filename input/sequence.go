// Package input implements reading frames from recorded video: containers
// holding raw frames, and lists of image files.
package input

import (
	vidoxide "github.com/vidoxide/vidoxide-go"
)

// Sequence is a finite, randomly indexable sequence of frames.
type Sequence interface {
	// NumImages returns the number of frames. It is fixed for the lifetime
	// of the sequence and does no I/O.
	NumImages() int

	// Image reads frame index, 0 <= index < NumImages(). A failure is a
	// *vidoxide.IOError or *vidoxide.FormatError and concerns only that
	// index. The returned frame is owned by the caller.
	Image(index int) (*vidoxide.Frame, error)

	// Close releases the underlying files.
	Close() error
}

// Kind is the kind of input detected for a set of paths.
type Kind string

// Kinds of input.
const (
	KindUnknown   Kind = "unknown"
	KindSER       Kind = "ser"
	KindImageList Kind = "imagelist"
)
