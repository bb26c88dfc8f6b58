// Package output defines how recorded frames are stored.
package output

import (
	"fmt"
	"image"
	"strings"

	vidoxide "github.com/vidoxide/vidoxide-go"
)

// Writer stores a stream of frames. All frames written to one Writer must have
// the same region size and pixel format.
type Writer interface {
	// Write stores the part of frame inside region.
	Write(frame *vidoxide.Frame, region image.Rectangle) error

	// Finalize flushes and closes the output. The Writer must not be used
	// afterwards.
	Finalize() error
}

// Format is an output file format.
type Format int

const (
	FormatSER Format = iota
	FormatTIFF
	FormatBMP
)

func (f Format) String() string {
	switch f {
	case FormatSER:
		return "ser"
	case FormatTIFF:
		return "tiff"
	case FormatBMP:
		return "bmp"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses a format name as printed by String. "tif" is accepted
// for TIFF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "ser":
		return FormatSER, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return 0, fmt.Errorf("unknown output format %q", s)
}

// Region returns the view of frame inside region, or frame itself when region
// covers it entirely or is empty.
func Region(frame *vidoxide.Frame, region image.Rectangle) (*vidoxide.Frame, error) {
	if region.Empty() || region == frame.Bounds() {
		return frame, nil
	}
	return frame.View(region)
}
