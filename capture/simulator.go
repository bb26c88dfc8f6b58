package capture

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	vidoxide "github.com/vidoxide/vidoxide-go"
)

// SimulatorOpts are options for NewSimulator.
type SimulatorOpts struct {
	// Image is shown by the simulator, cropped and scaled to fill Width x
	// Height if those are set. If nil, a synthetic planet of Width x Height
	// (default 640x480) is drawn.
	Image         image.Image
	Width, Height int

	// Format is Mono8, RGB8 (default) or CFA-GBRG8.
	Format vidoxide.PixelFormat

	// FPS is the frame rate, default 30.
	FPS float64
}

// Simulator is a camera without hardware showing a still image.
type Simulator struct {
	frame *vidoxide.Frame
	pace  *pacer
}

// Ensure that Simulator implements interface Capturer.
var _ Capturer = (*Simulator)(nil)

// NewSimulator returns a simulated camera.
func NewSimulator(opts *SimulatorOpts) (*Simulator, error) {
	var xopts SimulatorOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Image != nil && xopts.Width > 0 && xopts.Height > 0 {
		xopts.Image = imaging.Fill(xopts.Image, xopts.Width, xopts.Height, imaging.Center, imaging.Lanczos)
	}
	if xopts.Width == 0 {
		xopts.Width = 640
	}
	if xopts.Height == 0 {
		xopts.Height = 480
	}
	if xopts.Format == vidoxide.PixelFormatInvalid {
		xopts.Format = vidoxide.PixelFormatRGB8
	}
	if xopts.FPS == 0 {
		xopts.FPS = 30
	}
	p, err := newPacer(xopts.FPS)
	if err != nil {
		return nil, err
	}

	var rgb *vidoxide.Frame
	if xopts.Image != nil {
		f, err := vidoxide.FrameFromImage(xopts.Image)
		if err != nil {
			return nil, fmt.Errorf("simulator image: %w", err)
		}
		if rgb, err = toRGB8(f); err != nil {
			return nil, fmt.Errorf("simulator image: %w", err)
		}
	} else {
		if xopts.Width <= 0 || xopts.Height <= 0 {
			return nil, fmt.Errorf("invalid simulator size %dx%d", xopts.Width, xopts.Height)
		}
		if rgb, err = planet(xopts.Width, xopts.Height); err != nil {
			return nil, err
		}
	}

	var frame *vidoxide.Frame
	switch xopts.Format {
	case vidoxide.PixelFormatRGB8:
		frame = rgb
	case vidoxide.PixelFormatMono8:
		frame, err = rgbToMono8(rgb)
	case vidoxide.PixelFormatCFAGBRG8:
		frame, err = vidoxide.RGBToCFA(rgb, vidoxide.CFAGBRG)
	default:
		return nil, fmt.Errorf("simulator cannot produce %v", xopts.Format)
	}
	if err != nil {
		return nil, err
	}
	return &Simulator{frame: frame, pace: p}, nil
}

// Capture returns the simulated frame at the configured rate.
func (s *Simulator) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	if err := s.pace.wait(ctx); err != nil {
		return nil, err
	}
	return s.frame, nil
}

// Close is a no-op.
func (s *Simulator) Close() error {
	return nil
}

func toRGB8(f *vidoxide.Frame) (*vidoxide.Frame, error) {
	switch f.Format {
	case vidoxide.PixelFormatRGB8:
		return f, nil
	case vidoxide.PixelFormatMono8:
		rgb, err := vidoxide.NewFrame(f.Width, f.Height, vidoxide.PixelFormatRGB8)
		if err != nil {
			return nil, err
		}
		for y := 0; y < f.Height; y++ {
			s, d := f.Line(y), rgb.Line(y)
			for x, v := range s {
				d[3*x], d[3*x+1], d[3*x+2] = v, v, v
			}
		}
		return rgb, nil
	}
	return nil, fmt.Errorf("unsupported image format %v, need 8 bits per channel", f.Format)
}

func rgbToMono8(rgb *vidoxide.Frame) (*vidoxide.Frame, error) {
	mono, err := vidoxide.NewFrame(rgb.Width, rgb.Height, vidoxide.PixelFormatMono8)
	if err != nil {
		return nil, err
	}
	for y := 0; y < rgb.Height; y++ {
		s, d := rgb.Line(y), mono.Line(y)
		for x := range d {
			r, g, b := int(s[3*x]), int(s[3*x+1]), int(s[3*x+2])
			d[x] = byte((299*r + 587*g + 114*b + 500) / 1000)
		}
	}
	return mono, nil
}

// planet draws a banded, limb-darkened disk on a dark sky.
func planet(w, h int) (*vidoxide.Frame, error) {
	f, err := vidoxide.NewFrame(w, h, vidoxide.PixelFormatRGB8)
	if err != nil {
		return nil, err
	}
	cx, cy := float64(w)/2, float64(h)/2
	radius := math.Min(cx, cy) * 0.6
	for y := 0; y < h; y++ {
		line := f.Line(y)
		for x := 0; x < w; x++ {
			dx, dy := (float64(x)-cx)/radius, (float64(y)-cy)/radius
			r2 := dx*dx + dy*dy
			var r, g, b float64
			if r2 <= 1 {
				limb := math.Sqrt(1 - r2)
				band := 0.8 + 0.2*math.Cos(dy*18)
				r, g, b = 230*limb*band, 190*limb*band, 140*limb
			} else {
				r, g, b = 8, 8, 12
			}
			line[3*x], line[3*x+1], line[3*x+2] = byte(r), byte(g), byte(b)
		}
	}
	return f, nil
}
