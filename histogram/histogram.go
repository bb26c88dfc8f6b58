// Package histogram computes per-channel brightness histograms of frames, and
// runs a worker that computes them in the background.
package histogram

import (
	"fmt"
	"image"

	vidoxide "github.com/vidoxide/vidoxide-go"
)

// Channel indices into Histogram.Values.
const (
	Red   = 0
	Green = 1
	Blue  = 2
)

// Buckets is the number of buckets per channel.
const Buckets = 256

// Histogram counts samples per channel in 256 buckets. 8-bit samples use
// their value as bucket, 16-bit samples their high byte. For mono frames the
// three channels hold the same counts.
type Histogram struct {
	// IsRGB is set for color and CFA frames, and unset for mono frames.
	IsRGB  bool
	Values [Buckets][3]uint32
}

// Calculate computes the histogram of frame, restricted to region if not nil.
// The region is clipped to the frame.
func Calculate(frame *vidoxide.Frame, region *image.Rectangle) (*Histogram, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("calculating histogram: %w", err)
	}

	f := frame
	if region != nil {
		r := region.Intersect(frame.Bounds())
		if r.Empty() {
			return &Histogram{IsRGB: !frame.Format.IsMono()}, nil
		}
		if r != frame.Bounds() {
			var err error
			if f, err = frame.View(r); err != nil {
				return nil, fmt.Errorf("calculating histogram: %w", err)
			}
		}
	}

	h := &Histogram{IsRGB: !f.Format.IsMono()}
	switch f.Format {
	case vidoxide.PixelFormatMono8:
		h.mono8(f)
	case vidoxide.PixelFormatMono16:
		h.mono16(f)
	case vidoxide.PixelFormatRGB8:
		h.rgb8(f)
	case vidoxide.PixelFormatRGB16:
		h.rgb16(f)
	default:
		p, ok := f.Format.CFAPattern()
		if !ok {
			return nil, fmt.Errorf("histogram of %v: %w", f.Format, vidoxide.ErrInvariant)
		}
		if f.Format.BytesPerChannel() == 1 {
			h.cfa8(f, p)
		} else {
			h.cfa16(f, p)
		}
	}
	return h, nil
}

func (h *Histogram) mono8(f *vidoxide.Frame) {
	var counts [Buckets]uint32
	for y := 0; y < f.Height; y++ {
		for _, v := range f.Line(y) {
			counts[v]++
		}
	}
	h.fillMono(&counts)
}

func (h *Histogram) mono16(f *vidoxide.Frame) {
	var counts [Buckets]uint32
	for y := 0; y < f.Height; y++ {
		line := f.Line(y)
		for x := 0; x < f.Width; x++ {
			counts[vidoxide.Sample16(line, x)>>8]++
		}
	}
	h.fillMono(&counts)
}

func (h *Histogram) fillMono(counts *[Buckets]uint32) {
	for i, n := range counts {
		h.Values[i] = [3]uint32{n, n, n}
	}
}

func (h *Histogram) rgb8(f *vidoxide.Frame) {
	for y := 0; y < f.Height; y++ {
		line := f.Line(y)
		for i := 0; i+2 < len(line); i += 3 {
			h.Values[line[i]][Red]++
			h.Values[line[i+1]][Green]++
			h.Values[line[i+2]][Blue]++
		}
	}
}

func (h *Histogram) rgb16(f *vidoxide.Frame) {
	for y := 0; y < f.Height; y++ {
		line := f.Line(y)
		for x := 0; x < f.Width; x++ {
			h.Values[vidoxide.Sample16(line, 3*x)>>8][Red]++
			h.Values[vidoxide.Sample16(line, 3*x+1)>>8][Green]++
			h.Values[vidoxide.Sample16(line, 3*x+2)>>8][Blue]++
		}
	}
}

// cfa8 walks row pairs. In the red row, red samples start at the red column
// parity and green fills the other columns; the blue row is the other row of
// the pair, with blue at the opposite column parity.
func (h *Histogram) cfa8(f *vidoxide.Frame, p vidoxide.CFAPattern) {
	dyR, dxR := p.RedRowOffset(), p.RedColOffset()
	dyB, dxB := dyR^1, dxR^1
	for y := 0; y < f.Height; y += 2 {
		if ry := y + dyR; ry < f.Height {
			line := f.Line(ry)
			for x := dxR; x < len(line); x += 2 {
				h.Values[line[x]][Red]++
			}
			for x := dxB; x < len(line); x += 2 {
				h.Values[line[x]][Green]++
			}
		}
		if by := y + dyB; by < f.Height {
			line := f.Line(by)
			for x := dxB; x < len(line); x += 2 {
				h.Values[line[x]][Blue]++
			}
			for x := dxR; x < len(line); x += 2 {
				h.Values[line[x]][Green]++
			}
		}
	}
}

// cfa16 is cfa8 for 16-bit samples, binned by their high byte.
func (h *Histogram) cfa16(f *vidoxide.Frame, p vidoxide.CFAPattern) {
	dyR, dxR := p.RedRowOffset(), p.RedColOffset()
	dyB, dxB := dyR^1, dxR^1
	for y := 0; y < f.Height; y += 2 {
		if ry := y + dyR; ry < f.Height {
			line := f.Line(ry)
			for x := dxR; x < f.Width; x += 2 {
				h.Values[vidoxide.Sample16(line, x)>>8][Red]++
			}
			for x := dxB; x < f.Width; x += 2 {
				h.Values[vidoxide.Sample16(line, x)>>8][Green]++
			}
		}
		if by := y + dyB; by < f.Height {
			line := f.Line(by)
			for x := dxB; x < f.Width; x += 2 {
				h.Values[vidoxide.Sample16(line, x)>>8][Blue]++
			}
			for x := dxR; x < f.Width; x += 2 {
				h.Values[vidoxide.Sample16(line, x)>>8][Green]++
			}
		}
	}
}

// Sum returns the number of samples counted in channel c.
func (h *Histogram) Sum(c int) uint64 {
	var n uint64
	for i := range h.Values {
		n += uint64(h.Values[i][c])
	}
	return n
}

// Mean returns the mean bucket of channel c, or 0 for an empty channel.
func (h *Histogram) Mean(c int) float64 {
	var n, total uint64
	for i := range h.Values {
		v := uint64(h.Values[i][c])
		n += v
		total += v * uint64(i)
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// Max returns the highest non-empty bucket of channel c, or -1 if the
// channel is empty.
func (h *Histogram) Max(c int) int {
	for i := Buckets - 1; i >= 0; i-- {
		if h.Values[i][c] != 0 {
			return i
		}
	}
	return -1
}
