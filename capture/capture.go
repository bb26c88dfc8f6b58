// Package capture runs a camera, or something that behaves like one, in a
// worker of its own and hands its frames to preview and recording.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/input"
)

// ErrFrameUnavailable is returned (wrapped) by a Capturer when one frame could
// not be delivered but capturing can go on.
var ErrFrameUnavailable = errors.New("frame unavailable")

// Capturer delivers frames one at a time.
type Capturer interface {
	// Capture waits for and returns the next frame. The frame is valid until
	// the next call. Errors that do not wrap ErrFrameUnavailable end
	// capturing.
	Capture(ctx context.Context) (*vidoxide.Frame, error)

	// Close releases the device.
	Close() error
}

// pacer spaces calls to wait at least interval apart.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(fps float64) (*pacer, error) {
	if !(fps > 0) {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	return &pacer{interval: time.Duration(float64(time.Second) / fps)}, nil
}

func (p *pacer) wait(ctx context.Context) error {
	now := time.Now()
	if p.next.IsZero() || now.Sub(p.next) > p.interval {
		// Do not try to catch up after a stall.
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	p.next = p.next.Add(p.interval)
	return nil
}

// SequenceOpts are options for NewSequenceCapturer.
type SequenceOpts struct {
	// FPS is the playback frame rate, default 25.
	FPS     float64
	Verbose bool
}

// SequenceCapturer plays a recorded sequence as if it were a camera, looping
// at the end.
type SequenceCapturer struct {
	opts  SequenceOpts
	seq   input.Sequence
	pace  *pacer
	index int
}

// Ensure that SequenceCapturer implements interface Capturer.
var _ Capturer = (*SequenceCapturer)(nil)

// NewSequenceCapturer returns a capturer playing seq. It takes ownership of
// seq, closing it in Close.
func NewSequenceCapturer(seq input.Sequence, opts *SequenceOpts) (*SequenceCapturer, error) {
	var xopts SequenceOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.FPS == 0 {
		xopts.FPS = 25
	}
	if seq.NumImages() == 0 {
		return nil, fmt.Errorf("sequence has no images")
	}
	p, err := newPacer(xopts.FPS)
	if err != nil {
		return nil, err
	}
	return &SequenceCapturer{opts: xopts, seq: seq, pace: p}, nil
}

// Capture returns the next frame of the sequence. A frame that cannot be read
// is reported as ErrFrameUnavailable and skipped.
func (c *SequenceCapturer) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	if err := c.pace.wait(ctx); err != nil {
		return nil, err
	}
	i := c.index
	c.index = (c.index + 1) % c.seq.NumImages()
	f, err := c.seq.Image(i)
	if err != nil {
		if c.opts.Verbose {
			log.Printf("capture: reading frame %d: %v", i, err)
		}
		return nil, fmt.Errorf("%w: frame %d: %w", ErrFrameUnavailable, i, err)
	}
	return f, nil
}

// Close closes the sequence.
func (c *SequenceCapturer) Close() error {
	return c.seq.Close()
}
