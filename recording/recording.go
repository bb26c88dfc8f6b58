// Package recording writes captured frames to disk in a worker of its own, so
// that slow storage never stalls capturing.
package recording

import (
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/internal/mailbox"
	"github.com/vidoxide/vidoxide-go/output"
)

// DefaultMaxBufferedKiB is the amount of captured data that may wait for the
// recording worker before the capture side starts dropping frames.
const DefaultMaxBufferedKiB = 2 * 1024 * 1024

// Msg is a message from the capture side to a recording job: Captured or
// Finished.
type Msg interface {
	isMsg()
}

// Captured is one frame to record. Only Region is written; an empty Region
// means the whole frame. The frame is owned by the recording worker.
type Captured struct {
	Frame  *vidoxide.Frame
	Region image.Rectangle
	Time   time.Time
}

// Finished ends a job. No messages follow.
type Finished struct{}

func (Captured) isMsg() {}
func (Finished) isMsg() {}

// Limit ends a recording after a number of frames or a duration. The zero
// Limit records until stopped.
type Limit struct {
	Frames   int
	Duration time.Duration
}

// FrameCount returns a limit of n frames.
func FrameCount(n int) Limit { return Limit{Frames: n} }

// ForDuration returns a limit of d.
func ForDuration(d time.Duration) Limit { return Limit{Duration: d} }

// Forever is the limit of a recording that runs until stopped.
var Forever = Limit{}

// Reached reports whether a recording that started at start and has recorded
// frames frames is complete at now.
func (l Limit) Reached(frames int, start, now time.Time) bool {
	switch {
	case l.Frames > 0:
		return frames >= l.Frames
	case l.Duration > 0:
		return now.Sub(start) >= l.Duration
	}
	return false
}

func (l Limit) String() string {
	switch {
	case l.Frames > 0:
		return fmt.Sprintf("%d frames", l.Frames)
	case l.Duration > 0:
		return l.Duration.String()
	}
	return "forever"
}

// Job is one recording: frames arriving on Frames are written with Writer.
type Job struct {
	ID     uuid.UUID
	Frames <-chan Msg
	Writer output.Writer
}

// NewJob returns a job writing with w, and the channel the capture side sends
// frames on. Sends on the channel never block; closing it without a Finished
// message marks the capture side as ended.
func NewJob(w output.Writer) (Job, chan<- Msg) {
	mb := mailbox.New[Msg]()
	return Job{ID: uuid.New(), Frames: mb.Out(), Writer: w}, mb.In()
}

// Buffer counts KiB of frames handed to the recording worker and not yet
// written. It is shared by the capture and recording workers.
type Buffer struct {
	kib atomic.Int64
}

// Add adds kib, which may be negative.
func (b *Buffer) Add(kib int64) {
	b.kib.Add(kib)
}

// KiB returns the current amount.
func (b *Buffer) KiB() int64 {
	return b.kib.Load()
}

// FrameKiB is the amount a frame adds to a Buffer.
func FrameKiB(f *vidoxide.Frame) int64 {
	return int64(f.PixelBytes()) / 1024
}
