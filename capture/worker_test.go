package capture

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
	"github.com/vidoxide/vidoxide-go/recording"
)

// fakeCapturer returns the same 64x32 Mono8 frame every millisecond, counting
// up in the first byte. Errors in errs are returned for the given call
// numbers instead.
type fakeCapturer struct {
	frame  *vidoxide.Frame
	calls  int
	errs   map[int]error
	closed atomic.Bool
}

func newFakeCapturer(t *testing.T) *fakeCapturer {
	t.Helper()
	f, err := vidoxide.NewFrame(64, 32, vidoxide.PixelFormatMono8)
	require.NoError(t, err)
	return &fakeCapturer{frame: f, errs: map[int]error{}}
}

func (c *fakeCapturer) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	select {
	case <-time.After(time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.calls++
	if err := c.errs[c.calls]; err != nil {
		return nil, err
	}
	c.frame.Pix[0] = byte(c.calls)
	return c.frame, nil
}

func (c *fakeCapturer) Close() error {
	c.closed.Store(true)
	return nil
}

func nextMsg[T Msg](t *testing.T, w *Worker) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-w.Messages():
			require.True(t, ok, "messages closed")
			if v, ok := m.(T); ok {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("no %T", zero)
		}
	}
}

func stop(t *testing.T, w *Worker) {
	t.Helper()
	w.Close()
	for {
		select {
		case _, ok := <-w.Messages():
			if !ok {
				<-w.Done()
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func recv(t *testing.T, ch <-chan recording.Msg) (recording.Msg, bool) {
	t.Helper()
	select {
	case m, ok := <-ch:
		return m, ok
	case <-time.After(5 * time.Second):
		t.Fatal("no recording message")
	}
	return nil, false
}

func TestPreview(t *testing.T) {
	c := newFakeCapturer(t)
	m := metrics.New()
	w := NewWorker(c, &WorkerOpts{Metrics: m})

	p := nextMsg[PreviewImageReady](t, w)
	first := p.Frame.Pix[0]
	require.NotSame(t, c.frame, p.Frame)

	w.WantPreview()
	p = nextMsg[PreviewImageReady](t, w)
	assert.NotEqual(t, first, p.Frame.Pix[0])

	stop(t, w)
	assert.True(t, c.closed.Load())
	assert.Equal(t, uint64(2), m.PreviewFramesSent.Load())
	assert.GreaterOrEqual(t, m.FramesCaptured.Load(), uint64(2))
}

func TestRecordFrameCount(t *testing.T) {
	c := newFakeCapturer(t)
	buf := &recording.Buffer{}
	w := NewWorker(c, &WorkerOpts{Buffer: buf})

	frames := make(chan recording.Msg, 16)
	w.Send(SetRecordingCrop{Region: image.Rect(0, 0, 8, 8)})
	w.Send(StartRecording{Frames: frames, Limit: recording.FrameCount(3)})

	var last byte
	for i := 0; i < 3; i++ {
		m, ok := recv(t, frames)
		require.True(t, ok)
		captured, ok := m.(recording.Captured)
		require.True(t, ok, "%#v", m)
		assert.Equal(t, image.Rect(0, 0, 8, 8), captured.Region)
		assert.NotSame(t, c.frame, captured.Frame, "recorded frames are copies")
		assert.NotEqual(t, last, captured.Frame.Pix[0])
		last = captured.Frame.Pix[0]
	}
	m, ok := recv(t, frames)
	require.True(t, ok)
	assert.Equal(t, recording.Finished{}, m)
	_, ok = recv(t, frames)
	assert.False(t, ok, "closed after the limit")

	nextMsg[RecordingFinished](t, w)
	assert.Equal(t, int64(3*recording.FrameKiB(c.frame)), buf.KiB())

	stop(t, w)
}

func TestRecordDropsWhenBufferFull(t *testing.T) {
	c := newFakeCapturer(t)
	buf := &recording.Buffer{}
	buf.Add(10)
	m := metrics.New()
	w := NewWorker(c, &WorkerOpts{Buffer: buf, MaxBufferedKiB: 5, Metrics: m})

	frames := make(chan recording.Msg, 16)
	w.Send(StartRecording{Frames: frames, Limit: recording.Forever})
	require.Eventually(t, func() bool { return m.FramesDropped.Load() >= 3 }, 5*time.Second, time.Millisecond)
	w.Send(StopRecording{})

	msg, ok := recv(t, frames)
	require.True(t, ok)
	assert.Equal(t, recording.Finished{}, msg, "no frames recorded")
	_, ok = recv(t, frames)
	assert.False(t, ok)
	assert.Equal(t, int64(10), buf.KiB())

	stop(t, w)
}

func TestCaptureErrorEndsWorker(t *testing.T) {
	c := newFakeCapturer(t)
	c.errs[2] = ErrFrameUnavailable
	c.errs[30] = errors.New("usb gone")
	w := NewWorker(c, nil)

	frames := make(chan recording.Msg, 64)
	w.Send(StartRecording{Frames: frames, Limit: recording.Forever})

	var capErr CaptureError
	for m := range w.Messages() {
		if e, ok := m.(CaptureError); ok {
			capErr = e
		}
	}
	<-w.Done()
	assert.ErrorContains(t, capErr.Err, "usb gone")
	assert.True(t, c.closed.Load())

	// The recording ends without Finished.
	for m := range frames {
		assert.IsType(t, recording.Captured{}, m)
	}

	w.Close()
}

func TestPauseResume(t *testing.T) {
	c := newFakeCapturer(t)
	w := NewWorker(c, nil)
	nextMsg[PreviewImageReady](t, w)

	w.Send(Pause{})
	nextMsg[Paused](t, w)

	w.Send(Resume{})
	w.WantPreview()
	nextMsg[PreviewImageReady](t, w)

	// Closing while paused.
	w.Send(Pause{})
	nextMsg[Paused](t, w)
	stop(t, w)
	assert.True(t, c.closed.Load())
}

func TestCloseFinishesRecording(t *testing.T) {
	c := newFakeCapturer(t)
	w := NewWorker(c, nil)
	job, send := recording.NewJob(nil)
	w.Send(StartRecording{Frames: send, Limit: recording.ForDuration(time.Hour)})

	m, ok := recv(t, job.Frames)
	require.True(t, ok)
	require.IsType(t, recording.Captured{}, m)
	stop(t, w)

	var last recording.Msg
	for m := range job.Frames {
		last = m
	}
	assert.Equal(t, recording.Finished{}, last)
}

func TestInfo(t *testing.T) {
	c := newFakeCapturer(t)
	w := NewWorker(c, &WorkerOpts{InfoInterval: 20 * time.Millisecond})
	frames := make(chan recording.Msg, 1024)
	w.Send(StartRecording{Frames: frames, Limit: recording.FrameCount(1000)})

	info := nextMsg[Info](t, w)
	for info.Recording == "" {
		info = nextMsg[Info](t, w)
	}
	assert.Greater(t, info.CaptureFPS, 0.0)
	assert.Regexp(t, `^Recorded \d+/1000 frames$`, info.Recording)

	stop(t, w)
}

func TestRecordingInfo(t *testing.T) {
	start := time.Unix(0, 0)
	r := &recordingState{limit: recording.ForDuration(2 * time.Hour), start: start, recorded: 7, dropped: 2}
	assert.Equal(t, "Recorded 7 frames (2 dropped), time left: 01:58:59", r.info(start.Add(61*time.Second)))
	assert.Equal(t, "Recorded 7 frames (2 dropped), time left: 00:00:00", r.info(start.Add(3*time.Hour)))

	r.limit = recording.Forever
	assert.Equal(t, "Recorded 7 frames (2 dropped)", r.info(start))
}
