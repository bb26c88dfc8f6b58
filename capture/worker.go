package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/internal/mailbox"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
	"github.com/vidoxide/vidoxide-go/recording"
)

// Command is a request to the Worker.
type Command interface {
	isCommand()
}

// Finish stops capturing. An active recording is finished.
type Finish struct{}

// Pause stops capturing until Resume. The worker answers with Paused.
type Pause struct{}

// Resume continues capturing after Pause.
type Resume struct{}

// StartRecording sends the following frames on Frames until Limit is reached
// or StopRecording. The worker closes Frames when the recording ends.
type StartRecording struct {
	Frames chan<- recording.Msg
	Limit  recording.Limit
}

// StopRecording finishes the active recording.
type StopRecording struct{}

// SetRecordingCrop records only Region of each frame. An empty Region records
// whole frames.
type SetRecordingCrop struct {
	Region image.Rectangle
}

// RequestPreview asks for one PreviewImageReady with the next frame.
type RequestPreview struct{}

func (Finish) isCommand()           {}
func (Pause) isCommand()            {}
func (Resume) isCommand()           {}
func (StartRecording) isCommand()   {}
func (StopRecording) isCommand()    {}
func (SetRecordingCrop) isCommand() {}
func (RequestPreview) isCommand()   {}

// Msg is a message from the Worker: PreviewImageReady, Paused, CaptureError,
// RecordingFinished or Info.
type Msg interface {
	isMsg()
}

// PreviewImageReady carries a copy of a captured frame.
type PreviewImageReady struct {
	Frame *vidoxide.Frame
}

// Paused confirms Pause.
type Paused struct{}

// CaptureError reports a failure of the capturer. Capturing has stopped.
type CaptureError struct {
	Err error
}

// RecordingFinished reports a recording that reached its limit.
type RecordingFinished struct{}

// Info is sent about once per second while capturing.
type Info struct {
	CaptureFPS float64
	Recording  string // Empty when not recording.
}

func (PreviewImageReady) isMsg() {}
func (Paused) isMsg()            {}
func (CaptureError) isMsg()      {}
func (RecordingFinished) isMsg() {}
func (Info) isMsg()              {}

// WorkerOpts are options for a Worker.
type WorkerOpts struct {
	Verbose bool
	Metrics *metrics.Metrics

	// Buffer counts data handed to recording and not yet written. It must be
	// the Buffer of the recording worker. If nil, a private Buffer is used.
	Buffer *recording.Buffer

	// MaxBufferedKiB is the Buffer level above which frames are not
	// recorded, default recording.DefaultMaxBufferedKiB.
	MaxBufferedKiB int64

	// InfoInterval between Info messages, default 1s.
	InfoInterval time.Duration
}

type recordingState struct {
	frames   chan<- recording.Msg
	limit    recording.Limit
	start    time.Time
	recorded int
	dropped  int
}

// Worker captures frames in its own goroutine, sending copies to the
// consumer for preview and to a recording job.
type Worker struct {
	opts     WorkerOpts
	capturer Capturer
	cmds     *mailbox.Mailbox[Command]
	msgs     *mailbox.Mailbox[Msg]
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once

	// Owned by the run goroutine.
	paused      bool
	wantPreview bool
	rec         *recordingState
	crop        image.Rectangle
	fps         *vidoxide.MAF
	captured    int
	infoAt      time.Time
}

// NewWorker starts capturing from c, which the worker owns and closes when it
// exits. The first frame is sent for preview without a request.
func NewWorker(c Capturer, opts *WorkerOpts) *Worker {
	var xopts WorkerOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Metrics == nil {
		xopts.Metrics = metrics.New()
	}
	if xopts.Buffer == nil {
		xopts.Buffer = &recording.Buffer{}
	}
	if xopts.MaxBufferedKiB == 0 {
		xopts.MaxBufferedKiB = recording.DefaultMaxBufferedKiB
	}
	if xopts.InfoInterval <= 0 {
		xopts.InfoInterval = time.Second
	}
	fps, _ := vidoxide.NewMAF(5)
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		opts:        xopts,
		capturer:    c,
		cmds:        mailbox.New[Command](),
		msgs:        mailbox.New[Msg](),
		cancel:      cancel,
		done:        make(chan struct{}),
		wantPreview: true,
		fps:         fps,
	}
	go w.run(ctx)
	return w
}

// Send passes a command to the worker. It must not be called after Close.
func (w *Worker) Send(c Command) {
	w.cmds.Send(c)
}

// WantPreview asks for the next frame to be sent in a PreviewImageReady.
func (w *Worker) WantPreview() {
	w.Send(RequestPreview{})
}

// Messages returns the worker's messages. It is closed once the worker has
// exited.
func (w *Worker) Messages() <-chan Msg {
	return w.msgs.Out()
}

// Close stops the worker, interrupting a Capture in progress. An active
// recording is finished.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.cancel()
		w.cmds.Send(Finish{})
		w.cmds.Close()
	})
}

// Done is closed when the worker has exited and closed the capturer.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.opts.Verbose {
		log.Printf(format, args...)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.msgs.Close()
	// Recordings started after exiting end at once.
	defer func() {
		go func() {
			for cmd := range w.cmds.Out() {
				if c, ok := cmd.(StartRecording); ok {
					close(c.Frames)
				}
			}
		}()
	}()
	defer func() {
		if err := w.capturer.Close(); err != nil {
			w.logf("capture: closing capturer: %v", err)
		}
	}()
	// A recording still active here was not finished by a command, the
	// recording worker sees its channel close without Finished.
	defer func() {
		if w.rec != nil {
			close(w.rec.frames)
			w.rec = nil
		}
	}()

	w.infoAt = time.Now()
	cmds := w.cmds.Out()
	for {
		if w.paused {
			cmd, ok := <-cmds
			if !ok || !w.handle(cmd) {
				w.stopRecording()
				return
			}
			continue
		}

		select {
		case cmd, ok := <-cmds:
			if !ok || !w.handle(cmd) {
				w.stopRecording()
				return
			}
			continue
		default:
		}

		frame, err := w.capturer.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Closed while capturing.
				w.stopRecording()
				return
			}
			if errors.Is(err, ErrFrameUnavailable) {
				w.logf("capture: %v", err)
				continue
			}
			w.opts.Metrics.CaptureErrors.Add(1)
			w.msgs.Send(CaptureError{Err: fmt.Errorf("capturing frame: %w", err)})
			return
		}
		w.onFrame(frame)
	}
}

// handle applies cmd and reports whether the worker should go on.
func (w *Worker) handle(cmd Command) bool {
	switch c := cmd.(type) {
	case Finish:
		w.logf("capture: finishing")
		return false
	case Pause:
		w.paused = true
		w.msgs.Send(Paused{})
	case Resume:
		w.paused = false
	case StartRecording:
		w.stopRecording()
		w.logf("capture: recording %v", c.Limit)
		w.rec = &recordingState{frames: c.Frames, limit: c.Limit, start: time.Now()}
	case StopRecording:
		w.stopRecording()
	case SetRecordingCrop:
		w.crop = c.Region
	case RequestPreview:
		w.wantPreview = true
	}
	return true
}

func (w *Worker) stopRecording() {
	if w.rec == nil {
		return
	}
	w.logf("capture: recorded %d frames, %d dropped", w.rec.recorded, w.rec.dropped)
	w.rec.frames <- recording.Finished{}
	close(w.rec.frames)
	w.rec = nil
}

func (w *Worker) onFrame(frame *vidoxide.Frame) {
	now := time.Now()
	w.captured++
	w.opts.Metrics.FramesCaptured.Add(1)

	if w.rec != nil {
		w.record(frame, now)
	}
	if w.wantPreview {
		w.wantPreview = false
		w.opts.Metrics.PreviewFramesSent.Add(1)
		w.msgs.Send(PreviewImageReady{Frame: frame.Clone()})
	}

	if d := now.Sub(w.infoAt); d >= w.opts.InfoInterval {
		fps, _ := w.fps.Update(float64(w.captured) / d.Seconds())
		w.opts.Metrics.SetCaptureFPS(fps)
		info := Info{CaptureFPS: fps}
		if w.rec != nil {
			info.Recording = w.rec.info(now)
		}
		w.msgs.Send(info)
		w.captured = 0
		w.infoAt = now
	}

	if w.rec != nil && w.rec.limit.Reached(w.rec.recorded, w.rec.start, now) {
		w.stopRecording()
		w.msgs.Send(RecordingFinished{})
	}
}

func (w *Worker) record(frame *vidoxide.Frame, now time.Time) {
	if w.opts.Buffer.KiB() > w.opts.MaxBufferedKiB {
		w.rec.dropped++
		w.opts.Metrics.FramesDropped.Add(1)
		return
	}
	w.opts.Buffer.Add(recording.FrameKiB(frame))
	w.opts.Metrics.BufferedKiB.Store(w.opts.Buffer.KiB())
	w.rec.frames <- recording.Captured{Frame: frame.Clone(), Region: w.crop, Time: now}
	w.rec.recorded++
}

func (r *recordingState) info(now time.Time) string {
	switch {
	case r.limit.Frames > 0:
		return fmt.Sprintf("Recorded %d/%d frames", r.recorded, r.limit.Frames)
	case r.limit.Duration > 0:
		left := r.limit.Duration - now.Sub(r.start)
		if left < 0 {
			left = 0
		}
		secs := int(left / time.Second)
		return fmt.Sprintf("Recorded %d frames (%d dropped), time left: %02d:%02d:%02d",
			r.recorded, r.dropped, secs/3600, secs%3600/60, secs%60)
	}
	return fmt.Sprintf("Recorded %d frames (%d dropped)", r.recorded, r.dropped)
}
