package recording

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vidoxide/vidoxide-go/internal/mailbox"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
)

// Report is a message from the Worker: Info, Error, JobFinished or
// CaptureThreadEnded.
type Report interface {
	isReport()
}

// Info is sent about once per second while jobs exist, and once when the
// last job is done.
type Info struct {
	Jobs        int     // Current and queued.
	MiBPerSec   float64 // Write rate since the previous Info.
	BufferedMiB float64
}

func (i Info) String() string {
	return fmt.Sprintf("Recording jobs: %d; saving at %.1f MiB/s; buffered: %.0f MiB", i.Jobs, i.MiBPerSec, i.BufferedMiB)
}

// Error is a failure to write or finalize a job's output. A job with a write
// error stops writing; its remaining frames are discarded.
type Error struct {
	JobID uuid.UUID
	Err   error
}

// JobFinished reports a finalized job.
type JobFinished struct {
	JobID  uuid.UUID
	Frames int
}

// CaptureThreadEnded reports that a job's frame channel closed without a
// Finished message. The job was finalized.
type CaptureThreadEnded struct {
	JobID uuid.UUID
}

func (Info) isReport()               {}
func (Error) isReport()              {}
func (JobFinished) isReport()        {}
func (CaptureThreadEnded) isReport() {}

// WorkerOpts are options for a Worker.
type WorkerOpts struct {
	Verbose bool
	Metrics *metrics.Metrics

	// Buffer is decremented for every frame taken from a job. If nil, a
	// private Buffer is used.
	Buffer *Buffer

	// InfoInterval between Info reports, default 1s.
	InfoInterval time.Duration
}

type activeJob struct {
	Job
	frames int
	failed bool
}

// Worker runs recording jobs one at a time, in the order they were added.
type Worker struct {
	opts    WorkerOpts
	jobs    *mailbox.Mailbox[Job]
	reports *mailbox.Mailbox[Report]
	done    chan struct{}

	// Owned by the run goroutine.
	queue       []Job
	current     *activeJob
	bytes       int64
	bytesAtInfo int64
	infoAt      time.Time
}

// NewWorker starts a recording worker. Close it to finish; Reports is closed
// once it has exited.
func NewWorker(opts *WorkerOpts) *Worker {
	var xopts WorkerOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Metrics == nil {
		xopts.Metrics = metrics.New()
	}
	if xopts.Buffer == nil {
		xopts.Buffer = &Buffer{}
	}
	if xopts.InfoInterval <= 0 {
		xopts.InfoInterval = time.Second
	}
	w := &Worker{
		opts:    xopts,
		jobs:    mailbox.New[Job](),
		reports: mailbox.New[Report](),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Add queues a job. It must not be called after Close.
func (w *Worker) Add(job Job) {
	w.jobs.Send(job)
}

// Reports returns the worker's reports.
func (w *Worker) Reports() <-chan Report {
	return w.reports.Out()
}

// Close finishes the worker once every added job has ended, by Finished or by
// its frame channel being closed. No jobs may be added after Close.
func (w *Worker) Close() {
	w.jobs.Close()
}

// Done is closed when the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.opts.Verbose {
		log.Printf(format, args...)
	}
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.reports.Close()

	ticker := time.NewTicker(w.opts.InfoInterval)
	defer ticker.Stop()
	w.infoAt = time.Now()

	jobs := w.jobs.Out()
	for {
		if jobs == nil && w.current == nil {
			w.logf("recording: stopped")
			return
		}
		var frames <-chan Msg
		if w.current != nil {
			frames = w.current.Frames
		}

		select {
		case job, ok := <-jobs:
			if !ok {
				jobs = nil
				continue
			}
			w.logf("recording: job %s queued", job.ID)
			w.queue = append(w.queue, job)
			if w.current == nil {
				w.next()
			}

		case msg, ok := <-frames:
			if !ok {
				w.logf("recording: job %s: capture ended without finishing", w.current.ID)
				w.reports.Send(CaptureThreadEnded{JobID: w.current.ID})
				w.finalize()
				w.next()
				continue
			}
			switch m := msg.(type) {
			case Captured:
				w.write(m)
			case Finished:
				w.finalize()
				w.next()
			}

		case <-ticker.C:
			if w.current != nil || len(w.queue) > 0 {
				w.sendInfo()
			}
		}
	}
}

func (w *Worker) next() {
	w.current = nil
	if len(w.queue) > 0 {
		w.current = &activeJob{Job: w.queue[0]}
		w.queue = w.queue[1:]
		w.opts.Metrics.RecordingActive.Store(1)
		w.logf("recording: job %s started", w.current.ID)
		return
	}
	w.opts.Metrics.RecordingActive.Store(0)
	w.sendInfo()
}

func (w *Worker) write(m Captured) {
	defer func() {
		w.opts.Buffer.Add(-FrameKiB(m.Frame))
		w.opts.Metrics.BufferedKiB.Store(w.opts.Buffer.KiB())
	}()

	j := w.current
	if j.failed {
		return
	}
	if err := j.Writer.Write(m.Frame, m.Region); err != nil {
		j.failed = true
		w.opts.Metrics.RecordingErrors.Add(1)
		w.reports.Send(Error{JobID: j.ID, Err: fmt.Errorf("writing frame %d: %w", j.frames, err)})
		return
	}
	j.frames++
	n := int64(m.Frame.PixelBytes())
	if !m.Region.Empty() {
		n = int64(m.Region.Dx() * m.Region.Dy() * m.Frame.Format.BytesPerPixel())
	}
	w.bytes += n
	w.opts.Metrics.RecordingFrames.Add(1)
	w.opts.Metrics.RecordingBytes.Add(uint64(n))
}

func (w *Worker) finalize() {
	j := w.current
	if err := j.Writer.Finalize(); err != nil {
		w.opts.Metrics.RecordingErrors.Add(1)
		w.reports.Send(Error{JobID: j.ID, Err: fmt.Errorf("finalizing recording: %w", err)})
	}
	w.logf("recording: job %s finished with %d frames", j.ID, j.frames)
	w.reports.Send(JobFinished{JobID: j.ID, Frames: j.frames})
}

func (w *Worker) sendInfo() {
	now := time.Now()
	jobs := len(w.queue)
	if w.current != nil {
		jobs++
	}
	rate := 0.0
	if d := now.Sub(w.infoAt).Seconds(); d > 0 {
		rate = float64(w.bytes-w.bytesAtInfo) / (1 << 20) / d
	}
	w.reports.Send(Info{
		Jobs:        jobs,
		MiBPerSec:   rate,
		BufferedMiB: float64(w.opts.Buffer.KiB()) / 1024,
	})
	w.infoAt = now
	w.bytesAtInfo = w.bytes
}
