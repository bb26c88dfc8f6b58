package histogram

import (
	"image"
	"log"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/internal/mailbox"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
)

// Request asks for the histogram of Frame, restricted to Region if not nil.
// The frame is owned by the worker once sent.
type Request struct {
	Seq    uint64
	Frame  *vidoxide.Frame
	Region *image.Rectangle
}

// Result is the answer to the Request with the same Seq.
type Result struct {
	Seq uint64

	// If set, the frame could not be processed and Histogram is nil.
	Err error

	Histogram *Histogram
}

// WorkerOpts are options for a Worker.
type WorkerOpts struct {
	Verbose bool
	Metrics *metrics.Metrics
}

// Worker computes histograms in its own goroutine. Requests are answered in
// the order they were made, none are dropped. Sending a request never waits
// for the computation or for the consumer.
type Worker struct {
	requests *mailbox.Mailbox[Request]
	results  *mailbox.Mailbox[Result]
	seq      uint64
	done     chan struct{}
}

// NewWorker starts a histogram worker. The caller must call Close when done,
// and keep reading Results until it is closed.
func NewWorker(opts *WorkerOpts) *Worker {
	var xopts WorkerOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Metrics == nil {
		xopts.Metrics = metrics.New()
	}

	w := &Worker{
		requests: mailbox.New[Request](),
		results:  mailbox.New[Result](),
		done:     make(chan struct{}),
	}
	go w.run(xopts)
	return w
}

func (w *Worker) run(opts WorkerOpts) {
	defer close(w.done)
	defer w.results.Close()

	for req := range w.requests.Out() {
		h, err := Calculate(req.Frame, req.Region)
		if err != nil {
			if opts.Verbose {
				log.Printf("histogram %d: %v", req.Seq, err)
			}
			w.results.Send(Result{Seq: req.Seq, Err: err})
			continue
		}
		opts.Metrics.HistogramsComputed.Add(1)
		w.results.Send(Result{Seq: req.Seq, Histogram: h})
	}
	if opts.Verbose {
		log.Printf("histogram worker: requests closed, stopping")
	}
}

// Calculate queues a request and returns its sequence number. It must not be
// called after Close, and only from one goroutine.
func (w *Worker) Calculate(frame *vidoxide.Frame, region *image.Rectangle) uint64 {
	w.seq++
	w.requests.Send(Request{Seq: w.seq, Frame: frame, Region: region})
	return w.seq
}

// Pending returns the number of requests not yet taken up by the worker.
func (w *Worker) Pending() int {
	return w.requests.Len()
}

// Results returns the channel of results. It is closed after Close once all
// queued requests have been answered.
func (w *Worker) Results() <-chan Result {
	return w.results.Out()
}

// Close stops accepting requests. Queued requests are still answered.
func (w *Worker) Close() {
	w.requests.Close()
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
