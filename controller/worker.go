package controller

import (
	"fmt"
	"log"
	"sync"

	"github.com/vidoxide/vidoxide-go/internal/mailbox"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
)

// Msg is a message from the Worker: NewDevice, StickEvent or DeviceError.
type Msg interface {
	isMsg()
}

// NewDevice reports a connected device and the index assigned to it.
type NewDevice struct {
	ID    uint64
	Index int
	Name  string
}

// StickEvent is an event of the device at Index.
type StickEvent struct {
	ID    uint64
	Index int
	Event Event
}

// DeviceError is a failure to enumerate or listen to devices. The worker keeps
// running.
type DeviceError struct {
	Err error
}

func (NewDevice) isMsg()   {}
func (StickEvent) isMsg()  {}
func (DeviceError) isMsg() {}

// WorkerOpts are options for a Worker.
type WorkerOpts struct {
	Verbose bool
	Metrics *metrics.Metrics
}

type tracked struct {
	index int
	dev   Device
}

type deviceEvent struct {
	t  *tracked
	ev Event
}

// Worker owns a Listener and the devices it delivers. Each device gets the
// smallest index not held by another connected device. After a device's
// Disconnect is reported its index is free, and no further events of that
// device are reported.
type Worker struct {
	opts     WorkerOpts
	listener Listener
	msgs     *mailbox.Mailbox[Msg]
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	// Owned by the run goroutine.
	devices map[int]*tracked
	events  chan deviceEvent
	wg      sync.WaitGroup
}

// NewWorker starts a worker that takes ownership of listener. Call Close to
// stop it; Messages is closed once it has exited.
func NewWorker(listener Listener, opts *WorkerOpts) *Worker {
	var xopts WorkerOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Metrics == nil {
		xopts.Metrics = metrics.New()
	}
	w := &Worker{
		opts:     xopts,
		listener: listener,
		msgs:     mailbox.New[Msg](),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		devices:  map[int]*tracked{},
		events:   make(chan deviceEvent),
	}
	go w.run()
	return w
}

// Messages returns the worker's messages in the order they occurred.
func (w *Worker) Messages() <-chan Msg {
	return w.msgs.Out()
}

// Close stops the worker, closing the listener and all devices.
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.stop)
	})
}

// Done is closed when the worker has exited and released all devices.
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
	defer w.msgs.Close()
	defer func() {
		w.listener.Close()
		for _, t := range w.devices {
			t.dev.Close()
		}
		w.opts.Metrics.DevicesConnected.Add(-int64(len(w.devices)))
		w.wg.Wait()
	}()

	arrivals := w.listener.Arrivals()
	errs := w.listener.Errors()
	for {
		select {
		case <-w.stop:
			w.logf("controller: stopping")
			return

		case dev, ok := <-arrivals:
			if !ok {
				w.logf("controller: listener stopped delivering devices")
				arrivals = nil
				continue
			}
			w.connect(dev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.opts.Metrics.DeviceErrors.Add(1)
			w.msgs.Send(DeviceError{Err: fmt.Errorf("listening for controllers: %w", err)})

		case de := <-w.events:
			// Events forwarded before a device was removed are stale.
			if w.devices[de.t.index] != de.t {
				continue
			}
			w.opts.Metrics.DeviceEvents.Add(1)
			w.msgs.Send(StickEvent{ID: de.t.dev.ID(), Index: de.t.index, Event: de.ev})
			if de.ev.Kind == EventDisconnect {
				w.logf("controller: %q at index %d disconnected", de.t.dev.Name(), de.t.index)
				delete(w.devices, de.t.index)
				w.opts.Metrics.DevicesConnected.Add(-1)
				de.t.dev.Close()
			}
		}
	}
}

func (w *Worker) connect(dev Device) {
	index := 0
	for w.devices[index] != nil {
		index++
	}
	t := &tracked{index: index, dev: dev}
	w.devices[index] = t
	w.opts.Metrics.DevicesConnected.Add(1)
	w.logf("controller: %q [%016X] connected at index %d", dev.Name(), dev.ID(), index)
	w.msgs.Send(NewDevice{ID: dev.ID(), Index: index, Name: dev.Name()})

	w.wg.Add(1)
	go w.forward(t)
}

// forward passes the events of one device to the run loop, ending with a
// Disconnect even if the device's channel closes without one.
func (w *Worker) forward(t *tracked) {
	defer w.wg.Done()

	send := func(ev Event) bool {
		select {
		case w.events <- deviceEvent{t, ev}:
			return true
		case <-w.stop:
			return false
		}
	}
	events := t.dev.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				send(Event{Kind: EventDisconnect})
				return
			}
			if !send(ev) || ev.Kind == EventDisconnect {
				return
			}
		case <-w.stop:
			return
		}
	}
}
