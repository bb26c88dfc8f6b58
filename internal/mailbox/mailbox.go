// Package mailbox provides an unbounded, ordered channel between one producer
// and one consumer.
package mailbox

import "sync/atomic"

// Mailbox queues values sent on In until they are received from Out. Sends
// never wait for the receiver. Values are delivered in send order.
//
// Closing In (or calling Close) closes Out once all queued values have been
// received.
type Mailbox[T any] struct {
	in     chan T
	out    chan T
	queued atomic.Int64
}

// New starts a mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go m.pump()
	return m
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)

	var queue []T
	var head int
	in := m.in
	for in != nil || head < len(queue) {
		var out chan T
		var next T
		if head < len(queue) {
			out = m.out
			next = queue[head]
		}
		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, v)
			m.queued.Add(1)
		case out <- next:
			var zero T
			queue[head] = zero
			head++
			m.queued.Add(-1)
			if head == len(queue) {
				queue = queue[:0]
				head = 0
			} else if head > 64 && head*2 > len(queue) {
				n := copy(queue, queue[head:])
				clear(queue[n:])
				queue = queue[:n]
				head = 0
			}
		}
	}
}

// In returns the sending side. The pump always accepts, so a send completes
// without waiting for the receiver.
func (m *Mailbox[T]) In() chan<- T {
	return m.in
}

// Out returns the receiving side.
func (m *Mailbox[T]) Out() <-chan T {
	return m.out
}

// Send queues v. It must not be called after Close.
func (m *Mailbox[T]) Send(v T) {
	m.in <- v
}

// Close closes the sending side.
func (m *Mailbox[T]) Close() {
	close(m.in)
}

// Len returns the number of values waiting to be received.
func (m *Mailbox[T]) Len() int {
	return int(m.queued.Load())
}
