package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderAndUnbounded(t *testing.T) {
	m := New[int]()

	// No receiver yet: all sends must complete.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			m.Send(i)
		}
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sends blocked without a receiver")
	}

	want := 0
	for v := range m.Out() {
		require.Equal(t, want, v)
		want++
	}
	assert.Equal(t, 10000, want)
	assert.Equal(t, 0, m.Len())
}

func TestInterleaved(t *testing.T) {
	m := New[string]()
	m.Send("a")
	assert.Equal(t, "a", <-m.Out())
	m.In() <- "b"
	m.Send("c")
	assert.Equal(t, "b", <-m.Out())
	assert.Equal(t, "c", <-m.Out())
	m.Close()
	_, ok := <-m.Out()
	assert.False(t, ok)
}

func TestCloseEmpty(t *testing.T) {
	m := New[struct{}]()
	m.Close()
	select {
	case _, ok := <-m.Out():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Out not closed")
	}
}
