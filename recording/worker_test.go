package recording

import (
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vidoxide "github.com/vidoxide/vidoxide-go"
	inser "github.com/vidoxide/vidoxide-go/input/ser"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
	outser "github.com/vidoxide/vidoxide-go/output/ser"
)

type fakeWriter struct {
	mu        sync.Mutex
	regions   []image.Rectangle
	finalized int
	failAt    int
}

func (w *fakeWriter) Write(f *vidoxide.Frame, region image.Rectangle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && len(w.regions)+1 == w.failAt {
		return errors.New("disk full")
	}
	w.regions = append(w.regions, region)
	return nil
}

func (w *fakeWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized++
	return nil
}

func (w *fakeWriter) state() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.regions), w.finalized
}

func frame(t *testing.T) *vidoxide.Frame {
	t.Helper()
	f, err := vidoxide.NewFrame(64, 32, vidoxide.PixelFormatMono8)
	require.NoError(t, err)
	return f
}

// nextReport returns the next report other than Info.
func nextReport(t *testing.T, w *Worker) Report {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-w.Reports():
			require.True(t, ok, "reports closed")
			if _, ok := r.(Info); ok {
				continue
			}
			return r
		case <-timeout:
			t.Fatal("no report")
		}
	}
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	w.Close()
	for {
		select {
		case _, ok := <-w.Reports():
			if !ok {
				<-w.Done()
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestJobsRunInOrder(t *testing.T) {
	buf := &Buffer{}
	m := metrics.New()
	w := NewWorker(&WorkerOpts{Buffer: buf, Metrics: m})

	fw1, fw2 := &fakeWriter{}, &fakeWriter{}
	job1, send1 := NewJob(fw1)
	job2, send2 := NewJob(fw2)
	w.Add(job1)
	w.Add(job2)

	// The second job's frames wait until the first job is finished.
	f := frame(t)
	buf.Add(FrameKiB(f) * 3)
	send2 <- Captured{Frame: f}
	send2 <- Finished{}
	send1 <- Captured{Frame: f, Region: image.Rect(0, 0, 8, 8)}
	send1 <- Captured{Frame: f}
	send1 <- Finished{}

	r := nextReport(t, w)
	assert.Equal(t, JobFinished{JobID: job1.ID, Frames: 2}, r)
	r = nextReport(t, w)
	assert.Equal(t, JobFinished{JobID: job2.ID, Frames: 1}, r)

	n, fin := fw1.state()
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, fin)
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 8, 8), {}}, fw1.regions)
	assert.Equal(t, int64(0), buf.KiB())
	assert.Equal(t, uint64(3), m.RecordingFrames.Load())
	assert.Equal(t, uint64(64+2*64*32), m.RecordingBytes.Load())

	waitDone(t, w)
}

func TestCaptureEndedWithoutFinished(t *testing.T) {
	w := NewWorker(nil)
	fw := &fakeWriter{}
	job, send := NewJob(fw)
	w.Add(job)
	send <- Captured{Frame: frame(t)}
	close(send)

	assert.Equal(t, CaptureThreadEnded{JobID: job.ID}, nextReport(t, w))
	assert.Equal(t, JobFinished{JobID: job.ID, Frames: 1}, nextReport(t, w))
	_, fin := fw.state()
	assert.Equal(t, 1, fin)

	// The worker keeps taking jobs.
	fw2 := &fakeWriter{}
	job2, send2 := NewJob(fw2)
	w.Add(job2)
	send2 <- Finished{}
	assert.Equal(t, JobFinished{JobID: job2.ID}, nextReport(t, w))

	waitDone(t, w)
}

func TestWriteErrorDiscardsRest(t *testing.T) {
	buf := &Buffer{}
	m := metrics.New()
	w := NewWorker(&WorkerOpts{Buffer: buf, Metrics: m})
	fw := &fakeWriter{failAt: 2}
	job, send := NewJob(fw)
	w.Add(job)

	f := frame(t)
	for i := 0; i < 4; i++ {
		buf.Add(FrameKiB(f))
		send <- Captured{Frame: f}
	}
	send <- Finished{}

	r := nextReport(t, w)
	require.IsType(t, Error{}, r)
	assert.Equal(t, job.ID, r.(Error).JobID)
	assert.ErrorContains(t, r.(Error).Err, "disk full")
	assert.Equal(t, JobFinished{JobID: job.ID, Frames: 1}, nextReport(t, w))
	assert.Equal(t, int64(0), buf.KiB(), "discarded frames are released")
	assert.Equal(t, uint64(1), m.RecordingErrors.Load())

	waitDone(t, w)
}

func TestCloseWaitsForJobs(t *testing.T) {
	w := NewWorker(nil)
	fw1, fw2 := &fakeWriter{}, &fakeWriter{}
	job1, send1 := NewJob(fw1)
	job2, send2 := NewJob(fw2)
	w.Add(job1)
	w.Add(job2)
	send1 <- Captured{Frame: frame(t)}
	send2 <- Captured{Frame: frame(t)}
	close(send2)
	w.Close()

	// Frames sent before the job ends are written after Close.
	send1 <- Captured{Frame: frame(t)}
	send1 <- Finished{}

	var reports []Report
	for r := range w.Reports() {
		if _, ok := r.(Info); !ok {
			reports = append(reports, r)
		}
	}
	<-w.Done()
	assert.Equal(t, []Report{
		JobFinished{JobID: job1.ID, Frames: 2},
		CaptureThreadEnded{JobID: job2.ID},
		JobFinished{JobID: job2.ID, Frames: 1},
	}, reports)
	_, fin1 := fw1.state()
	_, fin2 := fw2.state()
	assert.Equal(t, 1, fin1)
	assert.Equal(t, 1, fin2)
}

func TestInfo(t *testing.T) {
	buf := &Buffer{}
	buf.Add(3 * 1024)
	w := NewWorker(&WorkerOpts{Buffer: buf, InfoInterval: 10 * time.Millisecond})
	job, send := NewJob(&fakeWriter{})
	w.Add(job)

	select {
	case r := <-w.Reports():
		info, ok := r.(Info)
		require.True(t, ok, "%#v", r)
		assert.Equal(t, 1, info.Jobs)
		assert.Equal(t, 3.0, info.BufferedMiB)
		assert.Contains(t, info.String(), "Recording jobs: 1;")
		assert.Contains(t, info.String(), "buffered: 3 MiB")
	case <-time.After(5 * time.Second):
		t.Fatal("no info")
	}

	send <- Finished{}
	waitDone(t, w)
}

func TestRecordToSER(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.ser")
	sw, err := outser.Create(path, nil)
	require.NoError(t, err)

	w := NewWorker(nil)
	job, send := NewJob(sw)
	w.Add(job)
	f := frame(t)
	for i := 0; i < 3; i++ {
		send <- Captured{Frame: f, Region: image.Rect(0, 0, 16, 8)}
	}
	send <- Finished{}
	assert.Equal(t, JobFinished{JobID: job.ID, Frames: 3}, nextReport(t, w))
	waitDone(t, w)

	v, err := inser.Open(path, nil)
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, 3, v.NumImages())
	img, err := v.Image(2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
}

func TestLimit(t *testing.T) {
	start := time.Unix(1000, 0)
	assert.True(t, FrameCount(3).Reached(3, start, start))
	assert.False(t, FrameCount(3).Reached(2, start, start))
	assert.True(t, ForDuration(time.Second).Reached(0, start, start.Add(time.Second)))
	assert.False(t, ForDuration(time.Second).Reached(100, start, start.Add(time.Millisecond)))
	assert.False(t, Forever.Reached(1<<30, start, start.Add(24*time.Hour)))
	assert.Equal(t, "forever", Forever.String())
	assert.Equal(t, "5 frames", FrameCount(5).String())
}
