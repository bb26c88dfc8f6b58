// Package jpegdir delivers the JPEG images an external camera program writes
// into a directory as frames.
package jpegdir

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"

	vidoxide "github.com/vidoxide/vidoxide-go"
)

// Opts are options for Watch.
type Opts struct {
	Verbose bool
	Name    string  // Prefix for log lines, e.g. "capture/ffmpeg".
	FPS     float64 // Images arriving faster are skipped. Default 30.

	// Created selects images on their create event instead of their write
	// event, for programs that write an image with a single rename.
	Created bool
}

// Dir watches a directory for images. Decoded images are removed. Frames are
// RGB8, or Mono8 for grayscale JPEG.
type Dir struct {
	opts    Opts
	path    string
	frames  chan *vidoxide.Frame
	errs    chan error
	watcher *fsnotify.Watcher
}

// Watch starts watching path. Close removes path.
func Watch(path string, opts *Opts) (*Dir, error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.FPS == 0 {
		xopts.FPS = 30
	}
	if !(xopts.FPS > 0) {
		return nil, fmt.Errorf("invalid frame rate %v", xopts.FPS)
	}
	if xopts.Name == "" {
		xopts.Name = "jpegdir"
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("registering file change watcher for %s: %w", path, err)
	}
	d := &Dir{
		opts:    xopts,
		path:    path,
		frames:  make(chan *vidoxide.Frame, 1),
		errs:    make(chan error, 1),
		watcher: watcher,
	}
	go d.run()
	return d, nil
}

// Path returns the watched directory.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) logf(format string, args ...interface{}) {
	if d.opts.Verbose {
		log.Printf(d.opts.Name+": "+format, args...)
	}
}

// Fail makes Capture return err. Only the first error is kept.
func (d *Dir) Fail(err error) {
	select {
	case d.errs <- err:
	default:
	}
}

func (d *Dir) wanted(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".jpg") {
		return false
	}
	if d.opts.Created {
		return ev.Op&fsnotify.Create != 0
	}
	return ev.Op&fsnotify.Write != 0
}

func (d *Dir) run() {
	interval := time.Duration(float64(time.Second) / d.opts.FPS)
	var last time.Time
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.wanted(ev) {
				continue
			}
			now := time.Now()
			if now.Sub(last) < interval*9/10 {
				if err := os.Remove(ev.Name); err != nil {
					d.logf("removing skipped image %q: %v", ev.Name, err)
				}
				continue
			}
			buf, err := os.ReadFile(ev.Name)
			if err != nil {
				d.logf("reading written file %q: %v", ev.Name, err)
				continue
			}
			img, err := imaging.Decode(bytes.NewReader(buf))
			if err != nil {
				d.logf("decoding %q: %v (may be partially written)", ev.Name, err)
				continue
			}
			if err := os.Remove(ev.Name); err != nil {
				d.logf("removing image %s: %v", ev.Name, err)
			}
			f, err := vidoxide.FrameFromImage(img)
			if err != nil {
				d.logf("converting %q: %v", ev.Name, err)
				continue
			}
			select {
			case d.frames <- f:
				last = now
			default:
				d.logf("dropping frame, consumer still busy")
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.Fail(fmt.Errorf("watching for changes: %w", err))
		}
	}
}

// Capture waits for the next image.
func (d *Dir) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	select {
	case f := <-d.frames:
		return f, nil
	case err := <-d.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops watching and removes the directory.
func (d *Dir) Close() error {
	d.watcher.Close()
	return os.RemoveAll(d.path)
}
