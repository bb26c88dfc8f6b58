// Package ffmpeg captures frames from a v4l2 camera by running ffmpeg, which
// writes JPEG images into a temporary directory.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/capture"
	"github.com/vidoxide/vidoxide-go/capture/internal/jpegdir"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y ffmpeg v4l-utils")

// Device is a camera that can be opened with NewCapturer.
type Device struct {
	Name string
	ID   string // Device node, e.g. /dev/video0.
}

// Opts has options for a new ffmpeg capturer.
type Opts struct {
	Verbose  bool
	FPS      float64 // Default 30.
	Width    int     // Default 640.
	Height   int     // Default 480.
	DeviceID string  // As retrieved from ListDevices. If empty, NewCapturer uses the first device returned by ListDevices.
}

// Capturer is a camera read through ffmpeg. Frames are RGB8, or Mono8 for
// grayscale JPEG.
type Capturer struct {
	opts   Opts
	dir    *jpegdir.Dir
	cancel context.CancelFunc
}

// Ensure that Capturer implements interface capture.Capturer.
var _ capture.Capturer = (*Capturer)(nil)

// ListDevices returns a list of devices that can be used for capturing.
// ListDevices returns an error if no devices are available.
func ListDevices() ([]Device, error) {
	cmd := exec.Command("v4l2-ctl", "--list-devices")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using v4l2-ctl: %w", err)
	}
	devices := parseDevices(string(buf))
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices available")
	}
	return devices, nil
}

// parseDevices parses the output of "v4l2-ctl --list-devices": a line naming a
// device followed by tab-indented device nodes.
func parseDevices(s string) []Device {
	var curDevice string
	devices := []Device{}
	for _, line := range strings.Split(s, "\n") {
		if !strings.HasPrefix(line, "\t") {
			curDevice = strings.TrimSpace(line)
			continue
		}
		if curDevice == "" || strings.HasPrefix(curDevice, "bcm2835-") {
			continue
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/dev/video") {
			continue
		}
		devices = append(devices, Device{
			Name: fmt.Sprintf("%s (%s)", curDevice, line),
			ID:   line,
		})
	}
	return devices
}

// NewCapturer starts ffmpeg capturing from a camera. Callers must call Close to
// clean up.
func NewCapturer(opts *Opts) (c *Capturer, rerr error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.DeviceID == "" {
		devs, err := ListDevices()
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		xopts.DeviceID = devs[0].ID
	}
	if xopts.Width == 0 || xopts.Height == 0 {
		xopts.Width, xopts.Height = 640, 480
	}
	if xopts.FPS == 0 {
		xopts.FPS = 30
	}

	tempDir, err := vidoxide.TempDir("vidoxide-ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %w", err)
	}
	dir, err := jpegdir.Watch(tempDir, &jpegdir.Opts{Verbose: xopts.Verbose, Name: "capture/ffmpeg", FPS: xopts.FPS})
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	c = &Capturer{opts: xopts, dir: dir}

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			c.Close()
		}
	}()

	args := []string{
		"-framerate", fmt.Sprintf("%g", c.opts.FPS),
		"-video_size", fmt.Sprintf("%dx%d", c.opts.Width, c.opts.Height),
		"-c:v", "mjpeg",
		"-i", c.opts.DeviceID,
		"-f", "image2",
		"-c:v", "copy",
		"-bsf:v", "mjpeg2jpeg",
		"-qscale:v", "2",
		"frame%d.jpg",
	}
	if c.opts.Verbose {
		log.Printf("capture/ffmpeg: starting ffmpeg with args %s, writing to %s", args, tempDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	ffmpeg := exec.CommandContext(ctx, "ffmpeg", args...)
	ffmpeg.Dir = tempDir
	if c.opts.Verbose {
		ffmpeg.Stdout = os.Stdout
		ffmpeg.Stderr = os.Stderr
	}
	if err := ffmpeg.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("starting command ffmpeg: %w", err)
	}
	go func() {
		err := ffmpeg.Wait()
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("no more frames")
		}
		dir.Fail(fmt.Errorf("ffmpeg exited: %w", err))
	}()

	return c, nil
}

// Capture waits for the next image written by ffmpeg.
func (c *Capturer) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	return c.dir.Capture(ctx)
}

// Close stops ffmpeg and removes the temporary directory.
func (c *Capturer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.dir.Close()
}
