// Package imagesnap captures frames with the imagesnap command for macOS.
package imagesnap

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

// Device is a camera known to imagesnap. Its name is also its ID.
type Device struct {
	Name string
	ID   string
}

// ListDevices returns all image capturing devices available to imagesnap.
// ListDevices returns an error if no devices are available.
func ListDevices() ([]Device, error) {
	cmd := exec.Command("imagesnap", "-l")
	buf, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing devices with imagesnap -l: %w", err)
	}
	return parseDevices(string(buf))
}

func parseDevices(s string) ([]Device, error) {
	devs := []Device{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		var name string
		switch {
		case strings.HasPrefix(line, "=> "):
			// Newer format, example: "=> FaceTime HD Camera (Built-in)"
			name = line[len("=> "):]
		case strings.HasPrefix(line, "<"):
			// Older format, example: "<AVCaptureDALDevice: 0x7fa2c7852fd0 [FaceTime HD Camera (Built-in)][0x8020000005ac8514]>"
			t := strings.Split(line, "[")
			if len(t) < 2 {
				continue
			}
			name = strings.Split(t[1], "]")[0]
		default:
			continue
		}
		devs = append(devs, Device{Name: name, ID: name})
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("no devices available")
	}
	return devs, nil
}

// Opts has options for a new imagesnap capturer.
type Opts struct {
	Verbose  bool
	FPS      float64 // Default 2; imagesnap is a still camera tool.
	DeviceID string  // As returned by ListDevices. If empty, the first device is used.
}

// Capturer runs imagesnap in time-lapse mode, writing images to a temporary
// directory.
type Capturer struct {
	dir    *jpegdir.Dir
	cancel context.CancelFunc
}

// Ensure that Capturer implements interface capture.Capturer.
var _ capture.Capturer = (*Capturer)(nil)

// NewCapturer starts imagesnap. Callers must call Close to clean up.
func NewCapturer(opts *Opts) (c *Capturer, rerr error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.FPS == 0 {
		xopts.FPS = 2
	}
	if !(xopts.FPS > 0) {
		return nil, fmt.Errorf("invalid frame rate %v", xopts.FPS)
	}
	if xopts.DeviceID == "" {
		devs, err := ListDevices()
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		xopts.DeviceID = devs[0].ID
	}

	tempDir, err := vidoxide.TempDir("vidoxide-imagesnap")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %w", err)
	}
	dir, err := jpegdir.Watch(tempDir, &jpegdir.Opts{Verbose: xopts.Verbose, Name: "capture/imagesnap", FPS: xopts.FPS, Created: true})
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	c = &Capturer{dir: dir}

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			c.Close()
		}
	}()

	args := []string{
		"-d", xopts.DeviceID,
		"-t", fmt.Sprintf("%.2f", 1/xopts.FPS),
	}
	if xopts.Verbose {
		log.Printf("capture/imagesnap: starting imagesnap with args %s in %s", args, tempDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	cmd := exec.CommandContext(ctx, "imagesnap", args...)
	cmd.Dir = tempDir
	if xopts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting imagesnap: %w", err)
	}
	go func() {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("no more frames")
		}
		dir.Fail(fmt.Errorf("imagesnap exited: %w", err))
	}()

	return c, nil
}

// Capture waits for the next snapshot.
func (c *Capturer) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	return c.dir.Capture(ctx)
}

// Close stops imagesnap and removes the temporary directory.
func (c *Capturer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.dir.Close()
}
