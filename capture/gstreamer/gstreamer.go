// Package gstreamer captures frames from a camera with the gstreamer tools.
package gstreamer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/capture"
	"github.com/vidoxide/vidoxide-go/capture/internal/jpegdir"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y gstreamer1.0-tools gstreamer1.0-plugins-good gstreamer1.0-plugins-base gstreamer1.0-plugins-base-apps")

// Mode is a raw video mode of a device.
type Mode struct {
	Width     int
	Height    int
	Framerate int
}

// Device is a video source found by gst-device-monitor-1.0.
type Device struct {
	ID    string // Device path, e.g. /dev/video0.
	Name  string
	Modes []Mode // Ordered by distance to the requested size.
}

// Opts has options for a new gstreamer capturer.
type Opts struct {
	Verbose  bool
	FPS      float64 // Default 30.
	Width    int     // Preferred frame size, default 640x480. The closest mode is used.
	Height   int
	DeviceID string // As retrieved from ListDevices. If empty, the first device is used.
}

// Capturer runs gst-launch-1.0, which writes JPEG images into a temporary
// directory.
type Capturer struct {
	opts   Opts
	mode   Mode
	dir    *jpegdir.Dir
	cancel context.CancelFunc
}

// Ensure that Capturer implements interface capture.Capturer.
var _ capture.Capturer = (*Capturer)(nil)

var (
	widthRegexp     = regexp.MustCompile("width=(?:\\(int\\))?([0-9]+)[^0-9]")
	heightRegexp    = regexp.MustCompile("height=(?:\\(int\\))?([0-9]+)[^0-9]")
	framerateRegexp = regexp.MustCompile("framerate=(?:\\(fraction\\))?([0-9]+)[^0-9]")
)

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// ListDevices returns the video sources with raw modes, with modes ordered by
// closeness to width x height. ListDevices returns an error if no devices are
// available.
func ListDevices(width, height int) ([]Device, error) {
	cmd := exec.Command("gst-device-monitor-1.0")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using gst-device-monitor-1.0: %w", err)
	}
	devs, err := parseDevices(string(buf), width, height)
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("no devices found")
	}
	return devs, nil
}

type monitorDevice struct {
	id, name, class string
	caps            []string
	inCaps          bool
}

// parseDevices parses the output of gst-device-monitor-1.0.
func parseDevices(s string, width, height int) ([]Device, error) {
	var found []monitorDevice
	var d *monitorDevice
	b := bufio.NewScanner(strings.NewReader(s))
	for b.Scan() {
		line := strings.TrimSpace(b.Text())
		if line == "" {
			continue
		}
		if line == "Device found:" {
			if d != nil {
				found = append(found, *d)
			}
			d = &monitorDevice{}
			continue
		}
		if d == nil {
			continue
		}
		value := func(sep string) string {
			return strings.TrimSpace(strings.SplitN(line, sep, 2)[1])
		}
		switch {
		case strings.HasPrefix(line, "name  :"):
			d.name = value(":")
		case strings.HasPrefix(line, "class :"):
			d.class = value(":")
		case strings.HasPrefix(line, "caps  :"):
			d.caps = append(d.caps, value(":"))
			d.inCaps = true
		case strings.HasPrefix(line, "properties:"):
			d.inCaps = false
		case d.inCaps:
			d.caps = append(d.caps, line)
		case strings.HasPrefix(line, "device.path ="):
			d.id = value("=")
		}
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	if d != nil {
		found = append(found, *d)
	}

	distance := func(m Mode) int {
		dw, dh := abs(m.Width-width), abs(m.Height-height)
		return dw*dh + dw + dh
	}

	devs := []Device{}
	for _, d := range found {
		if d.class != "Video/Source" || d.id == "" {
			continue
		}
		var modes []Mode
		for _, c := range d.caps {
			if !strings.HasPrefix(c, "video/x-raw") {
				continue
			}
			mw := widthRegexp.FindStringSubmatch(c)
			mh := heightRegexp.FindStringSubmatch(c)
			mf := framerateRegexp.FindStringSubmatch(c)
			if mw == nil || mh == nil || mf == nil {
				continue
			}
			w, werr := strconv.Atoi(mw[1])
			h, herr := strconv.Atoi(mh[1])
			f, ferr := strconv.Atoi(mf[1])
			if werr != nil || herr != nil || ferr != nil || w == 0 || h == 0 || f == 0 {
				continue
			}
			modes = append(modes, Mode{Width: w, Height: h, Framerate: f})
		}
		if len(modes) == 0 {
			continue
		}
		sort.SliceStable(modes, func(i, j int) bool {
			return distance(modes[i]) < distance(modes[j])
		})
		devs = append(devs, Device{ID: d.id, Name: d.name, Modes: modes})
	}
	return devs, nil
}

// NewCapturer starts gstreamer capturing from a camera. Callers must call
// Close to clean up.
func NewCapturer(opts *Opts) (c *Capturer, rerr error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Width == 0 || xopts.Height == 0 {
		xopts.Width, xopts.Height = 640, 480
	}
	if xopts.FPS == 0 {
		xopts.FPS = 30
	}

	devices, err := ListDevices(xopts.Width, xopts.Height)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	dev := devices[0]
	if xopts.DeviceID != "" {
		dev = Device{}
		for _, d := range devices {
			if d.ID == xopts.DeviceID {
				dev = d
				break
			}
		}
		if dev.ID == "" {
			return nil, fmt.Errorf("device %q not found", xopts.DeviceID)
		}
	}
	xopts.DeviceID = dev.ID

	tempDir, err := vidoxide.TempDir("vidoxide-gstreamer")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %w", err)
	}
	dir, err := jpegdir.Watch(tempDir, &jpegdir.Opts{Verbose: xopts.Verbose, Name: "capture/gstreamer", FPS: xopts.FPS})
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	c = &Capturer{opts: xopts, mode: dev.Modes[0], dir: dir}

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			c.Close()
		}
	}()

	args := pipeline(xopts.DeviceID, c.mode, tempDir)
	if xopts.Verbose {
		log.Printf("capture/gstreamer: starting gst-launch-1.0 %s", strings.Join(args, " "))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	cmd := exec.CommandContext(ctx, "gst-launch-1.0", args...)
	cmd.Dir = tempDir
	if xopts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("starting gstreamer with gst-launch-1.0: %w", err)
	}
	go func() {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("no more frames")
		}
		dir.Fail(fmt.Errorf("gst-launch-1.0 exited: %w", err))
	}()

	return c, nil
}

func pipeline(device string, m Mode, dir string) []string {
	return []string{
		"v4l2src", "device=" + device,
		"!", fmt.Sprintf("video/x-raw,width=%d,height=%d", m.Width, m.Height),
		"!", "videoconvert",
		"!", "jpegenc",
		"!", "multifilesink", "location=" + dir + "/frame%05d.jpg",
	}
}

// Mode returns the video mode used.
func (c *Capturer) Mode() Mode {
	return c.mode
}

// Capture waits for the next image written by gstreamer.
func (c *Capturer) Capture(ctx context.Context) (*vidoxide.Frame, error) {
	return c.dir.Capture(ctx)
}

// Close stops gstreamer and removes the temporary directory.
func (c *Capturer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.dir.Close()
}
