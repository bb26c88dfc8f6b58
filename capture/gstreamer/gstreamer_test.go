package gstreamer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monitorOutput = `Probing devices...


Device found:

	name  : Built-in Audio Analog Stereo
	class : Audio/Source
	caps  : audio/x-raw, format=(string){ S16LE, S32LE }, layout=(string)interleaved, rate=(int)[ 1, 384000 ], channels=(int)[ 1, 32 ];
	properties:
		device.api = alsa

Device found:

	name  : ZWO ASI224MC
	class : Video/Source
	caps  : video/x-raw, format=(string)YUY2, width=(int)1280, height=(int)960, framerate=(fraction)30/1;
	        video/x-raw, format=(string)YUY2, width=(int)640, height=(int)480, framerate=(fraction)60/1;
	        image/jpeg, width=(int)1920, height=(int)1080, framerate=(fraction)30/1;
	        video/x-raw, format=(string)YUY2, width=(int)320, height=(int)240, framerate=(fraction)0/1;
	properties:
		device.path = /dev/video2
		udev-probed = true
	gst-launch-1.0 v4l2src device=/dev/video2 ! ...

Device found:

	name  : Dummy
	class : Video/Source
	caps  : image/jpeg, width=(int)640, height=(int)480, framerate=(fraction)30/1;
	properties:
		device.path = /dev/video4
`

func TestParseDevices(t *testing.T) {
	devs, err := parseDevices(monitorOutput, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, []Device{{
		ID:   "/dev/video2",
		Name: "ZWO ASI224MC",
		Modes: []Mode{
			{Width: 640, Height: 480, Framerate: 60},
			{Width: 1280, Height: 960, Framerate: 30},
		},
	}}, devs)

	devs, err = parseDevices(monitorOutput, 1280, 1024)
	require.NoError(t, err)
	assert.Equal(t, Mode{Width: 1280, Height: 960, Framerate: 30}, devs[0].Modes[0])

	devs, err = parseDevices("", 640, 480)
	require.NoError(t, err)
	assert.Empty(t, devs)
}

func TestPipeline(t *testing.T) {
	args := pipeline("/dev/video2", Mode{Width: 640, Height: 480}, "/tmp/x")
	assert.Equal(t, []string{
		"v4l2src", "device=/dev/video2",
		"!", "video/x-raw,width=640,height=480",
		"!", "videoconvert",
		"!", "jpegenc",
		"!", "multifilesink", "location=/tmp/x/frame%05d.jpg",
	}, args)
}
