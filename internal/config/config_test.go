package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidoxide/vidoxide-go/controller"
	"github.com/vidoxide/vidoxide-go/output"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidoxide.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, Validate(cfg))

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, output.FormatSER, cfg.RecordingFormat())
	assert.Equal(t, 500*time.Millisecond, cfg.HistogramInterval())
	assert.Equal(t, int64(2*1024*1024), cfg.MaxBufferedKiB())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
verbose: true
metrics_addr: ":9090"
recording:
  dir: /data/captures
  format: tif
  compress: true
  telescope: C8
histogram:
  interval_ms: 0
controller:
  actions:
    FocuserIn: "0000000000000001;pad;Axis2;0;1"
    ToggleRecording: "0000000000000001;pad;Button0"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "/data/captures", cfg.Recording.Dir)
	assert.Equal(t, output.FormatTIFF, cfg.RecordingFormat())
	assert.True(t, cfg.Recording.Compress)
	assert.Equal(t, "C8", cfg.Recording.Telescope)
	assert.Equal(t, "frame", cfg.Recording.Prefix, "unset fields keep defaults")
	assert.Equal(t, time.Duration(0), cfg.HistogramInterval())
	assert.Equal(t, 25.0, cfg.Capture.FPS)
	assert.Equal(t, "/dev/input", cfg.Controller.Dir)

	a, err := cfg.Assignments()
	require.NoError(t, err)
	assert.Len(t, a, 2)
	assert.Equal(t, "Button0", a[controller.TargetToggleRecording].Event)
}

func TestLoadInvalid(t *testing.T) {
	for name, text := range map[string]string{
		"syntax":   "recording: [",
		"format":   "recording:\n  format: avi\n",
		"fps":      "capture:\n  fps: 0\n",
		"buffer":   "capture:\n  max_buffered_mib: -1\n",
		"interval": "histogram:\n  interval_ms: -5\n",
		"dir":      "recording:\n  dir: \"\"\n",
		"action":   "controller:\n  actions:\n    MountAxis1Pos: \"0000000000000001;pad;Button0\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, text))
			assert.Error(t, err)
		})
	}
}
