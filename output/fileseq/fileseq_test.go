package fileseq

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/output"
)

func TestTIFFKeeps16Bits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seq")
	w, err := New(dir, output.FormatTIFF, &Opts{Prefix: "moon", Compress: true})
	require.NoError(t, err)

	f, err := vidoxide.NewFrame(3, 2, vidoxide.PixelFormatMono16)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		vidoxide.SetSample16(f.Pix, i, uint16(0x1000*i+0x34))
	}
	require.NoError(t, w.Write(f, image.Rectangle{}))
	require.NoError(t, w.Write(f, image.Rectangle{}))
	require.NoError(t, w.Finalize())
	assert.Equal(t, 2, w.Frames())

	assert.Equal(t, filepath.Join(dir, "moon_00001.tif"), w.Path(1))
	file, err := os.Open(w.Path(1))
	require.NoError(t, err)
	defer file.Close()

	img, err := tiff.Decode(file)
	require.NoError(t, err)
	g, ok := img.(*image.Gray16)
	require.True(t, ok, "decoded %T", img)
	assert.Equal(t, uint16(0x2034), g.Gray16At(2, 0).Y)
	assert.Equal(t, uint16(0x5034), g.Gray16At(2, 1).Y)

	assert.Error(t, w.Write(f, image.Rectangle{}), "finalized")
}

func TestBMPRegion(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, output.FormatBMP, nil)
	require.NoError(t, err)

	f, err := vidoxide.NewFrame(4, 4, vidoxide.PixelFormatRGB8)
	require.NoError(t, err)
	for i := range f.Pix {
		f.Pix[i] = byte(i)
	}
	require.NoError(t, w.Write(f, image.Rect(2, 1, 4, 3)))
	assert.Error(t, w.Write(f, image.Rect(0, 0, 1, 1)), "size change")

	file, err := os.Open(filepath.Join(dir, "frame_00000.bmp"))
	require.NoError(t, err)
	defer file.Close()
	img, err := bmp.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())

	r, g, b, _ := img.At(0, 0).RGBA()
	// Pixel (2, 1) starts at byte 1*12 + 2*3 = 18.
	assert.Equal(t, []uint32{18, 19, 20}, []uint32{r >> 8, g >> 8, b >> 8})
}

func TestRejectsSER(t *testing.T) {
	_, err := New(t.TempDir(), output.FormatSER, nil)
	assert.Error(t, err)
}
