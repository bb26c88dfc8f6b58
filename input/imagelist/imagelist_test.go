package imagelist

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vidoxide "github.com/vidoxide/vidoxide-go"
)

func TestImageList(t *testing.T) {
	dir := t.TempDir()

	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.SetGray(1, 1, color.Gray{Y: 77})
	grayPath := filepath.Join(dir, "a.png")
	require.NoError(t, imaging.Save(gray, grayPath))

	rgb := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	rgb.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	rgbPath := filepath.Join(dir, "b.bmp")
	require.NoError(t, imaging.Save(rgb, rgbPath))

	badPath := filepath.Join(dir, "c.png")
	require.NoError(t, os.WriteFile(badPath, []byte("not a png"), 0o644))

	l, err := New([]string{grayPath, rgbPath, badPath, filepath.Join(dir, "missing.png")}, nil)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, 4, l.NumImages())

	f, err := l.Image(0)
	require.NoError(t, err)
	assert.Equal(t, vidoxide.PixelFormatMono8, f.Format)
	assert.Equal(t, byte(77), f.Line(1)[1])

	f, err = l.Image(1)
	require.NoError(t, err)
	assert.Equal(t, vidoxide.PixelFormatRGB8, f.Format)
	assert.Equal(t, []byte{200, 100, 50}, f.Line(0)[:3])

	for _, index := range []int{2, 3} {
		_, err = l.Image(index)
		var ioerr *vidoxide.IOError
		require.True(t, errors.As(err, &ioerr), "index %d: %v", index, err)
		assert.Equal(t, index, ioerr.Index)
	}

	// Earlier failures do not affect other indices.
	_, err = l.Image(0)
	assert.NoError(t, err)

	_, err = l.Image(4)
	assert.True(t, errors.Is(err, vidoxide.ErrIndexOutOfRange))
}

func TestEmptyList(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}
