package ser_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/input/ser"
	outser "github.com/vidoxide/vidoxide-go/output/ser"
)

// writeSER assembles a file from a header and raw frame data.
func writeSER(t *testing.T, h ser.Header, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	require.Equal(t, ser.HeaderSize, buf.Len())
	buf.Write(data)
	path := filepath.Join(t.TempDir(), "test.ser")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func header(color ser.ColorID, width, height, bits, frames uint32) ser.Header {
	h := ser.Header{
		ColorID:        color,
		Endianness:     ser.EndiannessLittle,
		Width:          width,
		Height:         height,
		BitsPerChannel: bits,
		FrameCount:     frames,
	}
	ser.SetText(h.Signature[:], "LUCAM-RECORDER")
	return h
}

func TestHeaderLayout(t *testing.T) {
	h := header(ser.ColorMono, 1, 1, 8, 0x01020304)
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	b := buf.Bytes()
	assert.Len(t, b, ser.HeaderSize)
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(b[ser.FrameCountOffset:]))
	assert.Equal(t, "LUCAM-RECORDER", string(b[:14]))
}

func TestBGRDecodesToRGB(t *testing.T) {
	// 4x2 BGR8, one frame: blue channel first on disk.
	data := []byte{
		0, 0, 255, 0, 255, 0, 255, 0, 0, 1, 2, 3,
		4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	}
	path := writeSER(t, header(ser.ColorBGR, 4, 2, 8, 1), data)

	v, err := ser.Open(path, nil)
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, 1, v.NumImages())
	f, err := v.Image(0)
	require.NoError(t, err)
	assert.Equal(t, vidoxide.PixelFormatRGB8, f.Format)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.Equal(t, []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 3, 2, 1}, f.Line(0))
	assert.Equal(t, []byte{6, 5, 4, 9, 8, 7, 12, 11, 10, 15, 14, 13}, f.Line(1))
}

func TestBGR16MovesWholeSamples(t *testing.T) {
	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:], 0x0102) // B
	binary.LittleEndian.PutUint16(data[2:], 0x0304) // G
	binary.LittleEndian.PutUint16(data[4:], 0x0506) // R
	path := writeSER(t, header(ser.ColorBGR, 1, 1, 16, 1), data)

	v, err := ser.Open(path, nil)
	require.NoError(t, err)
	defer v.Close()

	f, err := v.Image(0)
	require.NoError(t, err)
	assert.Equal(t, vidoxide.PixelFormatRGB16, f.Format)
	line := f.Line(0)
	assert.Equal(t, uint16(0x0506), vidoxide.Sample16(line, 0))
	assert.Equal(t, uint16(0x0304), vidoxide.Sample16(line, 1))
	assert.Equal(t, uint16(0x0102), vidoxide.Sample16(line, 2))
}

func TestEndiannessFlag(t *testing.T) {
	values := []uint16{0x1234, 0xabcd, 0x00ff, 0xff00}

	le := make([]byte, 8)
	be := make([]byte, 8)
	for i, v := range values {
		binary.LittleEndian.PutUint16(le[2*i:], v)
		binary.BigEndian.PutUint16(be[2*i:], v)
	}

	hBig := header(ser.ColorMono, 2, 2, 16, 1)
	hBig.Endianness = ser.EndiannessBig
	hLittle := header(ser.ColorMono, 2, 2, 12, 1)

	for name, c := range map[string]struct {
		h    ser.Header
		data []byte
	}{
		"big":    {hBig, be},
		"little": {hLittle, le},
	} {
		t.Run(name, func(t *testing.T) {
			v, err := ser.Open(writeSER(t, c.h, c.data), nil)
			require.NoError(t, err)
			defer v.Close()

			f, err := v.Image(0)
			require.NoError(t, err)
			assert.Equal(t, vidoxide.PixelFormatMono16, f.Format)
			for i, want := range values {
				assert.Equal(t, want, vidoxide.Sample16(f.Line(i/2), i%2), "sample %d", i)
			}
		})
	}
}

func TestBigEndianMatchesManualSwap(t *testing.T) {
	raw := []byte{0x12, 0x34, 0x56, 0x78}
	h := header(ser.ColorMono, 2, 1, 16, 1)
	h.Endianness = ser.EndiannessBig
	v, err := ser.Open(writeSER(t, h, raw), nil)
	require.NoError(t, err)
	defer v.Close()
	got, err := v.Image(0)
	require.NoError(t, err)

	// Reference: interpret the bytes as little-endian, then swap manually.
	ref := &vidoxide.Frame{Width: 2, Height: 1, Stride: 4, Format: vidoxide.PixelFormatMono16, Pix: make([]byte, 4)}
	vidoxide.SetSample16(ref.Pix, 0, binary.LittleEndian.Uint16(raw[0:]))
	vidoxide.SetSample16(ref.Pix, 1, binary.LittleEndian.Uint16(raw[2:]))
	ref.SwapWords16()

	assert.Equal(t, ref.Pix, got.Pix)
}

func TestColorIDs(t *testing.T) {
	for _, c := range []struct {
		color  ser.ColorID
		bits   uint32
		format vidoxide.PixelFormat
	}{
		{ser.ColorMono, 8, vidoxide.PixelFormatMono8},
		{ser.ColorMono, 1, vidoxide.PixelFormatMono8},
		{ser.ColorMono, 10, vidoxide.PixelFormatMono16},
		{ser.ColorRGB, 8, vidoxide.PixelFormatRGB8},
		{ser.ColorRGB, 16, vidoxide.PixelFormatRGB16},
		{ser.ColorBGR, 8, vidoxide.PixelFormatRGB8},
		{ser.ColorBGR, 14, vidoxide.PixelFormatRGB16},
	} {
		v, err := ser.Open(writeSER(t, header(c.color, 3, 2, c.bits, 0), nil), nil)
		require.NoError(t, err, "color %v, %d bits", c.color, c.bits)
		assert.Equal(t, c.format, v.PixelFormat(), "color %v, %d bits", c.color, c.bits)
		assert.Equal(t, 0, v.NumImages())
		v.Close()
	}
}

func TestUnsupportedHeaders(t *testing.T) {
	for _, h := range []ser.Header{
		header(ser.ColorBayerRGGB, 2, 2, 8, 1),
		header(ser.ColorBayerBGGR, 2, 2, 16, 1),
		header(ser.ColorBayerCYYM, 2, 2, 8, 1),
		header(ser.ColorBayerMYYC, 2, 2, 8, 1),
		header(ser.ColorID(42), 2, 2, 8, 1),
		header(ser.ColorMono, 2, 2, 17, 1),
		header(ser.ColorRGB, 2, 2, 32, 1),
		header(ser.ColorMono, 0xffffffff, 0xffffffff, 16, 1),
		header(ser.ColorRGB, 0x80000000, 0x80000000, 16, 1),
		header(ser.ColorMono, 0, 2, 8, 1),
		header(ser.ColorMono, 2, 0, 8, 1),
	} {
		_, err := ser.Open(writeSER(t, h, make([]byte, 64)), nil)
		var ferr *vidoxide.FormatError
		assert.True(t, errors.As(err, &ferr), "color %v, %d bits: %v", h.ColorID, h.BitsPerChannel, err)
	}

	_, err := ser.Open(writeSER(t, header(ser.ColorBayerGRBG, 2, 2, 8, 1), nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported pixel format")
}

func TestTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.ser")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))
	_, err := ser.Open(path, nil)
	var ferr *vidoxide.FormatError
	assert.True(t, errors.As(err, &ferr))
}

func TestImageIndexAndShortFile(t *testing.T) {
	// Header claims 3 frames but only 1.5 are present.
	path := writeSER(t, header(ser.ColorMono, 2, 2, 8, 3), []byte{1, 2, 3, 4, 5, 6})
	v, err := ser.Open(path, &ser.Opts{Verbose: true})
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, 3, v.NumImages())

	f, err := v.Image(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Pix)

	var ioerr *vidoxide.IOError
	_, err = v.Image(1)
	require.True(t, errors.As(err, &ioerr), "partial frame: %v", err)
	assert.Equal(t, 1, ioerr.Index)

	for _, index := range []int{-1, 3} {
		_, err = v.Image(index)
		assert.True(t, errors.Is(err, vidoxide.ErrIndexOutOfRange), "index %d: %v", index, err)
	}
}

func TestReadIntoStride(t *testing.T) {
	path := writeSER(t, header(ser.ColorMono, 2, 2, 8, 1), []byte{1, 2, 3, 4})
	v, err := ser.Open(path, nil)
	require.NoError(t, err)
	defer v.Close()

	dst := &vidoxide.Frame{Width: 2, Height: 2, Stride: 4, Format: vidoxide.PixelFormatMono8, Pix: bytes.Repeat([]byte{9}, 8)}
	require.NoError(t, v.ReadInto(0, dst))
	assert.Equal(t, []byte{1, 2, 9, 9, 3, 4, 9, 9}, dst.Pix)

	wrong := &vidoxide.Frame{Width: 2, Height: 2, Stride: 2, Format: vidoxide.PixelFormatMono16, Pix: make([]byte, 8)}
	assert.Error(t, v.ReadInto(0, wrong))
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.ser")
	w, err := outser.Create(path, &outser.Opts{Observer: "observer", Telescope: "scope"})
	require.NoError(t, err)

	var frames []*vidoxide.Frame
	for i := 0; i < 3; i++ {
		f, err := vidoxide.NewFrame(3, 2, vidoxide.PixelFormatRGB16)
		require.NoError(t, err)
		for y := 0; y < f.Height; y++ {
			line := f.Line(y)
			for s := 0; s < 3*f.Width; s++ {
				vidoxide.SetSample16(line, s, uint16(1000*i+100*y+s))
			}
		}
		require.NoError(t, w.Write(f, image.Rectangle{}))
		frames = append(frames, f)
	}
	require.NoError(t, w.Finalize())

	v, err := ser.Open(path, nil)
	require.NoError(t, err)
	defer v.Close()

	h := v.Header()
	assert.Equal(t, "Vidoxide", ser.Text(h.Signature[:]))
	assert.Equal(t, "observer", ser.Text(h.Observer[:]))
	assert.Equal(t, "scope", ser.Text(h.Telescope[:]))
	assert.Equal(t, uint32(16), h.BitsPerChannel)
	assert.Equal(t, ser.ColorRGB, h.ColorID)
	ts, ok := ser.Time(h.DateTimeUTC)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	require.Equal(t, 3, v.NumImages())
	for i, want := range frames {
		got, err := v.Image(i)
		require.NoError(t, err)
		assert.Equal(t, want.Pix, got.Pix, "frame %d", i)
	}
}

func TestTicks(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 123456700, time.UTC)
	got, ok := ser.Time(ser.Ticks(ts))
	require.True(t, ok)
	assert.True(t, ts.Equal(got), "got %v", got)

	_, ok = ser.Time(0)
	assert.False(t, ok)
}
