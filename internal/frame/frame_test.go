package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

func patterned(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
	return buf
}

func TestStrideWidth(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{1, 4},
		{2, 8},
		{3, 12},
		{4, 12},
		{5, 16},
		{480, 1440},
		{641, 1924},
	}
	for _, tt := range tests {
		got := StrideWidth(tt.width)
		assert.Equal(t, tt.want, got, "width %d", tt.width)
		assert.Zero(t, got%4)
		assert.GreaterOrEqual(t, got, tt.width*3)
	}
}

func TestDecode_PixelMapping(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3, 2}, {5, 4}, {7, 3}, {16, 9}} {
		w, h := dims[0], dims[1]
		buf := patterned(StrideWidth(w) * h)

		g, err := Decode(buf, w, h)
		require.NoError(t, err)
		assert.False(t, g.Aliased())
		assert.Equal(t, w*3, g.Stride)

		v, err := View(buf, w, h)
		require.NoError(t, err)
		assert.True(t, v.Aliased())

		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				for ch := 0; ch < 3; ch++ {
					want := buf[r*StrideWidth(w)+c*3+ch]
					assert.Equal(t, want, g.At(r, c, ch))
					assert.Equal(t, want, v.At(r, c, ch))
				}
			}
		}
	}
}

func TestDecode_CollectionSize(t *testing.T) {
	buf := make([]byte, ((480*3+3)/4)*4*320)
	g, err := Decode(buf, 480, 320)
	require.NoError(t, err)
	assert.Equal(t, 320, g.Height)
	assert.Equal(t, 480, g.Width)
	assert.Len(t, g.Pix, 320*480*3)
}

func TestDecode_ShortBuffer(t *testing.T) {
	want := StrideWidth(5) * 4
	_, err := Decode(make([]byte, want-1), 5, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedFrame))

	var le *core.LengthError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, want, le.Want)
	assert.Equal(t, want-1, le.Got)
}

func TestDecode_InvalidDimensions(t *testing.T) {
	_, err := Decode(make([]byte, 16), 0, 1)
	assert.ErrorIs(t, err, core.ErrInvalidDimensions)
	_, err = View(make([]byte, 16), 1, -1)
	assert.ErrorIs(t, err, core.ErrInvalidDimensions)
}

func TestDecode_CopyIsIndependentOfSource(t *testing.T) {
	buf := patterned(StrideWidth(3) * 2)
	g, err := Decode(buf, 3, 2)
	require.NoError(t, err)
	v, err := View(buf, 3, 2)
	require.NoError(t, err)

	before := g.At(1, 2, 0)
	buf[1*StrideWidth(3)+2*3] ^= 0xff

	assert.Equal(t, before, g.At(1, 2, 0))
	assert.NotEqual(t, before, v.At(1, 2, 0))
}

func TestDecode_LongerBufferIsAccepted(t *testing.T) {
	buf := patterned(StrideWidth(2)*2 + 10)
	g, err := Decode(buf, 2, 2)
	require.NoError(t, err)
	assert.Len(t, g.Pix, 12)
}

func TestRGBA_SwapsChannelsAndFlips(t *testing.T) {
	// 1x2 frame: top pixel BGR(1,2,3), bottom BGR(4,5,6); stride 4.
	buf := []byte{1, 2, 3, 0, 4, 5, 6, 0}
	g, err := Decode(buf, 1, 2)
	require.NoError(t, err)

	img := g.RGBA(ExportOptions{})
	assert.Equal(t, []byte{3, 2, 1, 255}, img.Pix[0:4])

	flipped := g.RGBA(ExportOptions{FlipVertical: true})
	assert.Equal(t, []byte{6, 5, 4, 255}, flipped.Pix[0:4])
}

func TestWriteBMP(t *testing.T) {
	g, err := Decode(patterned(StrideWidth(4)*3), 4, 3)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteBMP(&out, g, ExportOptions{}))

	img, err := bmp.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}
