// Package frame decodes the bitmap payload sent with each tick.
//
// The simulator sends a bottom-up style bitmap body: height rows of width
// pixels, three bytes per pixel in blue, green, red order, with every row
// padded to a multiple of four bytes. Decoding never flips rows; orientation
// is left to consumers.
package frame

import (
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Channels is the number of bytes per pixel.
const Channels = 3

// Grid is a height x width x 3 pixel array.
//
// A Grid returned by Decode or Copy owns contiguous memory (Stride ==
// Width*3). A Grid returned by View aliases the caller's buffer and keeps the
// sender's padded stride; it is only valid while that buffer is alive and
// unmodified.
type Grid struct {
	Width  int
	Height int
	Stride int
	Pix    []byte

	aliased bool
}

// StrideWidth returns the padded row length in bytes for a frame width.
func StrideWidth(width int) int {
	return ((width*Channels + 3) / 4) * 4
}

// Size returns the minimum buffer length for a width x height frame.
func Size(width, height int) int {
	return StrideWidth(width) * height
}

func validate(buf []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return core.ErrInvalidDimensions
	}
	if want := Size(width, height); len(buf) < want {
		return &core.LengthError{Kind: core.ErrMalformedFrame, Want: want, Got: len(buf)}
	}
	return nil
}

// View returns a zero-copy Grid over buf.
func View(buf []byte, width, height int) (*Grid, error) {
	if err := validate(buf, width, height); err != nil {
		return nil, err
	}
	return &Grid{
		Width:   width,
		Height:  height,
		Stride:  StrideWidth(width),
		Pix:     buf[:Size(width, height)],
		aliased: true,
	}, nil
}

// Decode returns an owned, contiguous copy of the frame in buf with row
// padding removed. buf may be reused by the caller afterwards.
func Decode(buf []byte, width, height int) (*Grid, error) {
	v, err := View(buf, width, height)
	if err != nil {
		return nil, err
	}
	return v.Copy(), nil
}

// Aliased reports whether g shares memory with the buffer it was built from.
func (g *Grid) Aliased() bool {
	return g.aliased
}

// Row returns the meaningful bytes of row r, without padding.
func (g *Grid) Row(r int) []byte {
	start := r * g.Stride
	return g.Pix[start : start+g.Width*Channels]
}

// At returns channel ch (0 blue, 1 green, 2 red) of the pixel at row, col.
func (g *Grid) At(row, col, ch int) byte {
	return g.Pix[row*g.Stride+col*Channels+ch]
}

// Copy returns an owned Grid with contiguous rows.
func (g *Grid) Copy() *Grid {
	rowLen := g.Width * Channels
	out := &Grid{
		Width:  g.Width,
		Height: g.Height,
		Stride: rowLen,
		Pix:    make([]byte, rowLen*g.Height),
	}
	if g.Stride == rowLen {
		copy(out.Pix, g.Pix[:rowLen*g.Height])
		return out
	}
	for r := 0; r < g.Height; r++ {
		copy(out.Pix[r*rowLen:(r+1)*rowLen], g.Row(r))
	}
	return out
}
