package frame

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/image/bmp"
)

// ExportOptions controls image conversion.
type ExportOptions struct {
	// FlipVertical reverses row order, for bottom-up sources.
	FlipVertical bool
}

// RGBA converts g to an RGBA image, swapping BGR to RGB.
func (g *Grid) RGBA(opts ExportOptions) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for r := 0; r < g.Height; r++ {
		src := r
		if opts.FlipVertical {
			src = g.Height - 1 - r
		}
		row := g.Row(src)
		dst := img.Pix[r*img.Stride:]
		for c := 0; c < g.Width; c++ {
			dst[c*4+0] = row[c*Channels+2]
			dst[c*4+1] = row[c*Channels+1]
			dst[c*4+2] = row[c*Channels+0]
			dst[c*4+3] = 0xff
		}
	}
	return img
}

// WriteBMP encodes g as a BMP image.
func WriteBMP(w io.Writer, g *Grid, opts ExportOptions) error {
	if err := bmp.Encode(w, g.RGBA(opts)); err != nil {
		return fmt.Errorf("failed to encode bmp: %w", err)
	}
	return nil
}
