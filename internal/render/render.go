// Package render maps variable-resolution cell grids onto a fixed-size
// surface using nearest-neighbor block filling. Every function is pure.
package render

import (
	"image"
	"image/color"
	"math"
)

// DisplaySize is the default side length of the display surface.
const DisplaySize = 512

// Placeholder checkerboard colours.
var (
	Light = color.NRGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
	Dark  = color.NRGBA{R: 0xB0, G: 0xB0, B: 0xB0, A: 0xFF}
)

// Grid is a square grid of cells addressed by column and row.
type Grid interface {
	Side() int
	At(x, y int) color.NRGBA
}

// Frame renders g onto a new size×size surface.
func Frame(g Grid, size int) *image.NRGBA {
	return Draw(g, size)
}

// Placeholder renders a two-colour checkerboard with side cells per row.
func Placeholder(side, size int) *image.NRGBA {
	return Draw(checkerboard(side), size)
}

// Draw fills a size×size surface with g. Cell (x, y) covers
// [round(x*scale), round((x+1)*scale)) on both axes, scale = size/side, so
// adjacent cells share an edge with no seam or overlap.
func Draw(g Grid, size int) *image.NRGBA {
	if size < 0 {
		size = 0
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	side := g.Side()
	if side <= 0 || size == 0 {
		return dst
	}

	edges := Edges(side, size)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			fill(dst, image.Rect(edges[x], edges[y], edges[x+1], edges[y+1]), g.At(x, y))
		}
	}
	return dst
}

// Edges returns the side+1 rounded block boundaries along one axis.
func Edges(side, size int) []int {
	scale := float64(size) / float64(side)
	edges := make([]int, side+1)
	for i := range edges {
		edges[i] = int(math.Round(float64(i) * scale))
	}
	edges[side] = size
	return edges
}

// fill writes c verbatim into every pixel of r. The bytes are copied as-is
// so straight-alpha values survive unchanged.
func fill(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(dst.Rect)
	if r.Empty() {
		return
	}
	width := r.Dx() * 4
	start := dst.PixOffset(r.Min.X, r.Min.Y)
	row := dst.Pix[start : start+width]
	for i := 0; i < width; i += 4 {
		row[i+0] = c.R
		row[i+1] = c.G
		row[i+2] = c.B
		row[i+3] = c.A
	}
	for y := r.Min.Y + 1; y < r.Max.Y; y++ {
		off := dst.PixOffset(r.Min.X, y)
		copy(dst.Pix[off:off+width], row)
	}
}

type checkerboard int

func (c checkerboard) Side() int {
	return int(c)
}

func (c checkerboard) At(x, y int) color.NRGBA {
	if (x+y)%2 == 0 {
		return Light
	}
	return Dark
}
