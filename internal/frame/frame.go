package frame

import (
	"errors"
	"fmt"
	"image/color"
	"math"
)

// ErrMalformed is returned for payloads that cannot form a Frame.
var ErrMalformed = errors.New("malformed frame")

// Frame is one timestep of a sequence: a sequence-local id and a square grid
// of straight-alpha RGBA cells stored row-major. A Frame is immutable.
type Frame struct {
	id     int
	side   int
	pixels []color.NRGBA
}

// New validates pixels and returns a Frame that owns a copy of them.
func New(id int, pixels []color.NRGBA) (*Frame, error) {
	if id < 1 {
		return nil, fmt.Errorf("%w: id %d, want >= 1", ErrMalformed, id)
	}
	side, ok := Side(len(pixels))
	if !ok {
		return nil, fmt.Errorf("%w: %d pixels is not a square grid", ErrMalformed, len(pixels))
	}
	px := make([]color.NRGBA, len(pixels))
	copy(px, pixels)
	return &Frame{id: id, side: side, pixels: px}, nil
}

// Side returns the side length of a grid with n cells and whether n is a
// non-zero perfect square.
func Side(n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	s := int(math.Sqrt(float64(n)))
	for s*s > n {
		s--
	}
	for (s+1)*(s+1) <= n {
		s++
	}
	return s, s*s == n
}

// ID returns the sequence-local frame index (1-based).
func (f *Frame) ID() int {
	return f.id
}

// Side returns the grid side length.
func (f *Frame) Side() int {
	return f.side
}

// Len returns the number of cells.
func (f *Frame) Len() int {
	return len(f.pixels)
}

// At returns the cell at column x, row y.
func (f *Frame) At(x, y int) color.NRGBA {
	return f.pixels[y*f.side+x]
}

func (f *Frame) valid() bool {
	if f == nil || f.id < 1 {
		return false
	}
	side, ok := Side(len(f.pixels))
	return ok && side == f.side
}
