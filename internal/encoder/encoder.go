// Package encoder writes rendered surfaces to image files.
package encoder

import (
	"errors"
	"image"
	"io"
)

// ErrEmptySequence is returned when there is nothing to encode.
var ErrEmptySequence = errors.New("encoder: empty sequence")

// Encoder encodes a sequence of surfaces.
type Encoder interface {
	Encode(w io.Writer, frames []image.Image) error
	// Ext is the file extension, including the dot.
	Ext() string
}
