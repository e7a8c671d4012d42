package encoder

import (
	"image"
	"image/png"
	"io"
)

// PNGEncoder encodes the first surface of a sequence as a still PNG.
type PNGEncoder struct {
	enc png.Encoder
}

// NewPNGEncoder creates a still encoder. best selects maximum compression.
func NewPNGEncoder(best bool) *PNGEncoder {
	level := png.DefaultCompression
	if best {
		level = png.BestCompression
	}
	return &PNGEncoder{enc: png.Encoder{CompressionLevel: level}}
}

func (e *PNGEncoder) Ext() string { return ".png" }

func (e *PNGEncoder) Encode(w io.Writer, frames []image.Image) error {
	if len(frames) == 0 {
		return ErrEmptySequence
	}
	return e.enc.Encode(w, frames[0])
}
