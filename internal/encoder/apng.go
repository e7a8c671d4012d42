package encoder

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/kettek/apng"

	"github.com/junsooki/framereel/internal/frame"
	"github.com/junsooki/framereel/internal/render"
)

// APNGEncoder encodes a sequence as a looping animated PNG.
type APNGEncoder struct {
	frameRate uint16
}

// NewAPNGEncoder creates an encoder that shows each frame for 1/frameRate
// seconds.
func NewAPNGEncoder(frameRate int) *APNGEncoder {
	if frameRate < 1 {
		frameRate = 1
	}
	if frameRate > 1000 {
		frameRate = 1000
	}
	return &APNGEncoder{frameRate: uint16(frameRate)}
}

func (e *APNGEncoder) Ext() string { return ".png" }

func (e *APNGEncoder) Encode(w io.Writer, frames []image.Image) error {
	if len(frames) == 0 {
		return ErrEmptySequence
	}
	a := apng.APNG{Frames: make([]apng.Frame, 0, len(frames))}
	for _, img := range frames {
		a.Frames = append(a.Frames, apng.Frame{
			Image:            img,
			DelayNumerator:   1,
			DelayDenominator: e.frameRate,
		})
	}
	if err := apng.Encode(w, a); err != nil {
		return fmt.Errorf("encoder apng: %w", err)
	}
	return nil
}

// SaveSequence renders frames at size and writes them with enc to a new file
// in dir named after name. It returns the written path.
func SaveSequence(dir, name string, frames []*frame.Frame, size int, enc Encoder) (string, error) {
	if len(frames) == 0 {
		return "", ErrEmptySequence
	}
	images := make([]image.Image, len(frames))
	for i, f := range frames {
		images[i] = render.Frame(f, size)
	}
	return save(dir, name, images, enc)
}

// SaveSurface writes one rendered surface with enc.
func SaveSurface(dir, name string, surface image.Image, enc Encoder) (string, error) {
	if surface == nil {
		return "", ErrEmptySequence
	}
	return save(dir, name, []image.Image{surface}, enc)
}

func save(dir, name string, images []image.Image, enc Encoder) (_ string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("encoder: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name+enc.Ext())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("encoder: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := enc.Encode(bw, images); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("encoder: write %s: %w", path, err)
	}
	return path, nil
}
