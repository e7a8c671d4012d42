package display

import (
	"image"
	"image/draw"
	"math"
)

// StatusFunc returns the lines shown in the heads-up display.
type StatusFunc func() []string

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}

// premultiply converts a straight-alpha surface into dst, reallocating dst
// when the size changed. Ebitengine expects premultiplied pixels.
func premultiply(dst *image.RGBA, src *image.NRGBA) *image.RGBA {
	if dst == nil || dst.Bounds() != src.Bounds() {
		dst = image.NewRGBA(src.Bounds())
	}
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
