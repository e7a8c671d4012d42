package display

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"github.com/junsooki/framereel/internal/input"
)

const hudLineHeight = 15

var background = color.NRGBA{0x20, 0x20, 0x24, 0xff}

// bindings maps keys to commands.
var bindings = map[ebiten.Key]input.Command{
	ebiten.KeySpace:          input.CommandTogglePlay,
	ebiten.KeyArrowRight:     input.CommandStep,
	ebiten.KeyEnter:          input.CommandRun,
	ebiten.KeyNumpadEnter:    input.CommandRun,
	ebiten.KeyEqual:          input.CommandResolutionUp,
	ebiten.KeyNumpadAdd:      input.CommandResolutionUp,
	ebiten.KeyMinus:          input.CommandResolutionDown,
	ebiten.KeyNumpadSubtract: input.CommandResolutionDown,
	ebiten.KeyE:              input.CommandExport,
	ebiten.KeyS:              input.CommandSaveSequence,
	ebiten.KeyP:              input.CommandSnapshot,
	ebiten.KeyR:              input.CommandReconnect,
	ebiten.KeyEscape:         input.CommandQuit,
}

var keyNames = map[input.Command]string{
	input.CommandTogglePlay:     "Space",
	input.CommandStep:           "Right",
	input.CommandRun:            "Enter",
	input.CommandResolutionUp:   "+",
	input.CommandResolutionDown: "-",
	input.CommandExport:         "E",
	input.CommandSaveSequence:   "S",
	input.CommandSnapshot:       "P",
	input.CommandReconnect:      "R",
	input.CommandQuit:           "Esc",
}

// Viewer shows the playback surface in an Ebitengine window with a status
// overlay and turns key presses into session commands.
type Viewer struct {
	size int

	mu      sync.Mutex
	surface *image.NRGBA
	dirty   bool

	target input.Target
	status StatusFunc
	ctx    context.Context

	rgba     *image.RGBA
	img      *ebiten.Image
	shade    *ebiten.Image
	face     text.Face
	showHelp bool
	keys     []ebiten.Key
}

// NewViewer creates a viewer whose window starts at size×size.
func NewViewer(size int) *Viewer {
	return &Viewer{
		size: size,
		face: text.NewGoXFace(basicfont.Face7x13),
	}
}

// Attach sets the command target and the status source. Call before Run.
func (v *Viewer) Attach(target input.Target, status StatusFunc) {
	v.target = target
	v.status = status
}

// SetFrame replaces the displayed surface (called from the session loop).
func (v *Viewer) SetFrame(img *image.NRGBA) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.surface = img
	v.dirty = true
}

// Run starts the Ebitengine game loop and returns when the window closes,
// the quit key is pressed or ctx is done. Must be called from the main
// goroutine.
func (v *Viewer) Run(ctx context.Context) error {
	v.ctx = ctx
	ebiten.SetWindowSize(v.size, v.size)
	ebiten.SetWindowTitle("framereel")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(v)
}

// --- ebiten.Game interface ---

func (v *Viewer) Update() error {
	if v.ctx != nil && v.ctx.Err() != nil {
		return ebiten.Termination
	}
	v.keys = inpututil.AppendJustPressedKeys(v.keys[:0])
	for _, k := range v.keys {
		if k == ebiten.KeyH {
			v.showHelp = !v.showHelp
			continue
		}
		cmd, ok := bindings[k]
		if !ok {
			continue
		}
		if cmd == input.CommandQuit {
			return ebiten.Termination
		}
		if v.target != nil {
			input.Dispatch(v.target, cmd)
		}
	}
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	screen.Fill(background)

	v.mu.Lock()
	surface, dirty := v.surface, v.dirty
	v.dirty = false
	v.mu.Unlock()

	if surface != nil {
		w, h := surface.Bounds().Dx(), surface.Bounds().Dy()
		if v.img == nil || v.img.Bounds().Dx() != w || v.img.Bounds().Dy() != h {
			v.img = ebiten.NewImage(w, h)
			dirty = true
		}
		if dirty {
			v.rgba = premultiply(v.rgba, surface)
			v.img.WritePixels(v.rgba.Pix)
		}

		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(w), float64(h))
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		op.Filter = ebiten.FilterNearest
		screen.DrawImage(v.img, op)
	}

	v.drawHUD(screen)
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func (v *Viewer) drawHUD(screen *ebiten.Image) {
	var lines []string
	if v.status != nil {
		lines = v.status()
	}
	if v.showHelp {
		for _, c := range input.Commands {
			lines = append(lines, keyNames[c.Command]+"  "+c.Help)
		}
		lines = append(lines, "H  toggle help")
	} else {
		lines = append(lines, "H  help")
	}
	if len(lines) == 0 {
		return
	}

	if v.shade == nil {
		v.shade = ebiten.NewImage(1, 1)
		v.shade.Fill(color.NRGBA{0, 0, 0, 0xa0})
	}
	width := 0
	for _, l := range lines {
		width = max(width, len(l))
	}
	bg := &ebiten.DrawImageOptions{}
	bg.GeoM.Scale(float64(width*7+12), float64(len(lines)*hudLineHeight+8))
	screen.DrawImage(v.shade, bg)

	op := &text.DrawOptions{}
	op.GeoM.Translate(6, 4)
	op.LineSpacing = hudLineHeight
	op.ColorScale.ScaleWithColor(color.White)
	for i, l := range lines {
		if i > 0 {
			op.GeoM.Translate(0, hudLineHeight)
		}
		text.Draw(screen, l, v.face, op)
	}
}
