// Package playback drives frame playback from a frame.Buffer onto a display
// surface, either at a fixed cadence or one step at a time.
package playback

import (
	"image"
	"log/slog"
	"time"

	"github.com/junsooki/framereel/internal/frame"
	"github.com/junsooki/framereel/internal/render"
)

// DefaultFrameRate is the playback cadence in frames per second.
const DefaultFrameRate = 12

// Mode is the playback mode.
type Mode int

const (
	Idle Mode = iota
	Running
	Stepping
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stepping:
		return "stepping"
	}
	return "unknown"
}

// Sink receives every rendered surface.
type Sink func(*image.NRGBA)

// Config configures a Scheduler.
type Config struct {
	FrameRate   int
	DisplaySize int
	// Resolution returns the requested grid side length, used for the
	// placeholder when no frame is available.
	Resolution func() int
	Sink       Sink
}

// State is a snapshot of the scheduler.
type State struct {
	Mode     Mode
	Cursor   int
	Buffered int
}

// Scheduler is the playback state machine. It is not safe for concurrent
// use: the owner calls every method, including Tick when C fires, from one
// goroutine.
type Scheduler struct {
	buf        *frame.Buffer
	interval   time.Duration
	size       int
	resolution func() int
	sink       Sink

	mode    Mode
	cursor  int
	ticker  *time.Ticker
	surface *image.NRGBA
}

// New creates an idle scheduler with the cursor on frame 1.
func New(buf *frame.Buffer, cfg Config) *Scheduler {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.DisplaySize <= 0 {
		cfg.DisplaySize = render.DisplaySize
	}
	if cfg.Resolution == nil {
		cfg.Resolution = func() int { return 0 }
	}
	return &Scheduler{
		buf:        buf,
		interval:   time.Second / time.Duration(cfg.FrameRate),
		size:       cfg.DisplaySize,
		resolution: cfg.Resolution,
		sink:       cfg.Sink,
		mode:       Idle,
		cursor:     1,
	}
}

// Interval returns the timer period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// C returns the timer channel, or nil while not running so that a select on
// it never fires.
func (s *Scheduler) C() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

// Play starts the timer. It is a no-op while already running.
func (s *Scheduler) Play() {
	if s.mode == Running {
		return
	}
	s.mode = Running
	s.ticker = time.NewTicker(s.interval)
	slog.Debug("playback started", "cursor", s.cursor, "interval", s.interval)
}

// Pause stops the timer and returns to Idle.
func (s *Scheduler) Pause() {
	if s.mode != Running {
		return
	}
	s.stopTimer()
	s.mode = Idle
	slog.Debug("playback paused", "cursor", s.cursor)
}

// Step advances exactly one frame outside the timer and halts. A running
// scheduler is paused first.
func (s *Scheduler) Step() {
	s.Pause()
	s.mode = Stepping
	s.advance()
	s.mode = Idle
}

// Tick is one timer advance. Ticks outside Running are ignored.
func (s *Scheduler) Tick() {
	if s.mode != Running {
		return
	}
	s.advance()
}

// ResolutionChanged discards the buffered sequence, rewinds to frame 1 and
// renders the placeholder for the new resolution immediately.
func (s *Scheduler) ResolutionChanged() {
	s.stopTimer()
	s.mode = Idle
	s.buf.Reset()
	s.cursor = 1
	s.draw(render.Placeholder(s.resolution(), s.size))
	slog.Debug("playback reset for resolution", "resolution", s.resolution())
}

// SequenceStarted notes that frame 1 of a new sequence arrived. The buffer
// has already dropped the old sequence; the mode is left alone and the next
// tick renders whatever is available.
func (s *Scheduler) SequenceStarted() {
	slog.Debug("playback sequence started", "mode", s.mode, "cursor", s.cursor)
}

// StreamFailed stops playback. Buffered frames stay viewable by stepping.
func (s *Scheduler) StreamFailed() {
	s.stopTimer()
	s.mode = Idle
}

// Redraw renders the frame under the cursor, or the placeholder when the
// buffer is empty. With frames buffered but the cursor frame missing the
// current surface is held.
func (s *Scheduler) Redraw() {
	if f, ok := s.buf.Get(s.cursor); ok {
		s.draw(render.Frame(f, s.size))
		return
	}
	if s.buf.Len() == 0 {
		s.draw(render.Placeholder(s.resolution(), s.size))
	}
}

// Stop clears the timer regardless of mode. Owners call it on teardown.
func (s *Scheduler) Stop() {
	s.stopTimer()
	s.mode = Idle
}

// State returns a snapshot for status display.
func (s *Scheduler) State() State {
	return State{Mode: s.mode, Cursor: s.cursor, Buffered: s.buf.Len()}
}

// Surface returns the last rendered surface, or nil before the first render.
func (s *Scheduler) Surface() *image.NRGBA {
	return s.surface
}

// advance moves the cursor one frame forward, wrapping past the last
// buffered frame. A missing frame holds the previous surface.
func (s *Scheduler) advance() {
	s.cursor++
	if s.cursor > s.buf.Len() {
		s.cursor = 1
	}
	f, ok := s.buf.Get(s.cursor)
	if !ok {
		return
	}
	s.draw(render.Frame(f, s.size))
}

func (s *Scheduler) draw(img *image.NRGBA) {
	s.surface = img
	if s.sink != nil {
		s.sink(img)
	}
}

func (s *Scheduler) stopTimer() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
