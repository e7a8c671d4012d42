// Package session owns one playback session: the backend connection, the
// frame buffer, the playback scheduler and the export coordinator. All of
// them are driven from a single event loop goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/framereel/internal/encoder"
	"github.com/junsooki/framereel/internal/export"
	"github.com/junsooki/framereel/internal/frame"
	"github.com/junsooki/framereel/internal/handoff"
	"github.com/junsooki/framereel/internal/playback"
	"github.com/junsooki/framereel/internal/protocol"
	"github.com/junsooki/framereel/internal/render"
	"github.com/junsooki/framereel/internal/settings"
)

const eventBuffer = 64

// Config configures a Session.
type Config struct {
	Endpoint    string
	FrameRate   int
	DisplaySize int
	Protocol    protocol.Options
	// ExportDir receives locally saved sequences and snapshots.
	ExportDir string
	// AutoRun sends the current source as soon as the connection opens.
	AutoRun bool
}

// Deps are the collaborators of a Session. Drafts and Handoff may be nil.
type Deps struct {
	Settings *settings.Store
	Drafts   export.DraftStore
	Handoff  handoff.Handoff
	// Sink receives every rendered surface on the loop goroutine.
	Sink playback.Sink
}

// Session is one playback session. Commands may be called from any
// goroutine; they are queued and run on the loop started by Run.
type Session struct {
	id       string
	cfg      Config
	settings *settings.Store

	client *protocol.Client
	buf    *frame.Buffer
	sched  *playback.Scheduler
	export *export.Coordinator

	events chan protocol.Event
	cmds   chan func(ctx context.Context)
	done   chan struct{}

	// Owned by the loop.
	lastError string
	lastSaved string

	mu     sync.RWMutex
	status Status
}

// New creates a session. Nothing is dialed until Run.
func New(cfg Config, deps Deps) *Session {
	if cfg.DisplaySize <= 0 {
		cfg.DisplaySize = render.DisplaySize
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "."
	}
	st := deps.Settings
	if st == nil {
		st = settings.New(settings.DefaultGridSize, "")
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		settings: st,
		client:   protocol.NewClient(cfg.Endpoint, cfg.Protocol),
		buf:      frame.NewBuffer(),
		events:   make(chan protocol.Event, eventBuffer),
		cmds:     make(chan func(ctx context.Context), 16),
		done:     make(chan struct{}),
	}
	s.sched = playback.New(s.buf, playback.Config{
		FrameRate:   cfg.FrameRate,
		DisplaySize: cfg.DisplaySize,
		Resolution:  st.GridSize,
		Sink:        deps.Sink,
	})
	s.export = export.NewCoordinator(s.client, deps.Drafts, deps.Handoff)
	s.client.OnEvent(s.forward)
	s.publishStatus()
	return s
}

// ID returns the session id used in logs and saved file names.
func (s *Session) ID() string { return s.id }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run connects to the backend and runs the event loop until ctx is done.
// The timer and the connection are released on return.
func (s *Session) Run(ctx context.Context) error {
	log := slog.With("session", s.id)
	log.Info("session started", "endpoint", s.cfg.Endpoint, "interval", s.sched.Interval())

	defer close(s.done)
	defer s.client.Close()
	defer s.sched.Stop()

	s.sched.Redraw()
	s.connect(ctx)
	s.publishStatus()

	for {
		select {
		case <-ctx.Done():
			log.Info("session stopped")
			return nil
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		case cmd := <-s.cmds:
			cmd(ctx)
		case <-s.sched.C():
			s.sched.Tick()
		}
		s.publishStatus()
	}
}

// forward runs on the protocol client's goroutines and queues ev for the
// loop.
func (s *Session) forward(ev protocol.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) handleEvent(ctx context.Context, ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.FrameReceived:
		if !s.buf.Put(ev.Frame) {
			return
		}
		if ev.Frame.ID() == 1 {
			s.sched.SequenceStarted()
		}
		if st := s.sched.State(); st.Mode != playback.Running && st.Cursor == ev.Frame.ID() {
			s.sched.Redraw()
		}
	case protocol.StreamError:
		slog.Warn("session stream error", "session", s.id, "error", ev.Message)
		s.lastError = ev.Message
		s.sched.StreamFailed()
		s.export.HandleFailure(ev.Message)
	case protocol.AssetExported:
		s.export.HandleExported(ctx, ev.AssetReference)
	case protocol.ConnectionError:
		s.lastError = ev.Err.Error()
		s.sched.StreamFailed()
		s.export.HandleFailure(ev.Err.Error())
	}
}

// connect dials in the background so the loop keeps serving ticks and
// commands. Failures arrive as ConnectionError events.
func (s *Session) connect(ctx context.Context) {
	go func() {
		if err := s.client.Open(ctx); err != nil {
			return
		}
		s.post(func(ctx context.Context) {
			s.lastError = ""
			if s.cfg.AutoRun {
				s.runSource()
			}
		})
	}()
}

// post queues fn for the loop. It is dropped once the loop has exited.
func (s *Session) post(fn func(ctx context.Context)) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) Play() {
	s.post(func(context.Context) { s.sched.Play() })
}

func (s *Session) Pause() {
	s.post(func(context.Context) { s.sched.Pause() })
}

func (s *Session) TogglePlay() {
	s.post(func(context.Context) {
		if s.sched.State().Mode == playback.Running {
			s.sched.Pause()
		} else {
			s.sched.Play()
		}
	})
}

func (s *Session) Step() {
	s.post(func(context.Context) { s.sched.Step() })
}

// RunSource re-reads the source file, if any, and asks the backend to run
// the current source at the current grid size.
func (s *Session) RunSource() {
	s.post(func(context.Context) { s.runSource() })
}

func (s *Session) runSource() {
	if err := s.settings.Reload(); err != nil {
		slog.Warn("session source reload failed", "session", s.id, "error", err)
		s.lastError = err.Error()
	}
	intent := protocol.ProcessSource{Source: s.settings.Source(), Dimension: s.settings.GridSize()}
	if err := s.client.Send(intent); err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
	slog.Info("session source sent", "session", s.id, "dimension", intent.Dimension)
}

// SetResolution stores a new grid size. A change resets playback to the
// placeholder; the caller issues RunSource for frames at the new size.
func (s *Session) SetResolution(size int) {
	s.post(func(context.Context) { s.setResolution(size) })
}

func (s *Session) setResolution(size int) bool {
	size, changed := s.settings.SetGridSize(size)
	if changed {
		s.sched.ResolutionChanged()
		slog.Info("session resolution changed", "session", s.id, "resolution", size)
	}
	return changed
}

// StepResolution moves the grid size one step up (dir > 0) or down and
// reruns the source when connected.
func (s *Session) StepResolution(dir int) {
	s.post(func(context.Context) {
		next := settings.NextGridSize(s.settings.GridSize(), dir)
		if s.setResolution(next) && s.client.Connected() {
			s.runSource()
		}
	})
}

// Export asks the backend to finalize the current source.
func (s *Session) Export() {
	s.post(func(context.Context) {
		err := s.export.RequestExport(s.settings.Source(), s.settings.GridSize())
		if err != nil {
			slog.Warn("session export not requested", "session", s.id, "error", err)
			s.lastError = err.Error()
		}
	})
}

// Reconnect reopens the connection after a failure.
func (s *Session) Reconnect() {
	s.post(func(ctx context.Context) {
		if s.client.Connected() {
			return
		}
		slog.Info("session reconnecting", "session", s.id)
		s.connect(ctx)
	})
}

// SaveSequence writes the buffered frames as an animated PNG in the export
// directory. Encoding runs off the loop.
func (s *Session) SaveSequence() {
	s.post(func(context.Context) {
		frames := s.buf.Frames()
		name := s.fileName("sequence")
		enc := encoder.NewAPNGEncoder(int(time.Second / s.sched.Interval()))
		go func() {
			path, err := encoder.SaveSequence(s.cfg.ExportDir, name, frames, s.cfg.DisplaySize, enc)
			s.saved("sequence", path, err)
		}()
	})
}

// SaveSnapshot writes the current surface as a PNG.
func (s *Session) SaveSnapshot() {
	s.post(func(context.Context) {
		surface := s.sched.Surface()
		name := s.fileName("snapshot")
		go func() {
			var img image.Image
			if surface != nil {
				img = surface
			}
			path, err := encoder.SaveSurface(s.cfg.ExportDir, name, img, encoder.NewPNGEncoder(true))
			s.saved("snapshot", path, err)
		}()
	})
}

func (s *Session) saved(kind, path string, err error) {
	s.post(func(context.Context) {
		if err != nil {
			if errors.Is(err, encoder.ErrEmptySequence) {
				err = fmt.Errorf("nothing to save")
			}
			slog.Warn("session save failed", "session", s.id, "kind", kind, "error", err)
			s.lastError = err.Error()
			return
		}
		slog.Info("session saved", "session", s.id, "kind", kind, "path", path)
		s.lastSaved = path
	})
}

func (s *Session) fileName(kind string) string {
	return fmt.Sprintf("%s-%s-%s", kind, s.id[:8], time.Now().Format("20060102-150405.000"))
}
