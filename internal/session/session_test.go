package session

import (
	"context"
	"image"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/junsooki/framereel/internal/drafts"
	"github.com/junsooki/framereel/internal/export"
	"github.com/junsooki/framereel/internal/handoff"
	"github.com/junsooki/framereel/internal/mockbackend"
	"github.com/junsooki/framereel/internal/playback"
	"github.com/junsooki/framereel/internal/render"
	"github.com/junsooki/framereel/internal/settings"
)

type surfaces struct {
	mu   sync.Mutex
	last *image.NRGBA
	n    int
}

func (s *surfaces) sink(img *image.NRGBA) {
	s.mu.Lock()
	s.last = img
	s.n++
	s.mu.Unlock()
}

func (s *surfaces) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

type harness struct {
	sess      *Session
	surfaces  *surfaces
	delivered chan drafts.Draft
	backend   *mockbackend.Handler
	cancel    context.CancelFunc
}

func startSession(t *testing.T, backend mockbackend.Config, cfg Config, source string) *harness {
	t.Helper()

	h := &harness{
		surfaces:  &surfaces{},
		delivered: make(chan drafts.Draft, 4),
		backend:   mockbackend.NewHandler(backend),
	}
	srv := httptest.NewServer(h.backend.Mux(mockbackend.DefaultPath))
	t.Cleanup(srv.Close)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http") + mockbackend.DefaultPath
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = t.TempDir()
	}
	cfg.DisplaySize = 64

	h.sess = New(cfg, Deps{
		Settings: settings.New(16, source),
		Handoff: handoff.Func(func(ctx context.Context, d drafts.Draft) error {
			h.delivered <- d
			return nil
		}),
		Sink: h.surfaces.sink,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = h.sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.sess.Done()
	})
	return h
}

func waitFor(t *testing.T, s *Session, what string, cond func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Status(); cond(st) {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s; status %+v", what, s.Status())
	return Status{}
}

func TestStreamAndPlay(t *testing.T) {
	h := startSession(t,
		mockbackend.Config{FrameCount: 10, FrameInterval: time.Millisecond},
		Config{FrameRate: 50, AutoRun: true},
		"spin()",
	)

	waitFor(t, h.sess, "ten frames", func(st Status) bool { return st.Buffered == 10 })
	if st := h.sess.Status(); st.Mode != playback.Idle || !st.Connected {
		t.Errorf("status after stream = %+v", st)
	}
	// Placeholder at start, then frame 1 under the idle cursor.
	if h.surfaces.count() < 2 {
		t.Errorf("rendered %d surfaces, want at least 2", h.surfaces.count())
	}

	h.sess.Play()
	waitFor(t, h.sess, "cursor 10", func(st Status) bool { return st.Cursor == 10 })
	waitFor(t, h.sess, "wraparound", func(st Status) bool { return st.Cursor == 1 })
	if st := h.sess.Status(); st.Mode != playback.Running {
		t.Errorf("mode = %v, want running", st.Mode)
	}

	h.sess.Pause()
	waitFor(t, h.sess, "pause", func(st Status) bool { return st.Mode == playback.Idle })
}

func TestRenderedFrameMatchesGrid(t *testing.T) {
	h := startSession(t,
		mockbackend.Config{FrameCount: 3, FrameInterval: time.Millisecond},
		Config{AutoRun: true},
		"spin()",
	)
	waitFor(t, h.sess, "frames", func(st Status) bool { return st.Buffered == 3 })

	h.sess.Step()
	waitFor(t, h.sess, "step", func(st Status) bool { return st.Cursor == 2 })

	f, ok := h.sess.buf.Get(2)
	if !ok {
		t.Fatal("frame 2 missing")
	}
	want := render.Frame(f, 64)
	h.surfaces.mu.Lock()
	got := h.surfaces.last
	h.surfaces.mu.Unlock()
	if got == nil || string(got.Pix) != string(want.Pix) {
		t.Error("last surface is not frame 2")
	}
}

func TestExportHandsOffOnce(t *testing.T) {
	h := startSession(t, mockbackend.Config{}, Config{}, "wave()")
	waitFor(t, h.sess, "connect", func(st Status) bool { return st.Connected })

	h.sess.Export()
	select {
	case d := <-h.delivered:
		if !strings.HasPrefix(d.AssetReference, "mock://bucket/") || d.Source != "wave()" || d.Dimension != 16 {
			t.Errorf("draft = %+v", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no hand-off")
	}
	waitFor(t, h.sess, "completed", func(st Status) bool { return st.Export == export.Completed })

	select {
	case d := <-h.delivered:
		t.Errorf("second hand-off: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResolutionChangeResets(t *testing.T) {
	h := startSession(t,
		mockbackend.Config{FrameCount: 5, FrameInterval: time.Millisecond},
		Config{AutoRun: true},
		"spin()",
	)
	waitFor(t, h.sess, "frames", func(st Status) bool { return st.Buffered == 5 })

	h.sess.SetResolution(32)
	st := waitFor(t, h.sess, "reset", func(st Status) bool { return st.Resolution == 32 })
	if st.Buffered != 0 || st.Cursor != 1 || st.Mode != playback.Idle {
		t.Errorf("status after resolution change = %+v", st)
	}

	h.sess.RunSource()
	waitFor(t, h.sess, "new frames", func(st Status) bool { return st.Buffered == 5 })
	f, _ := h.sess.buf.Get(1)
	if f == nil || f.Side() != 32 {
		t.Error("frames not rerun at the new resolution")
	}
}

func TestEmptySourceReportsError(t *testing.T) {
	h := startSession(t, mockbackend.Config{}, Config{AutoRun: true}, "")
	st := waitFor(t, h.sess, "error", func(st Status) bool { return st.LastError != "" })
	if st.Buffered != 0 || st.Mode != playback.Idle {
		t.Errorf("status = %+v", st)
	}
}

func TestConnectFailure(t *testing.T) {
	h := startSession(t, mockbackend.Config{}, Config{Endpoint: "ws://127.0.0.1:1/ws/render"}, "x")
	st := waitFor(t, h.sess, "connection error", func(st Status) bool { return st.LastError != "" })
	if st.Connected {
		t.Error("connected after failed dial")
	}

	// Commands keep working while offline.
	h.sess.Step()
	h.sess.Export()
	waitFor(t, h.sess, "export refused", func(st Status) bool {
		return strings.Contains(st.LastError, "not connected") && st.Export == export.Idle
	})
}

func TestSaveSequence(t *testing.T) {
	dir := t.TempDir()
	h := startSession(t,
		mockbackend.Config{FrameCount: 4, FrameInterval: time.Millisecond},
		Config{AutoRun: true, ExportDir: dir},
		"spin()",
	)
	waitFor(t, h.sess, "frames", func(st Status) bool { return st.Buffered == 4 })

	h.sess.SaveSequence()
	st := waitFor(t, h.sess, "saved", func(st Status) bool { return st.LastSaved != "" })
	if filepath.Dir(st.LastSaved) != dir {
		t.Errorf("saved to %s", st.LastSaved)
	}
	if _, err := os.Stat(st.LastSaved); err != nil {
		t.Error(err)
	}
}

func TestTeardownClosesConnection(t *testing.T) {
	h := startSession(t, mockbackend.Config{}, Config{}, "x")
	waitFor(t, h.sess, "connect", func(st Status) bool { return st.Connected })

	h.cancel()
	select {
	case <-h.sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.backend.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("backend still has a connection")
		}
		time.Sleep(time.Millisecond)
	}

	// Commands after teardown are dropped, not blocked.
	for range 32 {
		h.sess.Play()
	}
}

func TestStatusLines(t *testing.T) {
	st := Status{Mode: playback.Running, Cursor: 3, Buffered: 10, Resolution: 16, Connected: true, LastError: "boom"}
	lines := st.Lines()
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"running  frame 3/10", "grid 16x16  connected", "export idle", "error: boom"} {
		if !strings.Contains(joined, want) {
			t.Errorf("lines missing %q:\n%s", want, joined)
		}
	}
}
