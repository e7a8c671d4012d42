// Package mockbackend is a development rendering backend. It speaks the
// render wire protocol and streams a generated animation for any source.
package mockbackend

import (
	"context"
	"fmt"
	"hash/fnv"
	"image/color"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/junsooki/framereel/internal/protocol"
)

const (
	DefaultFrameCount    = 24
	DefaultFrameInterval = 20 * time.Millisecond
	DefaultPath          = "/ws/render"

	maxDimension = 256
	writeWait    = 10 * time.Second
)

type Config struct {
	FrameCount    int
	FrameInterval time.Duration
	// BucketURL prefixes the asset references returned for exports.
	BucketURL string
}

// Handler upgrades requests to WebSocket connections and serves each one.
type Handler struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func NewHandler(cfg Config) *Handler {
	if cfg.FrameCount <= 0 {
		cfg.FrameCount = DefaultFrameCount
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.BucketURL == "" {
		cfg.BucketURL = "mock://bucket/"
	}
	return &Handler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// Mux returns a mux serving the render endpoint at path and a health check.
func (h *Handler) Mux(path string) *http.ServeMux {
	if path == "" {
		path = DefaultPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, h)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("mockbackend upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &conn{ws: ws, cfg: h.cfg}
	h.track(c, true)
	defer h.track(c, false)

	slog.Info("mockbackend client connected", "remote", r.RemoteAddr)
	c.serve(r.Context())
	slog.Info("mockbackend client disconnected", "remote", r.RemoteAddr)
}

// Close drops every open connection.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.ws.Close()
	}
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Handler) track(c *conn, open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if open {
		h.conns[c] = struct{}{}
	} else {
		delete(h.conns, c)
	}
}

type conn struct {
	ws  *websocket.Conn
	cfg Config

	writeMu sync.Mutex

	// Owned by serve.
	cancelStream context.CancelFunc
}

func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.ws.Close()

	var streams sync.WaitGroup
	defer streams.Wait()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.cancelStream != nil {
				c.cancelStream()
			}
			return
		}
		intent, err := protocol.DecodeIntent(data)
		if err != nil {
			slog.Warn("mockbackend dropped malformed request", "error", err)
			continue
		}

		switch in := intent.(type) {
		case protocol.ProcessSource:
			if c.cancelStream != nil {
				c.cancelStream()
			}
			if strings.TrimSpace(in.Source) == "" {
				c.writeError("empty source")
				continue
			}
			if in.Dimension < 1 || in.Dimension > maxDimension {
				c.writeError(fmt.Sprintf("dimension %d out of range 1..%d", in.Dimension, maxDimension))
				continue
			}
			streamCtx, streamCancel := context.WithCancel(ctx)
			c.cancelStream = streamCancel
			streams.Add(1)
			go func() {
				defer streams.Done()
				c.stream(streamCtx, in)
			}()
		case protocol.ExportAsset:
			if strings.TrimSpace(in.Source) == "" {
				c.writeError("empty source")
				continue
			}
			url := c.cfg.BucketURL + uuid.NewString() + ".png"
			slog.Info("mockbackend export", "dimension", in.Dimension, "url", url)
			c.write(protocol.EncodeUploadSuccess(url))
		}
	}
}

// stream sends FrameCount frames of the requested side, one per interval,
// until done or cancelled by a newer request.
func (c *conn) stream(ctx context.Context, in protocol.ProcessSource) {
	seed := Seed(in.Source)
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for id := 1; id <= c.cfg.FrameCount; id++ {
		if !c.write(protocol.EncodeFrame(id, Generate(id, in.Dimension, seed))) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	slog.Debug("mockbackend stream finished", "frames", c.cfg.FrameCount, "dimension", in.Dimension)
}

func (c *conn) writeError(msg string) {
	c.write(protocol.EncodeError(msg))
}

func (c *conn) write(data []byte, err error) bool {
	if err != nil {
		slog.Error("mockbackend encode failed", "error", err)
		return false
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("mockbackend write failed", "error", err)
		return false
	}
	return true
}

// Seed derives the animation seed from the source text.
func Seed(source string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(source))
	return h.Sum32()
}

// Generate returns the pixels of frame id: a diagonal colour band that moves
// one cell per frame, tinted by seed.
func Generate(id, side int, seed uint32) []color.NRGBA {
	pixels := make([]color.NRGBA, side*side)
	tint := uint8(seed)
	for y := range side {
		for x := range side {
			band := (x + y + id) % side
			v := uint8(band * 255 / max(side-1, 1))
			pixels[y*side+x] = color.NRGBA{
				R: v,
				G: uint8(y*255/max(side-1, 1)) ^ tint,
				B: 255 - v,
				A: 255,
			}
		}
	}
	return pixels
}
