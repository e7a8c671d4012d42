package frame

import (
	"log/slog"
	"maps"
	"slices"
)

// Buffer holds the frames of the live sequence keyed by id.
//
// A Buffer is owned by a single playback session and is not safe for
// concurrent use. Readers must tolerate a partially filled sequence: any id
// may be missing at any time.
type Buffer struct {
	frames map[int]*Frame
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{frames: make(map[int]*Frame)}
}

// Reset discards every stored frame.
func (b *Buffer) Reset() {
	clear(b.frames)
}

// Put stores f, replacing any frame with the same id. A frame with id 1
// starts a new sequence and discards everything stored before it.
// Malformed frames are logged and rejected; Put reports whether f was stored.
func (b *Buffer) Put(f *Frame) bool {
	if !f.valid() {
		attrs := []any{}
		if f != nil {
			attrs = append(attrs, "frame_id", f.id, "pixels", len(f.pixels))
		}
		slog.Warn("frame buffer rejected malformed frame", attrs...)
		return false
	}
	if f.id == 1 {
		b.Reset()
	}
	b.frames[f.id] = f
	return true
}

// Get returns the frame with the given id, if it has arrived.
func (b *Buffer) Get(id int) (*Frame, bool) {
	f, ok := b.frames[id]
	return f, ok
}

// Len returns the number of frames currently stored.
func (b *Buffer) Len() int {
	return len(b.frames)
}

// Frames returns the stored frames ordered by id.
func (b *Buffer) Frames() []*Frame {
	ids := slices.Sorted(maps.Keys(b.frames))
	out := make([]*Frame, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.frames[id])
	}
	return out
}
