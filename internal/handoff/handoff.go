// Package handoff passes finished exports to the posting flow.
package handoff

import (
	"context"
	"log/slog"

	"github.com/junsooki/framereel/internal/drafts"
)

// Handoff receives a finished export and starts the posting flow.
// Deliver must return quickly; it runs on the session's event loop.
type Handoff interface {
	Deliver(ctx context.Context, d drafts.Draft) error
}

// Func adapts a function to Handoff.
type Func func(ctx context.Context, d drafts.Draft) error

func (f Func) Deliver(ctx context.Context, d drafts.Draft) error {
	return f(ctx, d)
}

// Log announces drafts in the log; the posting flow picks them up from the
// draft store by id.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Deliver(ctx context.Context, d drafts.Draft) error {
	l.logger.InfoContext(ctx, "draft ready for posting",
		"draft_id", d.ID,
		"asset", d.AssetReference,
		"dimension", d.Dimension,
		"expires", d.ExpiresAt,
	)
	return nil
}

// Multi delivers to every handoff in order and returns the first error.
type Multi []Handoff

func (m Multi) Deliver(ctx context.Context, d drafts.Draft) error {
	var first error
	for _, h := range m {
		if err := h.Deliver(ctx, d); err != nil && first == nil {
			first = err
		}
	}
	return first
}
