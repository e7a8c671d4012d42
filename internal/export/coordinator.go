// Package export coordinates the one-shot "finalize and export" request.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/junsooki/framereel/internal/drafts"
	"github.com/junsooki/framereel/internal/handoff"
	"github.com/junsooki/framereel/internal/protocol"
)

// ErrExportPending is returned by RequestExport while an earlier request is
// still awaiting its result.
var ErrExportPending = errors.New("export: request already pending")

// State of the coordinator.
type State int

const (
	Idle State = iota
	Awaiting
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Awaiting:
		return "awaiting"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Sender sends intents to the backend. *protocol.Client satisfies it.
type Sender interface {
	Send(intent protocol.Intent) error
}

// DraftStore keeps finished exports for the posting flow. *drafts.Store
// satisfies it.
type DraftStore interface {
	Save(ctx context.Context, d drafts.Draft) (drafts.Draft, error)
}

// Coordinator holds the state of one export request. It is not safe for
// concurrent use; the session loop owns it.
type Coordinator struct {
	sender  Sender
	store   DraftStore
	handoff handoff.Handoff

	state     State
	requestID string
	source    string
	dimension int
	last      drafts.Draft
}

// NewCoordinator creates an idle coordinator. store and h may be nil.
func NewCoordinator(sender Sender, store DraftStore, h handoff.Handoff) *Coordinator {
	return &Coordinator{sender: sender, store: store, handoff: h}
}

// RequestExport sends ExportAsset for source and waits for the result.
func (c *Coordinator) RequestExport(source string, dimension int) error {
	if c.state == Awaiting {
		return ErrExportPending
	}
	if err := c.sender.Send(protocol.ExportAsset{Source: source, Dimension: dimension}); err != nil {
		return fmt.Errorf("export request: %w", err)
	}
	c.state = Awaiting
	c.requestID = uuid.NewString()
	c.source = source
	c.dimension = dimension
	slog.Info("export requested", "request_id", c.requestID, "dimension", dimension)
	return nil
}

// HandleExported completes the pending request: the asset reference and
// source are saved as a draft and handed off. It reports whether the event
// was accepted; without a pending request it is ignored.
func (c *Coordinator) HandleExported(ctx context.Context, assetReference string) bool {
	if c.state != Awaiting {
		slog.Debug("export result ignored, nothing pending", "asset", assetReference, "state", c.state)
		return false
	}
	c.state = Completed

	d := drafts.Draft{
		ID:             c.requestID,
		AssetReference: assetReference,
		Source:         c.source,
		Dimension:      c.dimension,
	}
	if c.store != nil {
		saved, err := c.store.Save(ctx, d)
		if err != nil {
			slog.Error("export draft save failed", "request_id", c.requestID, "error", err)
		} else {
			d = saved
		}
	}
	c.last = d

	if c.handoff != nil {
		if err := c.handoff.Deliver(ctx, d); err != nil {
			slog.Error("export handoff failed", "request_id", c.requestID, "error", err)
		}
	}
	slog.Info("export completed", "request_id", c.requestID, "asset", assetReference)
	return true
}

// HandleFailure abandons a pending request so a new one can be made.
func (c *Coordinator) HandleFailure(reason string) {
	if c.state != Awaiting {
		return
	}
	slog.Warn("export abandoned", "request_id", c.requestID, "reason", reason)
	c.state = Idle
	c.requestID = ""
}

func (c *Coordinator) State() State {
	return c.state
}

// Last returns the draft of the most recent completed export.
func (c *Coordinator) Last() (drafts.Draft, bool) {
	return c.last, c.last.ID != ""
}
