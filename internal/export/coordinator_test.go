package export

import (
	"context"
	"errors"
	"testing"

	"github.com/junsooki/framereel/internal/drafts"
	"github.com/junsooki/framereel/internal/handoff"
	"github.com/junsooki/framereel/internal/protocol"
)

type fakeSender struct {
	sent []protocol.Intent
	err  error
}

func (f *fakeSender) Send(intent protocol.Intent) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, intent)
	return nil
}

type fakeStore struct {
	saved []drafts.Draft
}

func (f *fakeStore) Save(ctx context.Context, d drafts.Draft) (drafts.Draft, error) {
	f.saved = append(f.saved, d)
	return d, nil
}

func newCoordinator(t *testing.T) (*Coordinator, *fakeSender, *fakeStore, *[]drafts.Draft) {
	t.Helper()
	sender := &fakeSender{}
	store := &fakeStore{}
	var delivered []drafts.Draft
	h := handoff.Func(func(ctx context.Context, d drafts.Draft) error {
		delivered = append(delivered, d)
		return nil
	})
	return NewCoordinator(sender, store, h), sender, store, &delivered
}

func TestRequestExportSendsIntent(t *testing.T) {
	c, sender, _, _ := newCoordinator(t)

	if err := c.RequestExport("spin()", 32); err != nil {
		t.Fatalf("RequestExport: %v", err)
	}
	if c.State() != Awaiting {
		t.Errorf("state = %v, want awaiting", c.State())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d intents, want 1", len(sender.sent))
	}
	got, ok := sender.sent[0].(protocol.ExportAsset)
	if !ok || got.Source != "spin()" || got.Dimension != 32 {
		t.Errorf("sent %#v", sender.sent[0])
	}
}

func TestRequestExportWhilePending(t *testing.T) {
	c, sender, _, _ := newCoordinator(t)
	if err := c.RequestExport("a", 8); err != nil {
		t.Fatal(err)
	}
	if err := c.RequestExport("b", 8); !errors.Is(err, ErrExportPending) {
		t.Errorf("second request error = %v, want ErrExportPending", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d intents, want 1", len(sender.sent))
	}
}

func TestRequestExportSendFailure(t *testing.T) {
	c, sender, _, _ := newCoordinator(t)
	sender.err = protocol.ErrNotConnected

	if err := c.RequestExport("a", 8); !errors.Is(err, protocol.ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestExportIdempotent(t *testing.T) {
	c, _, store, delivered := newCoordinator(t)
	ctx := context.Background()

	if err := c.RequestExport("wave()", 16); err != nil {
		t.Fatal(err)
	}
	if !c.HandleExported(ctx, "https://bucket/one.gif") {
		t.Error("first result not accepted")
	}
	if c.HandleExported(ctx, "https://bucket/one.gif") {
		t.Error("second result accepted")
	}

	if len(*delivered) != 1 {
		t.Fatalf("delivered %d times, want 1", len(*delivered))
	}
	d := (*delivered)[0]
	if d.AssetReference != "https://bucket/one.gif" || d.Source != "wave()" || d.Dimension != 16 || d.ID == "" {
		t.Errorf("draft = %+v", d)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d drafts, want 1", len(store.saved))
	}
	if c.State() != Completed {
		t.Errorf("state = %v, want completed", c.State())
	}
	last, ok := c.Last()
	if !ok || last.ID != d.ID {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestExportedWithoutRequest(t *testing.T) {
	c, _, store, delivered := newCoordinator(t)

	if c.HandleExported(context.Background(), "https://bucket/x.gif") {
		t.Error("result accepted without a request")
	}
	if len(*delivered) != 0 || len(store.saved) != 0 {
		t.Errorf("delivered %d, saved %d", len(*delivered), len(store.saved))
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestFailureAllowsRetry(t *testing.T) {
	c, sender, _, delivered := newCoordinator(t)
	ctx := context.Background()

	if err := c.RequestExport("a", 8); err != nil {
		t.Fatal(err)
	}
	c.HandleFailure("upload failed")
	if c.State() != Idle {
		t.Fatalf("state = %v, want idle", c.State())
	}
	if c.HandleExported(ctx, "late") {
		t.Error("late result accepted after failure")
	}
	if err := c.RequestExport("a", 8); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !c.HandleExported(ctx, "ok") {
		t.Error("retry result not accepted")
	}
	if len(sender.sent) != 2 || len(*delivered) != 1 {
		t.Errorf("sent %d, delivered %d", len(sender.sent), len(*delivered))
	}
}

func TestNewRequestAfterCompletion(t *testing.T) {
	c, _, _, delivered := newCoordinator(t)
	ctx := context.Background()

	for _, ref := range []string{"one", "two"} {
		if err := c.RequestExport("s", 4); err != nil {
			t.Fatal(err)
		}
		c.HandleExported(ctx, ref)
	}
	if len(*delivered) != 2 {
		t.Fatalf("delivered %d, want 2", len(*delivered))
	}
	if (*delivered)[0].ID == (*delivered)[1].ID {
		t.Error("requests share an id")
	}
}
