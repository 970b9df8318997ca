package work

import (
	"testing"
	"time"

	"github.com/rickgao/nano-relay/internal/model"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestCorrelator_IDsAreMonotonicFromOne(t *testing.T) {
	c := New()
	client := model.NewClientID()

	for want := uint64(1); want <= 5; want++ {
		req := c.Submit(client, "H", t0)
		if req.ID != want {
			t.Errorf("ID = %d, want %d", req.ID, want)
		}
		if req.State != StateSent {
			t.Errorf("State = %s, want %s", req.State, StateSent)
		}
	}
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestCorrelator_IDsNotReusedAfterResolve(t *testing.T) {
	c := New()
	client := model.NewClientID()

	a := c.Submit(client, "A", t0)
	c.Resolve(a.ID)
	b := c.Submit(client, "B", t0)

	if b.ID == a.ID {
		t.Errorf("id %d reused", b.ID)
	}
}

func TestCorrelator_ResolveDelivers(t *testing.T) {
	c := New()
	client := model.NewClientID()
	req := c.Submit(client, "H", t0)

	got, ok := c.Resolve(req.ID)
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	if got.Client != client || got.Hash != "H" {
		t.Errorf("Resolve() = %+v, want client %s hash H", got, client)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}

	if _, ok := c.Resolve(req.ID); ok {
		t.Error("second Resolve() ok = true, want false")
	}
}

func TestCorrelator_ResolveUnknown(t *testing.T) {
	c := New()
	if _, ok := c.Resolve(42); ok {
		t.Error("Resolve(unknown) ok = true, want false")
	}
	if _, ok := c.Fallback(42); ok {
		t.Error("Fallback(unknown) ok = true, want false")
	}
	if _, ok := c.Complete(42); ok {
		t.Error("Complete(unknown) ok = true, want false")
	}
}

func TestCorrelator_FallbackThenComplete(t *testing.T) {
	c := New()
	client := model.NewClientID()
	req := c.Submit(client, "H", t0)

	got, ok := c.Fallback(req.ID)
	if !ok || got.State != StateFallback {
		t.Fatalf("Fallback() = %+v, %v, want fallback state", got, ok)
	}

	// Late provider reply after failover is ignored.
	if _, ok := c.Resolve(req.ID); ok {
		t.Error("Resolve() after Fallback ok = true, want false")
	}
	// A second failover does not start another node call.
	if _, ok := c.Fallback(req.ID); ok {
		t.Error("second Fallback() ok = true, want false")
	}

	got, ok = c.Complete(req.ID)
	if !ok || got.Hash != "H" {
		t.Errorf("Complete() = %+v, %v, want hash H, true", got, ok)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCorrelator_AbandonDropsLateReply(t *testing.T) {
	c := New()
	client := model.NewClientID()
	other := model.NewClientID()

	a := c.Submit(client, "A", t0)
	b := c.Submit(client, "B", t0)
	o := c.Submit(other, "O", t0)

	if got := c.Abandon(client); len(got) != 2 {
		t.Errorf("Abandon() returned %d requests, want 2", len(got))
	}
	if c.PendingFor(client) != 0 {
		t.Errorf("PendingFor() = %d, want 0", c.PendingFor(client))
	}

	if _, ok := c.Resolve(a.ID); ok {
		t.Error("Resolve() of abandoned request ok = true, want false")
	}
	if _, ok := c.Fallback(b.ID); ok {
		t.Error("Fallback() of abandoned request ok = true, want false")
	}
	if _, ok := c.Resolve(o.ID); !ok {
		t.Error("Resolve() of other client's request ok = false, want true")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCorrelator_AbandonDuringFallback(t *testing.T) {
	c := New()
	client := model.NewClientID()
	req := c.Submit(client, "H", t0)

	c.Fallback(req.ID)
	c.Abandon(client)

	if _, ok := c.Complete(req.ID); ok {
		t.Error("Complete() of abandoned request ok = true, want false")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCorrelator_AbandonUnknownClient(t *testing.T) {
	c := New()
	if got := c.Abandon(model.NewClientID()); len(got) != 0 {
		t.Errorf("Abandon() returned %d requests, want 0", len(got))
	}
}

func TestCorrelator_Expire(t *testing.T) {
	c := New()
	client := model.NewClientID()
	gone := model.NewClientID()
	grace := 15 * time.Second

	old := c.Submit(client, "OLD", t0)
	fresh := c.Submit(client, "NEW", t0.Add(10*time.Second))
	failing := c.Submit(client, "FB", t0)
	c.Fallback(failing.ID)
	c.Submit(gone, "X", t0)
	c.Abandon(gone)

	fallback, purged := c.Expire(t0.Add(grace), grace)

	if len(fallback) != 1 || fallback[0].ID != old.ID {
		t.Fatalf("Expire() fallback = %+v, want only id %d", fallback, old.ID)
	}
	if fallback[0].State != StateFallback {
		t.Errorf("State = %s, want %s", fallback[0].State, StateFallback)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if got, _ := c.Get(fresh.ID); got.State != StateSent {
		t.Errorf("fresh State = %s, want %s", got.State, StateSent)
	}
	if got, _ := c.Get(failing.ID); got.State != StateFallback {
		t.Errorf("failing State = %s, want %s", got.State, StateFallback)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	// Already moved; a second sweep is a no-op.
	fallback, purged = c.Expire(t0.Add(grace), grace)
	if len(fallback) != 0 || purged != 0 {
		t.Errorf("second Expire() = %d, %d, want 0, 0", len(fallback), purged)
	}
}

func TestCorrelator_IDWrapSkipsZeroAndBusy(t *testing.T) {
	c := New()
	client := model.NewClientID()

	first := c.Submit(client, "A", t0)
	c.lastID = ^uint64(0)

	next := c.Submit(client, "B", t0)
	if next.ID == 0 || next.ID == first.ID {
		t.Errorf("ID after wrap = %d, want neither 0 nor %d", next.ID, first.ID)
	}
	if next.ID != 2 {
		t.Errorf("ID after wrap = %d, want 2", next.ID)
	}
}

func TestNewOutcome(t *testing.T) {
	req := Request{ID: 7, Client: model.NewClientID(), Hash: "H", CreatedAt: t0}
	done := t0.Add(250 * time.Millisecond)

	got := NewOutcome(req, SourceNode, done)
	if got.RequestID != 7 || got.Hash != "H" || got.Client != req.Client {
		t.Errorf("NewOutcome() = %+v, want request fields copied", got)
	}
	if got.Latency != 250*time.Millisecond {
		t.Errorf("Latency = %v, want 250ms", got.Latency)
	}
	if got.Source != SourceNode {
		t.Errorf("Source = %s, want %s", got.Source, SourceNode)
	}
}
