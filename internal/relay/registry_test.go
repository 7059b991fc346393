package relay

import (
	"context"
	"testing"
)

func TestRegistryBeginCancelsPrevious(t *testing.T) {
	r := NewRegistry()

	first, releaseFirst := r.Begin(context.Background(), "a1", "t1")
	defer releaseFirst()

	second, releaseSecond := r.Begin(context.Background(), "a1", "t1")
	defer releaseSecond()

	select {
	case <-first.Done():
	default:
		t.Error("starting a second stream did not cancel the first")
	}
	if second.Err() != nil {
		t.Error("new stream cancelled at start")
	}
	if r.Active() != 1 {
		t.Errorf("expected 1 active stream, got %d", r.Active())
	}
}

func TestRegistryIsolatesConversations(t *testing.T) {
	r := NewRegistry()

	other, releaseOther := r.Begin(context.Background(), "a1", "t2")
	defer releaseOther()

	_, release := r.Begin(context.Background(), "a1", "t1")
	defer release()

	if other.Err() != nil {
		t.Error("stream for a different conversation was cancelled")
	}
	if r.Active() != 2 {
		t.Errorf("expected 2 active streams, got %d", r.Active())
	}
}

func TestRegistryStop(t *testing.T) {
	r := NewRegistry()

	ctx, release := r.Begin(context.Background(), "a1", "t1")
	defer release()

	r.Stop("a1", "t1")

	select {
	case <-ctx.Done():
	default:
		t.Error("Stop did not cancel the stream")
	}
	if r.Active() != 0 {
		t.Errorf("expected 0 active streams, got %d", r.Active())
	}

	// Stopping an idle conversation is a no-op.
	r.Stop("a1", "t1")
}

func TestRegistryReleaseKeepsReplacement(t *testing.T) {
	r := NewRegistry()

	_, releaseFirst := r.Begin(context.Background(), "a1", "t1")
	replacement, releaseSecond := r.Begin(context.Background(), "a1", "t1")
	defer releaseSecond()

	// The first stream winding down must not unregister its replacement.
	releaseFirst()

	if r.Active() != 1 {
		t.Errorf("expected replacement still registered, got %d active", r.Active())
	}
	if replacement.Err() != nil {
		t.Error("replacement stream cancelled by stale release")
	}
}
