package relay

import (
	"context"
	"sync"
)

// streamHandle identifies one registered stream. Pointer identity
// distinguishes a stream from its replacement under the same key.
type streamHandle struct {
	cancel context.CancelFunc
}

// Registry tracks the in-flight stream of each conversation so that starting
// a new stream, or an explicit stop, cancels the old one. At most one stream
// runs per conversation: a second reply appearing in the same chat window is
// always a bug.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*streamHandle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*streamHandle)}
}

func streamKey(assistantID, topicID string) string {
	return assistantID + "-" + topicID
}

// Begin registers a new stream for the conversation, cancelling any stream
// already running for it. The returned context governs the new stream; the
// caller must call the returned release function when the stream ends.
func (r *Registry) Begin(ctx context.Context, assistantID, topicID string) (context.Context, func()) {
	key := streamKey(assistantID, topicID)
	streamCtx, cancel := context.WithCancel(ctx)
	handle := &streamHandle{cancel: cancel}

	r.mu.Lock()
	if old, ok := r.streams[key]; ok {
		old.cancel()
	}
	r.streams[key] = handle
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		// Only remove the entry if it is still ours; a newer stream may have
		// replaced it already.
		if r.streams[key] == handle {
			delete(r.streams, key)
		}
		r.mu.Unlock()
		cancel()
	}
	return streamCtx, release
}

// Stop cancels the conversation's in-flight stream, if any.
func (r *Registry) Stop(assistantID, topicID string) {
	key := streamKey(assistantID, topicID)

	r.mu.Lock()
	handle, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		handle.cancel()
	}
}

// Active returns the number of in-flight streams.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
