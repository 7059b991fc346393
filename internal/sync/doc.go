// Package sync implements incremental bidirectional synchronization between
// the local chat store and the remote account service.
//
// A sync cycle is a single pass through a fixed sequence:
//
//	read watermark -> collect local changes -> exchange -> apply remote changes -> advance watermark
//
// The watermark is the timestamp of the last successful cycle, persisted in
// the store's sync_metadata table. Change collection picks up every assistant,
// topic and message row whose updated_at is strictly greater than the
// watermark, tombstoned rows included, so deletions propagate. The collected
// bundle is sent to the exchange endpoint in one HTTP round trip; for a full
// cycle the response is a bundle of the remote side's changes, applied locally
// in one transaction with assistants before topics before messages so foreign
// keys are always satisfiable.
//
// The store lock is taken twice per cycle, never across the network call:
// once to read the watermark and collect changes, once to apply the remote
// bundle and advance the watermark. Local writes that land between the two
// acquisitions are picked up by the next cycle, because the watermark the
// collector will compare against has not yet moved past them.
//
// The watermark only advances when a cycle fully succeeds. A failed cycle
// leaves the store byte-identical to its pre-cycle state, so retrying is
// always safe: the caller simply invokes Sync again.
//
// Conflict resolution is last-writer-wins with the remote side winning
// unconditionally; see ConflictPolicy for the pluggable alternative.
package sync
