package sync

import "context"

// Status summarizes what a successful sync cycle did. Callers needing finer
// detail inspect the error instead.
type Status string

const (
	// StatusPushCompleted means local changes were uploaded and the watermark
	// advanced; no remote changes were requested or applied.
	StatusPushCompleted Status = "push completed"

	// StatusFullSyncCompleted means local changes were uploaded, the remote
	// bundle was applied, and the watermark advanced.
	StatusFullSyncCompleted Status = "full sync completed"
)

// Syncer runs sync cycles against the local store.
//
// A cycle is single-flight: invoking Sync while another cycle is running on
// the same Syncer returns ErrInProgress immediately. The watermark only
// advances when the whole cycle succeeds, so a failed cycle is always safe to
// retry - the rows it would have pushed are simply collected again next time.
type Syncer interface {
	// Sync performs one sync cycle authenticated by the bearer token.
	//
	// With pushOnly set, local changes are uploaded and the watermark
	// advances without requesting or applying remote changes. Otherwise the
	// remote bundle returned by the exchange is applied locally in a single
	// transaction before the watermark advances.
	//
	// Returns the cycle's status, or an *Error tagged with the failing layer
	// (store, network, serialization). On error the store and watermark are
	// exactly as they were before the cycle started.
	Sync(ctx context.Context, token string, pushOnly bool) (Status, error)
}

// Exchanger is the single network dependency of a sync cycle. Implemented by
// ExchangeClient; substituted in tests.
type Exchanger interface {
	Exchange(ctx context.Context, token string, local *Bundle, pushOnly bool) (*Bundle, error)
}
