package sync

// ConflictPolicy decides whether an incoming remote row replaces an existing
// local row with the same identity. Rows with no local counterpart are always
// inserted; the policy is only consulted on conflict.
//
// Timestamps are store-format strings (store.TimeLayout), which order
// lexicographically, so implementations may compare them directly.
type ConflictPolicy interface {
	// Replace reports whether the remote row should overwrite the local one.
	Replace(localUpdatedAt, remoteUpdatedAt string) bool
}

// RemoteWins overwrites the local row unconditionally, regardless of which
// side's timestamp is newer. This mirrors the service's exchange contract:
// whatever the server returns is authoritative. It is the default policy.
type RemoteWins struct{}

func (RemoteWins) Replace(_, _ string) bool { return true }

// NewerWins keeps whichever side was updated most recently, preferring the
// remote row on a tie. A true last-writer-wins scheme; not the default
// because the deployed service expects unconditional overwrite.
type NewerWins struct{}

func (NewerWins) Replace(local, remote string) bool { return remote >= local }
