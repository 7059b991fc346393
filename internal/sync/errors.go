package sync

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure by which layer produced it.
type Kind int

const (
	// KindStore covers query, prepare and transaction failures against the
	// local database.
	KindStore Kind = iota + 1

	// KindNetwork covers connection failures, timeouts and non-2xx responses
	// from the exchange endpoint.
	KindNetwork

	// KindSerialization covers malformed bundles that cannot be encoded or
	// decoded.
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindStore:
		return "store"
	case KindNetwork:
		return "network"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by a sync cycle. It tags the
// failure with its Kind and the operation that failed, wrapping the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sync %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrInProgress is returned when Sync is invoked while another cycle is
// already running. The cycle is single-flight by contract; concurrent callers
// fail fast instead of double-reading the watermark.
var ErrInProgress = errors.New("sync already in progress")

// IsStore reports whether err is a sync failure originating in the local store.
func IsStore(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindStore
}

// IsNetwork reports whether err is a sync failure originating in the exchange
// round trip. Network failures are transient; the caller may simply retry.
func IsNetwork(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNetwork
}

// IsSerialization reports whether err is a malformed-bundle failure.
func IsSerialization(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSerialization
}

func storeErr(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

func networkErr(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func serializationErr(op string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Err: err}
}
