package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/aiodesk/aio/internal/store"
)

// Clock abstracts time retrieval so the watermark a cycle records is
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// syncer implements the Syncer interface.
type syncer struct {
	store    *store.Store
	exchange Exchanger
	policy   ConflictPolicy
	clock    Clock
	logger   *log.Logger

	// flight enforces the single-flight contract: two interleaved cycles
	// would each read the same watermark and double-advance it.
	flight stdsync.Mutex
}

// Option customizes a Syncer.
type Option func(*syncer)

// WithPolicy overrides the conflict policy applied to remote rows.
// The default is RemoteWins.
func WithPolicy(p ConflictPolicy) Option {
	return func(s *syncer) { s.policy = p }
}

// WithClock overrides the clock used to stamp the advanced watermark.
func WithClock(c Clock) Option {
	return func(s *syncer) { s.clock = c }
}

// New creates a Syncer over the given store and exchange client.
//
// The store must be open and have its schema initialized. If logger is nil,
// a default logger writing to stderr is used.
//
// Example:
//
//	st, err := store.Open(dbPath)
//	if err != nil {
//	    return err
//	}
//	if err := st.InitSchema(); err != nil {
//	    return err
//	}
//	syncer := sync.New(st, sync.NewExchangeClient(accountURL, 0), nil)
func New(st *store.Store, exchange Exchanger, logger *log.Logger, opts ...Option) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	s := &syncer{
		store:    st,
		exchange: exchange,
		policy:   RemoteWins{},
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync implements Syncer.Sync.
//
// The store lock is held twice, never across the exchange: once for
// watermark read + collection, once for application + watermark advance.
func (s *syncer) Sync(ctx context.Context, token string, pushOnly bool) (Status, error) {
	if !s.flight.TryLock() {
		return "", ErrInProgress
	}
	defer s.flight.Unlock()

	// Phase 1: read the watermark and collect local changes under one lock
	// acquisition.
	var watermark string
	var local *Bundle
	err := s.store.With(func(conn *sql.DB) error {
		var err error
		if watermark, err = readWatermark(ctx, conn); err != nil {
			return err
		}
		local, err = collectChanges(ctx, conn, watermark)
		return err
	})
	if err != nil {
		return "", storeErr("collect", err)
	}

	s.logger.Printf("Collected %d changed rows since %s", local.Size(), watermark)

	// Phase 2: the network round trip, with no lock held.
	remote, err := s.exchange.Exchange(ctx, token, local, pushOnly)
	if err != nil {
		return "", err
	}

	// The watermark records when the cycle completed, not any row's
	// timestamp. Local writes racing the exchange keep updated_at values
	// past the old watermark, so they surface in the next cycle.
	now := s.clock.Now().UTC().Format(store.TimeLayout)

	// Phase 3: apply and advance under a second lock acquisition.
	if pushOnly {
		err := s.store.With(func(conn *sql.DB) error {
			_, err := conn.ExecContext(ctx,
				"INSERT OR REPLACE INTO sync_metadata (key, value) VALUES (?, ?)",
				watermarkKey, now)
			return err
		})
		if err != nil {
			return "", storeErr("advance", err)
		}
		s.logger.Printf("Push completed: %d rows sent, watermark now %s", local.Size(), now)
		return StatusPushCompleted, nil
	}

	err = s.store.With(func(conn *sql.DB) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := applyBundle(ctx, tx, remote, s.policy); err != nil {
			return err
		}
		if err := writeWatermark(ctx, tx, now); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", storeErr("apply", err)
	}

	s.logger.Printf("Full sync completed: %d rows sent, %d rows applied, watermark now %s",
		local.Size(), remote.Size(), now)
	return StatusFullSyncCompleted, nil
}
