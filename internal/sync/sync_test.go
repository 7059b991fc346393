package sync

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiodesk/aio/internal/store"
)

// setupTestStore creates a temporary database with schema initialized.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return st
}

// seedAssistant inserts an assistant row with an explicit updated_at.
func seedAssistant(t *testing.T, st *store.Store, id, name, updatedAt string, deleted bool) {
	t.Helper()
	err := st.With(func(conn *sql.DB) error {
		_, err := conn.Exec(
			`INSERT OR REPLACE INTO assistants (id, name, prompt, updated_at, is_deleted)
			 VALUES (?, ?, ?, ?, ?)`,
			id, name, "You are "+name, updatedAt, boolToInt(deleted))
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed assistant %s: %v", id, err)
	}
}

// seedTopic inserts a topic row with an explicit updated_at.
func seedTopic(t *testing.T, st *store.Store, id, assistantID, name, updatedAt string, deleted bool) {
	t.Helper()
	err := st.With(func(conn *sql.DB) error {
		_, err := conn.Exec(
			`INSERT OR REPLACE INTO topics (id, assistant_id, name, summary, updated_at, is_deleted)
			 VALUES (?, ?, ?, NULL, ?, ?)`,
			id, assistantID, name, updatedAt, boolToInt(deleted))
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed topic %s: %v", id, err)
	}
}

// seedMessage inserts a message row with an explicit updated_at.
func seedMessage(t *testing.T, st *store.Store, id, topicID, role, content, updatedAt string, deleted bool) {
	t.Helper()
	err := st.With(func(conn *sql.DB) error {
		_, err := conn.Exec(
			`INSERT OR REPLACE INTO messages (id, topic_id, role, content, model_id,
				display_files, display_text, timestamp, updated_at, is_deleted)
			 VALUES (?, ?, ?, ?, NULL, NULL, NULL, ?, ?, ?)`,
			id, topicID, role, content, updatedAt, updatedAt, boolToInt(deleted))
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed message %s: %v", id, err)
	}
}

// setWatermark writes the watermark directly.
func setWatermark(t *testing.T, st *store.Store, ts string) {
	t.Helper()
	if err := st.SetMeta(context.Background(), watermarkKey, ts); err != nil {
		t.Fatalf("failed to set watermark: %v", err)
	}
}

// getWatermark reads the current watermark, Epoch if unset.
func getWatermark(t *testing.T, st *store.Store) string {
	t.Helper()
	ts, err := st.GetMeta(context.Background(), watermarkKey, Epoch)
	if err != nil {
		t.Fatalf("failed to read watermark: %v", err)
	}
	return ts
}

// assistantRow is a raw assistants row, tombstones visible.
type assistantRow struct {
	Name      string
	Prompt    string
	UpdatedAt string
	Deleted   bool
}

// getAssistantRow reads an assistants row directly. Fails the test if the row
// does not exist.
func getAssistantRow(t *testing.T, st *store.Store, id string) assistantRow {
	t.Helper()
	var row assistantRow
	err := st.With(func(conn *sql.DB) error {
		var deleted int
		err := conn.QueryRow(
			"SELECT name, prompt, updated_at, is_deleted FROM assistants WHERE id = ?",
			id).Scan(&row.Name, &row.Prompt, &row.UpdatedAt, &deleted)
		row.Deleted = deleted == 1
		return err
	})
	if err != nil {
		t.Fatalf("failed to read assistant %s: %v", id, err)
	}
	return row
}

// countTable counts all rows in a table, tombstones included.
func countTable(t *testing.T, st *store.Store, table string) int {
	t.Helper()
	var count int
	err := st.With(func(conn *sql.DB) error {
		return conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	})
	if err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return count
}

// fixedClock returns a constant time.
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// mustTime parses a store-format timestamp.
func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(store.TimeLayout, s)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", s, err)
	}
	return ts
}

// fakeExchange records the request it saw and returns a canned response.
type fakeExchange struct {
	gotBundle   *Bundle
	gotToken    string
	gotPushOnly bool
	calls       int

	remote *Bundle
	err    error
}

func (f *fakeExchange) Exchange(_ context.Context, token string, local *Bundle, pushOnly bool) (*Bundle, error) {
	f.calls++
	f.gotToken = token
	f.gotBundle = local
	f.gotPushOnly = pushOnly
	if f.err != nil {
		return nil, f.err
	}
	if pushOnly {
		return nil, nil
	}
	if f.remote != nil {
		return f.remote, nil
	}
	return &Bundle{Assistants: []Assistant{}, Topics: []Topic{}, Messages: []Message{}}, nil
}

func strptr(s string) *string { return &s }
