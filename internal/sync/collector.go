package sync

import (
	"context"
	"database/sql"
	"fmt"
)

// readWatermark loads the last successful sync time, defaulting to Epoch if
// no cycle has ever completed. Must be called with the store lock held.
func readWatermark(ctx context.Context, conn *sql.DB) (string, error) {
	var ts string
	err := conn.QueryRowContext(ctx,
		"SELECT value FROM sync_metadata WHERE key = ?", watermarkKey).Scan(&ts)
	if err == sql.ErrNoRows {
		return Epoch, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read watermark: %w", err)
	}
	return ts, nil
}

// writeWatermark records ts as the new watermark within an open transaction,
// so the advance commits or rolls back together with the change application.
func writeWatermark(ctx context.Context, tx *sql.Tx, ts string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_metadata (key, value) VALUES (?, ?)", watermarkKey, ts)
	if err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return nil
}

// collectChanges gathers every row modified strictly after since, tombstones
// included, into a bundle carrying since as its reference watermark.
//
// Read-only; must be called with the store lock held. Rows come back in id
// order, which is all the ordering the exchange needs.
func collectChanges(ctx context.Context, conn *sql.DB, since string) (*Bundle, error) {
	bundle := &Bundle{
		Assistants:   []Assistant{},
		Topics:       []Topic{},
		Messages:     []Message{},
		LastSyncTime: since,
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id, name, prompt, updated_at, is_deleted
		 FROM assistants WHERE updated_at > ? ORDER BY id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed assistants: %w", err)
	}
	for rows.Next() {
		var a Assistant
		var prompt sql.NullString
		var deleted int
		if err := rows.Scan(&a.ID, &a.Name, &prompt, &a.UpdatedAt, &deleted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan assistant: %w", err)
		}
		a.Prompt = prompt.String
		a.IsDeleted = deleted == 1
		bundle.Assistants = append(bundle.Assistants, a)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating assistants: %w", err)
	}

	rows, err = conn.QueryContext(ctx,
		`SELECT id, assistant_id, name, summary, updated_at, is_deleted
		 FROM topics WHERE updated_at > ? ORDER BY id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed topics: %w", err)
	}
	for rows.Next() {
		var t Topic
		var summary sql.NullString
		var deleted int
		if err := rows.Scan(&t.ID, &t.AssistantID, &t.Name, &summary, &t.UpdatedAt, &deleted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		if summary.Valid {
			t.Summary = &summary.String
		}
		t.IsDeleted = deleted == 1
		bundle.Topics = append(bundle.Topics, t)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating topics: %w", err)
	}

	rows, err = conn.QueryContext(ctx,
		`SELECT id, topic_id, role, content, model_id, display_files, display_text,
			timestamp, updated_at, is_deleted
		 FROM messages WHERE updated_at > ? ORDER BY id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed messages: %w", err)
	}
	for rows.Next() {
		var m Message
		var modelID, displayFiles, displayText sql.NullString
		var deleted int
		if err := rows.Scan(&m.ID, &m.TopicID, &m.Role, &m.Content,
			&modelID, &displayFiles, &displayText,
			&m.Timestamp, &m.UpdatedAt, &deleted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if modelID.Valid {
			m.ModelID = &modelID.String
		}
		if displayFiles.Valid {
			m.DisplayFiles = &displayFiles.String
		}
		if displayText.Valid {
			m.DisplayText = &displayText.String
		}
		m.IsDeleted = deleted == 1
		bundle.Messages = append(bundle.Messages, m)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return bundle, nil
}

// closeRows closes rows and surfaces any iteration error.
func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
