package sync

import (
	"context"
	"database/sql"
	"fmt"
)

// applyBundle writes every row of a remote bundle into the open transaction.
//
// Assistants are applied before topics before messages so foreign keys are
// satisfiable even when the owner arrives in the same bundle. Any row failure
// aborts the transaction; the caller rolls back, so partial application is
// never observable.
//
// Each row is an upsert-by-identity governed by the conflict policy: missing
// rows are inserted as-is, existing rows are overwritten when the policy says
// so. A tombstoned incoming row is applied like any other, including as a
// fresh insert.
func applyBundle(ctx context.Context, tx *sql.Tx, bundle *Bundle, policy ConflictPolicy) error {
	for i := range bundle.Assistants {
		if err := applyAssistant(ctx, tx, &bundle.Assistants[i], policy); err != nil {
			return err
		}
	}
	for i := range bundle.Topics {
		if err := applyTopic(ctx, tx, &bundle.Topics[i], policy); err != nil {
			return err
		}
	}
	for i := range bundle.Messages {
		if err := applyMessage(ctx, tx, &bundle.Messages[i], policy); err != nil {
			return err
		}
	}
	return nil
}

// localUpdatedAt reads the updated_at of an existing row, reporting whether
// the row exists at all.
func localUpdatedAt(ctx context.Context, tx *sql.Tx, table, id string) (string, bool, error) {
	var ts string
	err := tx.QueryRowContext(ctx,
		"SELECT updated_at FROM "+table+" WHERE id = ?", id).Scan(&ts)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s %s: %w", table, id, err)
	}
	return ts, true, nil
}

func applyAssistant(ctx context.Context, tx *sql.Tx, a *Assistant, policy ConflictPolicy) error {
	local, exists, err := localUpdatedAt(ctx, tx, "assistants", a.ID)
	if err != nil {
		return err
	}

	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assistants (id, name, prompt, updated_at, is_deleted)
			 VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.Prompt, a.UpdatedAt, boolToInt(a.IsDeleted))
		if err != nil {
			return fmt.Errorf("failed to insert assistant %s: %w", a.ID, err)
		}
		return nil
	}

	if !policy.Replace(local, a.UpdatedAt) {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE assistants SET name = ?, prompt = ?, updated_at = ?, is_deleted = ?
		 WHERE id = ?`,
		a.Name, a.Prompt, a.UpdatedAt, boolToInt(a.IsDeleted), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update assistant %s: %w", a.ID, err)
	}
	return nil
}

func applyTopic(ctx context.Context, tx *sql.Tx, t *Topic, policy ConflictPolicy) error {
	local, exists, err := localUpdatedAt(ctx, tx, "topics", t.ID)
	if err != nil {
		return err
	}

	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO topics (id, assistant_id, name, summary, updated_at, is_deleted)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.AssistantID, t.Name, nullable(t.Summary), t.UpdatedAt, boolToInt(t.IsDeleted))
		if err != nil {
			return fmt.Errorf("failed to insert topic %s: %w", t.ID, err)
		}
		return nil
	}

	if !policy.Replace(local, t.UpdatedAt) {
		return nil
	}

	// A topic never moves between assistants, so assistant_id is left alone
	// on update.
	_, err = tx.ExecContext(ctx,
		`UPDATE topics SET name = ?, summary = ?, updated_at = ?, is_deleted = ?
		 WHERE id = ?`,
		t.Name, nullable(t.Summary), t.UpdatedAt, boolToInt(t.IsDeleted), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update topic %s: %w", t.ID, err)
	}
	return nil
}

func applyMessage(ctx context.Context, tx *sql.Tx, m *Message, policy ConflictPolicy) error {
	local, exists, err := localUpdatedAt(ctx, tx, "messages", m.ID)
	if err != nil {
		return err
	}

	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, topic_id, role, content, model_id, display_files,
				display_text, timestamp, updated_at, is_deleted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.TopicID, m.Role, m.Content,
			nullable(m.ModelID), nullable(m.DisplayFiles), nullable(m.DisplayText),
			m.Timestamp, m.UpdatedAt, boolToInt(m.IsDeleted))
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
		return nil
	}

	if !policy.Replace(local, m.UpdatedAt) {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE messages SET topic_id = ?, role = ?, content = ?, model_id = ?,
			display_files = ?, display_text = ?, timestamp = ?, updated_at = ?,
			is_deleted = ?
		 WHERE id = ?`,
		m.TopicID, m.Role, m.Content,
		nullable(m.ModelID), nullable(m.DisplayFiles), nullable(m.DisplayText),
		m.Timestamp, m.UpdatedAt, boolToInt(m.IsDeleted), m.ID)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", m.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
