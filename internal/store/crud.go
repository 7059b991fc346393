package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Assistant is a chat assistant preset: a display name plus a system prompt.
type Assistant struct {
	ID        string
	Name      string
	Prompt    string
	UpdatedAt string
	Deleted   bool
}

// Topic is a conversation thread owned by an assistant.
type Topic struct {
	ID          string
	AssistantID string
	Name        string
	Summary     *string
	UpdatedAt   string
	Deleted     bool
}

// Message is a single chat message within a topic. Content is opaque
// serialized JSON produced by the frontend; DisplayFiles and DisplayText are
// display-only and not part of the model context.
type Message struct {
	ID           string
	TopicID      string
	Role         string
	Content      string
	ModelID      *string
	DisplayFiles *string
	DisplayText  *string
	Timestamp    string
	UpdatedAt    string
	Deleted      bool
}

// SaveAssistant inserts or updates an assistant, bumping updated_at.
func (s *Store) SaveAssistant(ctx context.Context, a *Assistant) error {
	if a.ID == "" {
		return fmt.Errorf("assistant id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("assistant name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO assistants (id, name, prompt, updated_at, is_deleted)
	VALUES (?, ?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		prompt = excluded.prompt,
		updated_at = excluded.updated_at,
		is_deleted = 0
	`
	if _, err := s.conn.ExecContext(ctx, query, a.ID, a.Name, a.Prompt, s.now()); err != nil {
		return fmt.Errorf("failed to save assistant %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAssistant tombstones an assistant and everything it owns.
//
// The store's foreign keys do not cascade tombstones; the application walks
// the hierarchy so the deletions of topics and messages propagate through
// sync on their own rows.
func (s *Store) DeleteAssistant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	if _, err := tx.ExecContext(ctx,
		"UPDATE assistants SET is_deleted = 1, updated_at = ? WHERE id = ?", now, id); err != nil {
		return fmt.Errorf("failed to delete assistant %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET is_deleted = 1, updated_at = ?
		 WHERE topic_id IN (SELECT id FROM topics WHERE assistant_id = ?)`, now, id); err != nil {
		return fmt.Errorf("failed to delete messages for assistant %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE topics SET is_deleted = 1, updated_at = ? WHERE assistant_id = ?", now, id); err != nil {
		return fmt.Errorf("failed to delete topics for assistant %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListAssistants returns all assistants that are not tombstoned, ordered by id.
func (s *Store) ListAssistants(ctx context.Context) ([]*Assistant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, prompt, updated_at, is_deleted
		 FROM assistants WHERE is_deleted = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}
	defer rows.Close()

	var assistants []*Assistant
	for rows.Next() {
		var a Assistant
		var prompt sql.NullString
		var deleted int
		if err := rows.Scan(&a.ID, &a.Name, &prompt, &a.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan assistant: %w", err)
		}
		a.Prompt = prompt.String
		a.Deleted = deleted == 1
		assistants = append(assistants, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assistants: %w", err)
	}
	return assistants, nil
}

// GetAssistant retrieves a single assistant by id, tombstoned or not.
// Returns sql.ErrNoRows if no such row exists.
func (s *Store) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var a Assistant
	var prompt sql.NullString
	var deleted int
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, name, prompt, updated_at, is_deleted FROM assistants WHERE id = ?",
		id).Scan(&a.ID, &a.Name, &prompt, &a.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	a.Prompt = prompt.String
	a.Deleted = deleted == 1
	return &a, nil
}

// SaveTopic inserts or updates a topic, bumping updated_at.
// The owning assistant must exist.
func (s *Store) SaveTopic(ctx context.Context, t *Topic) error {
	if t.ID == "" {
		return fmt.Errorf("topic id is required")
	}
	if t.AssistantID == "" {
		return fmt.Errorf("topic assistant_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO topics (id, assistant_id, name, summary, updated_at, is_deleted)
	VALUES (?, ?, ?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		summary = excluded.summary,
		updated_at = excluded.updated_at,
		is_deleted = 0
	`
	if _, err := s.conn.ExecContext(ctx, query,
		t.ID, t.AssistantID, t.Name, nullString(t.Summary), s.now()); err != nil {
		return fmt.Errorf("failed to save topic %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTopic tombstones a topic and its messages.
func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	if _, err := tx.ExecContext(ctx,
		"UPDATE topics SET is_deleted = 1, updated_at = ? WHERE id = ?", now, id); err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET is_deleted = 1, updated_at = ? WHERE topic_id = ?", now, id); err != nil {
		return fmt.Errorf("failed to delete messages for topic %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListTopics returns all live topics for an assistant, ordered by id.
func (s *Store) ListTopics(ctx context.Context, assistantID string) ([]*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, assistant_id, name, summary, updated_at, is_deleted
		 FROM topics WHERE assistant_id = ? AND is_deleted = 0 ORDER BY id ASC`, assistantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		var t Topic
		var summary sql.NullString
		var deleted int
		if err := rows.Scan(&t.ID, &t.AssistantID, &t.Name, &summary, &t.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		t.Summary = stringPtr(summary)
		t.Deleted = deleted == 1
		topics = append(topics, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topics: %w", err)
	}
	return topics, nil
}

// SaveMessage inserts or updates a message, bumping updated_at.
// The creation timestamp is set on first insert and preserved on update.
func (s *Store) SaveMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if m.TopicID == "" {
		return fmt.Errorf("message topic_id is required")
	}
	if m.Role == "" {
		return fmt.Errorf("message role is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	timestamp := m.Timestamp
	if timestamp == "" {
		timestamp = now
	}

	query := `
	INSERT INTO messages (id, topic_id, role, content, model_id, display_files,
		display_text, timestamp, updated_at, is_deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		model_id = excluded.model_id,
		display_files = excluded.display_files,
		display_text = excluded.display_text,
		updated_at = excluded.updated_at,
		is_deleted = 0
	`
	if _, err := s.conn.ExecContext(ctx, query,
		m.ID, m.TopicID, m.Role, m.Content,
		nullString(m.ModelID), nullString(m.DisplayFiles), nullString(m.DisplayText),
		timestamp, now); err != nil {
		return fmt.Errorf("failed to save message %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMessage tombstones a single message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.ExecContext(ctx,
		"UPDATE messages SET is_deleted = 1, updated_at = ? WHERE id = ?", s.now(), id); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

// ListMessages returns all live messages for a topic in creation order.
func (s *Store) ListMessages(ctx context.Context, topicID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, topic_id, role, content, model_id, display_files, display_text,
			timestamp, updated_at, is_deleted
		 FROM messages WHERE topic_id = ? AND is_deleted = 0
		 ORDER BY timestamp ASC, id ASC`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var modelID, displayFiles, displayText sql.NullString
		var deleted int
		if err := rows.Scan(&m.ID, &m.TopicID, &m.Role, &m.Content,
			&modelID, &displayFiles, &displayText,
			&m.Timestamp, &m.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ModelID = stringPtr(modelID)
		m.DisplayFiles = stringPtr(displayFiles)
		m.DisplayText = stringPtr(displayText)
		m.Deleted = deleted == 1
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// CountRows returns the number of rows in the given entity table, tombstones
// included. Used by the status command.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "assistants", "topics", "messages":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// nullString converts a string pointer to a nullable SQL string.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr converts a nullable SQL string to a string pointer.
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
