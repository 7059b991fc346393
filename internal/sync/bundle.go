package sync

// Epoch is the watermark used before any sync has ever completed. It predates
// every row timestamp, so the first cycle uploads all local history.
const Epoch = "1970-01-01 00:00:00"

// watermarkKey is the sync_metadata key holding the last successful sync time.
const watermarkKey = "last_sync_time"

// Assistant is the wire form of an assistant row.
type Assistant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	UpdatedAt string `json:"updated_at"`
	IsDeleted bool   `json:"is_deleted"`
}

// Topic is the wire form of a topic row.
type Topic struct {
	ID          string  `json:"id"`
	AssistantID string  `json:"assistant_id"`
	Name        string  `json:"name"`
	Summary     *string `json:"summary"`
	UpdatedAt   string  `json:"updated_at"`
	IsDeleted   bool    `json:"is_deleted"`
}

// Message is the wire form of a message row. Content carries the serialized
// structured value as-is; DisplayFiles and DisplayText are display-only.
type Message struct {
	ID           string  `json:"id"`
	TopicID      string  `json:"topic_id"`
	Role         string  `json:"role"`
	Content      string  `json:"content"`
	ModelID      *string `json:"model_id"`
	DisplayFiles *string `json:"display_files"`
	DisplayText  *string `json:"display_text"`
	Timestamp    string  `json:"timestamp"`
	UpdatedAt    string  `json:"updated_at"`
	IsDeleted    bool    `json:"is_deleted"`
}

// Bundle is the envelope exchanged with the remote service: every changed row
// of the three entity kinds, plus the watermark the collection was taken
// against. The watermark is echoed for traceability; the server uses its own
// record of the client's last sync to decide what to return.
type Bundle struct {
	Assistants   []Assistant `json:"assistants"`
	Topics       []Topic     `json:"topics"`
	Messages     []Message   `json:"messages"`
	LastSyncTime string      `json:"last_sync_time"`
}

// Size returns the total number of rows in the bundle.
func (b *Bundle) Size() int {
	return len(b.Assistants) + len(b.Topics) + len(b.Messages)
}
