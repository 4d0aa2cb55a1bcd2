package database

import (
	"database/sql"
	"time"
)

// Sender is a WhatsApp account seen as the author of at least one message.
// Created lazily on first sighting; never deleted. PushName is captured at
// creation only and never updated on later sightings.
type Sender struct {
	JID       string         `db:"jid"`
	PushName  sql.NullString `db:"push_name"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Group is a WhatsApp group chat referenced by at least one message.
// Created lazily with a best-effort name derived from payload metadata.
type Group struct {
	GroupJID  string         `db:"group_jid"`
	GroupName sql.NullString `db:"group_name"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Message is a stored chat message. MessageID is transport-assigned and is
// the deduplication key. The relevancy columns form the classification
// sub-record: all NULL until classification runs, and always NULL for
// direct (non-group) messages.
type Message struct {
	MessageID string         `db:"message_id"`
	Timestamp time.Time      `db:"timestamp"`
	Text      sql.NullString `db:"text"`
	MediaURL  sql.NullString `db:"media_url"`
	ChatJID   string         `db:"chat_jid"`
	SenderJID string         `db:"sender_jid"`
	GroupJID  sql.NullString `db:"group_jid"`
	ReplyToID sql.NullString `db:"reply_to_id"`

	IsRelevant               sql.NullBool   `db:"is_relevant"`
	Reasoning                sql.NullString `db:"reasoning"`
	RelevancyTotalTokenCount sql.NullInt64  `db:"relevancy_total_token_count"`
	RelevancyInputTokens     sql.NullInt64  `db:"relevancy_input_tokens"`
	RelevancyOutputTokens    sql.NullInt64  `db:"relevancy_output_tokens"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Classification is the outcome of a relevance check, written onto an
// already-stored message in a second, independent update.
type Classification struct {
	IsRelevant   sql.NullBool
	Reasoning    sql.NullString
	TotalTokens  sql.NullInt64
	InputTokens  sql.NullInt64
	OutputTokens sql.NullInt64
}

// MessageWithNames is a message row joined with the sender and group
// display names for read-side listings.
type MessageWithNames struct {
	Message
	SenderName sql.NullString `db:"sender_name"`
	GroupName  sql.NullString `db:"group_name"`
}

// MessageStats aggregates classification progress across all messages.
type MessageStats struct {
	TotalMessages       int64           `db:"total_messages"`
	RelevantMessages    int64           `db:"relevant_messages"`
	IrrelevantMessages  int64           `db:"irrelevant_messages"`
	PendingAnalysis     int64           `db:"pending_analysis"`
	AvgTokensPerMessage sql.NullFloat64 `db:"avg_tokens_per_message"`
}
