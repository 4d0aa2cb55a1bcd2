package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlitelib "modernc.org/sqlite"
	sqlitecodes "modernc.org/sqlite/lib"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// MessageExists reports whether a message with the given transport ID
	// is already stored. Used as the deduplication guard.
	MessageExists(ctx context.Context, messageID string) (bool, error)

	// GetMessage retrieves a message by ID. Returns nil, nil if not found.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// SaveIncomingMessage persists a message and its referenced sender and
	// group in a single transaction. Sender and group rows are created on
	// first sighting; a creation race with a concurrent delivery is
	// resolved by re-fetching the winner's row. senderName and groupName
	// are best-effort display names applied only at creation time.
	SaveIncomingMessage(ctx context.Context, msg *Message, senderName, groupName string) error

	// SaveClassification writes the relevance decision onto an
	// already-stored message. The update applies at most once per message:
	// a message whose classification fields are already set is left
	// untouched.
	SaveClassification(ctx context.Context, messageID string, c Classification) error

	// GetGroup retrieves a group by JID. Returns nil, nil if not found.
	GetGroup(ctx context.Context, groupJID string) (*Group, error)

	// UpdateGroupName fills in a group's name when none is stored yet.
	// An existing non-empty name is never overwritten.
	UpdateGroupName(ctx context.Context, groupJID, name string) error

	// ListMessages returns a page of messages joined with sender/group
	// names, plus the total row count for the filter.
	ListMessages(ctx context.Context, filter MessageFilter) ([]*MessageWithNames, int64, error)

	// GetMessageStats aggregates classification progress counters.
	GetMessageStats(ctx context.Context) (*MessageStats, error)

	// DeleteMessagesBefore removes messages older than the cutoff and
	// returns the number of rows deleted.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// RelevanceFilter selects messages by classification state in ListMessages.
type RelevanceFilter string

const (
	RelevanceAny        RelevanceFilter = ""
	RelevanceRelevant   RelevanceFilter = "relevant"
	RelevanceIrrelevant RelevanceFilter = "irrelevant"
	RelevancePending    RelevanceFilter = "pending"
)

// MessageFilter holds pagination and filtering options for ListMessages.
type MessageFilter struct {
	Page       int
	PageSize   int
	Relevance  RelevanceFilter
	GroupJID   string
	SearchText string
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// MessageExists reports whether a message with the given ID is stored.
func (s *sqlxStore) MessageExists(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("message_id cannot be empty")
	}

	var one int
	err := s.db.GetContext(ctx, &one, `SELECT 1 FROM messages WHERE message_id = ? LIMIT 1`, messageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error checking for existing message", "message_id", messageID, "error", err)
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return true, nil
}

// GetMessage retrieves a message by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message_id cannot be empty")
	}

	var msg Message
	query := `SELECT message_id, timestamp, text, media_url, chat_jid, sender_jid, group_jid, reply_to_id,
	                 is_relevant, reasoning, relevancy_total_token_count, relevancy_input_tokens,
	                 relevancy_output_tokens, created_at, updated_at
	          FROM messages WHERE message_id = ?`

	err := s.db.GetContext(ctx, &msg, query, messageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting message", "message_id", messageID, "error", err)
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return &msg, nil
}

// SaveIncomingMessage persists sender, group, and message as one atomic unit.
// Referenced rows are created before the message insert so a committed
// message always resolves to existing sender/group rows.
func (s *sqlxStore) SaveIncomingMessage(ctx context.Context, msg *Message, senderName, groupName string) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if msg.MessageID == "" {
		return fmt.Errorf("message must have a non-empty message_id")
	}
	if msg.SenderJID == "" {
		return fmt.Errorf("message must have a non-empty sender_jid")
	}
	if msg.ChatJID == "" {
		return fmt.Errorf("message must have a non-empty chat_jid")
	}
	if msg.Timestamp.IsZero() {
		return fmt.Errorf("message must have a non-zero timestamp")
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for incoming message",
			"message_id", msg.MessageID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	if err := s.ensureSender(ctx, tx, msg.SenderJID, senderName, now); err != nil {
		return err
	}

	if msg.GroupJID.Valid && msg.GroupJID.String != "" {
		if err := s.ensureGroup(ctx, tx, msg.GroupJID.String, groupName, now); err != nil {
			return err
		}
	}

	insert := `
        INSERT INTO messages (message_id, timestamp, text, media_url, chat_jid, sender_jid, group_jid,
                              reply_to_id, is_relevant, reasoning, relevancy_total_token_count,
                              relevancy_input_tokens, relevancy_output_tokens, created_at, updated_at)
        VALUES (:message_id, :timestamp, :text, :media_url, :chat_jid, :sender_jid, :group_jid,
                :reply_to_id, :is_relevant, :reasoning, :relevancy_total_token_count,
                :relevancy_input_tokens, :relevancy_output_tokens, :created_at, :updated_at);
    `
	if _, err := tx.NamedExecContext(ctx, insert, msg); err != nil {
		// A concurrent delivery of the same message between the dedup
		// check and this insert is treated as already processed.
		if isUniqueConstraintErr(err) {
			s.logger.InfoContext(ctx, "Message already stored by a concurrent delivery",
				"message_id", msg.MessageID)
			return nil
		}
		s.logger.ErrorContext(ctx, "Error saving message",
			"message_id", msg.MessageID, "sender_jid", msg.SenderJID, "error", err)
		return fmt.Errorf("failed to save message %s: %w", msg.MessageID, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit incoming message transaction",
			"message_id", msg.MessageID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message saved successfully",
		"message_id", msg.MessageID, "sender_jid", msg.SenderJID, "group_jid", msg.GroupJID.String)
	return nil
}

// ensureSender fetches the sender row, creating it on first sighting. A
// uniqueness conflict on create means another transaction won the race; the
// row is re-fetched instead of surfacing the error.
func (s *sqlxStore) ensureSender(ctx context.Context, tx *sqlx.Tx, jid, pushName string, now time.Time) error {
	var existing Sender
	err := tx.GetContext(ctx, &existing, `SELECT jid, push_name, created_at, updated_at FROM senders WHERE jid = ?`, jid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to fetch sender %s: %w", jid, err)
	}

	sender := Sender{
		JID:       jid,
		PushName:  nullString(pushName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO senders (jid, push_name, created_at, updated_at) VALUES (:jid, :push_name, :created_at, :updated_at)`,
		&sender)
	if err != nil {
		if isUniqueConstraintErr(err) {
			s.logger.DebugContext(ctx, "Sender created concurrently, re-fetching", "jid", jid)
			return tx.GetContext(ctx, &existing, `SELECT jid, push_name, created_at, updated_at FROM senders WHERE jid = ?`, jid)
		}
		return fmt.Errorf("failed to create sender %s: %w", jid, err)
	}
	return nil
}

// ensureGroup fetches the group row, creating it on first sighting with a
// best-effort name. Creation races are resolved the same way as for senders.
func (s *sqlxStore) ensureGroup(ctx context.Context, tx *sqlx.Tx, groupJID, groupName string, now time.Time) error {
	var existing Group
	err := tx.GetContext(ctx, &existing, `SELECT group_jid, group_name, created_at, updated_at FROM chat_groups WHERE group_jid = ?`, groupJID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to fetch group %s: %w", groupJID, err)
	}

	group := Group{
		GroupJID:  groupJID,
		GroupName: nullString(groupName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO chat_groups (group_jid, group_name, created_at, updated_at) VALUES (:group_jid, :group_name, :created_at, :updated_at)`,
		&group)
	if err != nil {
		if isUniqueConstraintErr(err) {
			s.logger.DebugContext(ctx, "Group created concurrently, re-fetching", "group_jid", groupJID)
			return tx.GetContext(ctx, &existing, `SELECT group_jid, group_name, created_at, updated_at FROM chat_groups WHERE group_jid = ?`, groupJID)
		}
		return fmt.Errorf("failed to create group %s: %w", groupJID, err)
	}
	return nil
}

// SaveClassification writes the relevance decision onto a stored message.
// The WHERE clause restricts the update to still-unclassified rows, making
// the write effectively once-per-message.
func (s *sqlxStore) SaveClassification(ctx context.Context, messageID string, c Classification) error {
	if messageID == "" {
		return fmt.Errorf("message_id cannot be empty")
	}

	query := `
        UPDATE messages SET
            is_relevant = ?,
            reasoning = ?,
            relevancy_total_token_count = ?,
            relevancy_input_tokens = ?,
            relevancy_output_tokens = ?,
            updated_at = ?
        WHERE message_id = ? AND is_relevant IS NULL AND reasoning IS NULL
    `
	result, err := s.db.ExecContext(ctx, query,
		c.IsRelevant, c.Reasoning, c.TotalTokens, c.InputTokens, c.OutputTokens,
		time.Now().UTC(), messageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving classification", "message_id", messageID, "error", err)
		return fmt.Errorf("failed to save classification for message %s: %w", messageID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		s.logger.WarnContext(ctx, "Classification not applied (message missing or already classified)",
			"message_id", messageID)
	}

	return nil
}

// GetGroup retrieves a group by JID. Returns nil, nil if not found.
func (s *sqlxStore) GetGroup(ctx context.Context, groupJID string) (*Group, error) {
	if groupJID == "" {
		return nil, fmt.Errorf("group_jid cannot be empty")
	}

	var group Group
	err := s.db.GetContext(ctx, &group,
		`SELECT group_jid, group_name, created_at, updated_at FROM chat_groups WHERE group_jid = ?`, groupJID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting group", "group_jid", groupJID, "error", err)
		return nil, fmt.Errorf("failed to get group %s: %w", groupJID, err)
	}
	return &group, nil
}

// UpdateGroupName fills in a group's display name only when none is stored.
func (s *sqlxStore) UpdateGroupName(ctx context.Context, groupJID, name string) error {
	if groupJID == "" {
		return fmt.Errorf("group_jid cannot be empty")
	}
	if name == "" {
		return nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_groups SET group_name = ?, updated_at = ? WHERE group_jid = ? AND (group_name IS NULL OR group_name = '')`,
		name, time.Now().UTC(), groupJID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error backfilling group name", "group_jid", groupJID, "error", err)
		return fmt.Errorf("failed to update name for group %s: %w", groupJID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		s.logger.InfoContext(ctx, "Backfilled group name", "group_jid", groupJID, "group_name", name)
	}
	return nil
}

// ListMessages returns a page of messages joined with sender/group names.
func (s *sqlxStore) ListMessages(ctx context.Context, filter MessageFilter) ([]*MessageWithNames, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	} else if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	where, args := buildMessageFilter(filter)

	var total int64
	countQuery := `SELECT COUNT(m.message_id) FROM messages m` + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error counting messages", "error", err)
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	query := `
        SELECT m.message_id, m.timestamp, m.text, m.media_url, m.chat_jid, m.sender_jid, m.group_jid,
               m.reply_to_id, m.is_relevant, m.reasoning, m.relevancy_total_token_count,
               m.relevancy_input_tokens, m.relevancy_output_tokens, m.created_at, m.updated_at,
               s.push_name AS sender_name, g.group_name AS group_name
        FROM messages m
        LEFT JOIN senders s ON m.sender_jid = s.jid
        LEFT JOIN chat_groups g ON m.group_jid = g.group_jid` + where + `
        ORDER BY m.timestamp DESC
        LIMIT ? OFFSET ?`

	pageArgs := append(append([]any{}, args...), filter.PageSize, (filter.Page-1)*filter.PageSize)

	var messages []*MessageWithNames
	if err := s.db.SelectContext(ctx, &messages, query, pageArgs...); err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages", "error", err)
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	s.logger.DebugContext(ctx, "Listed messages",
		"count", len(messages), "total", total, "page", filter.Page)
	return messages, total, nil
}

func buildMessageFilter(filter MessageFilter) (string, []any) {
	var clauses []string
	var args []any

	switch filter.Relevance {
	case RelevanceRelevant:
		clauses = append(clauses, "m.is_relevant = 1")
	case RelevanceIrrelevant:
		clauses = append(clauses, "m.is_relevant = 0")
	case RelevancePending:
		clauses = append(clauses, "m.is_relevant IS NULL")
	}

	if filter.GroupJID != "" {
		clauses = append(clauses, "m.group_jid = ?")
		args = append(args, filter.GroupJID)
	}

	if filter.SearchText != "" {
		clauses = append(clauses, "m.text LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.SearchText+"%")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// GetMessageStats aggregates classification progress counters.
func (s *sqlxStore) GetMessageStats(ctx context.Context) (*MessageStats, error) {
	var stats MessageStats
	query := `
        SELECT
            COUNT(message_id) AS total_messages,
            COUNT(CASE WHEN is_relevant = 1 THEN 1 END) AS relevant_messages,
            COUNT(CASE WHEN is_relevant = 0 THEN 1 END) AS irrelevant_messages,
            COUNT(CASE WHEN is_relevant IS NULL THEN 1 END) AS pending_analysis,
            AVG(relevancy_total_token_count) AS avg_tokens_per_message
        FROM messages`

	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		s.logger.ErrorContext(ctx, "Error getting message stats", "error", err)
		return nil, fmt.Errorf("failed to get message stats: %w", err)
	}
	return &stats, nil
}

// DeleteMessagesBefore removes messages older than the cutoff.
func (s *sqlxStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting stale messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete messages before %s: %w", cutoff, err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.logger.InfoContext(ctx, "Deleted stale messages", "count", count, "cutoff", cutoff)
	}
	return count, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// isUniqueConstraintErr reports whether err is a SQLite unique/primary key
// constraint violation.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr *sqlitelib.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlitecodes.SQLITE_CONSTRAINT_UNIQUE, sqlitecodes.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Fallback for drivers that don't expose typed errors.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
