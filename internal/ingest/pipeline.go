// Package ingest implements the message ingestion pipeline: scope limiting,
// content filtering, deduplication, transactional persistence, relevance
// classification, and best-effort notification dispatch.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/benzvi/groupsift/internal/classifier"
	"github.com/benzvi/groupsift/internal/config"
	"github.com/benzvi/groupsift/internal/database"
	"github.com/benzvi/groupsift/internal/notify"
	"github.com/benzvi/groupsift/internal/whatsapp"
)

// Pipeline processes inbound webhook payloads. Each call to Process is
// independent; concurrent deliveries are isolated by the store's
// transaction semantics, not by the pipeline.
type Pipeline struct {
	cfg             config.IngestConfig
	store           database.Store
	classifier      classifier.Client // nil when classification is disabled
	notifier        notify.Notifier   // nil when notifications are disabled
	filters         []ingestFilter
	classifyTimeout time.Duration
	log             *slog.Logger
	now             func() time.Time
}

// New creates a Pipeline. classifierClient and notifier may be nil, which
// disables classification and notification respectively.
func New(
	cfg config.IngestConfig,
	store database.Store,
	classifierClient classifier.Client,
	classifyTimeout time.Duration,
	notifier notify.Notifier,
	log *slog.Logger,
) *Pipeline {
	// MinWords is taken literally: 0 imposes no length minimum beyond the
	// text-presence filter. The configuration layer defaults it to 2.
	freshness := cfg.FreshnessWindow
	if freshness <= 0 {
		freshness = 4 * 24 * time.Hour
	}
	if classifyTimeout <= 0 {
		classifyTimeout = 30 * time.Second
	}

	return &Pipeline{
		cfg:             cfg,
		store:           store,
		classifier:      classifierClient,
		notifier:        notifier,
		filters:         newFilterChain(freshness, cfg.MinWords),
		classifyTimeout: classifyTimeout,
		log:             log.With("component", "ingest"),
		now:             time.Now,
	}
}

// Process runs the full pipeline for one payload. Filter rejections,
// duplicates, out-of-scope groups, classifier failures, and notification
// failures are all terminal non-error outcomes; only a persistence failure
// is returned as an error, and even then the webhook caller acknowledges
// the delivery.
func (p *Pipeline) Process(ctx context.Context, payload *WebhookPayload) error {
	if payload == nil || payload.From == "" {
		return nil
	}

	senderJID, chatJID, groupJID, err := p.resolveJIDs(payload.From)
	if err != nil {
		p.log.WarnContext(ctx, "Dropping payload with malformed identifier",
			"from", payload.From, "error", err)
		return nil
	}

	// Scope limiter: group traffic may be restricted to a single group.
	// Direct messages are never restricted.
	if p.cfg.LimitToGroupJID != "" && groupJID != "" && groupJID != p.cfg.LimitToGroupJID {
		p.log.InfoContext(ctx, "Ignoring message outside configured group",
			"group_jid", groupJID, "limit_to_group_jid", p.cfg.LimitToGroupJID)
		return nil
	}

	if reason, ok := firstRejection(p.filters, p.now(), payload); !ok {
		p.log.InfoContext(ctx, "Skipping message rejected by filter chain",
			"reason", reason, "from", payload.From, "timestamp", payload.Timestamp)
		return nil
	}

	messageID := payload.Message.ID
	if messageID == "" {
		p.log.WarnContext(ctx, "Skipping message without transport id", "from", payload.From)
		return nil
	}

	// Duplicate guard: runs after the cheap filters so ignorable traffic
	// never touches storage.
	exists, err := p.store.MessageExists(ctx, messageID)
	if err != nil {
		return fmt.Errorf("duplicate check failed for message %s: %w", messageID, err)
	}
	if exists {
		p.log.InfoContext(ctx, "Skipping duplicate message", "message_id", messageID)
		return nil
	}

	msg := p.buildMessage(payload, messageID, senderJID, chatJID, groupJID)
	if err := p.store.SaveIncomingMessage(ctx, msg, payload.Pushname, payload.GroupName()); err != nil {
		return fmt.Errorf("failed to persist message %s: %w", messageID, err)
	}

	if p.cfg.BackfillGroupNames && groupJID != "" {
		if name := payload.GroupName(); name != "" {
			if err := p.store.UpdateGroupName(ctx, groupJID, name); err != nil {
				p.log.WarnContext(ctx, "Group name backfill failed", "group_jid", groupJID, "error", err)
			}
		}
	}

	p.log.InfoContext(ctx, "Message stored",
		"message_id", messageID, "sender_jid", senderJID, "chat_jid", chatJID, "group_jid", groupJID)

	// Classification applies to group messages only, after the message row
	// is durably visible.
	if groupJID == "" {
		return nil
	}

	decision := p.classify(ctx, messageID, payload.Message.Text)
	if decision == nil || !decision.IsRelevant {
		return nil
	}

	p.dispatch(ctx, messageID, senderJID, groupJID, payload.Message.Text)
	return nil
}

// resolveJIDs normalizes the "from" field into canonical sender and chat
// identifiers. groupJID is non-empty only when the chat is a group.
func (p *Pipeline) resolveJIDs(from string) (senderJID, chatJID, groupJID string, err error) {
	senderRaw, chatRaw := whatsapp.SplitFrom(from)

	chat, err := whatsapp.ParseJID(chatRaw)
	if err != nil {
		return "", "", "", err
	}
	chatJID = chat.String()
	if chat.IsGroup() {
		groupJID = chatJID
	}

	if senderRaw != "" {
		senderJID, err = whatsapp.Normalize(senderRaw)
		if err != nil {
			return "", "", "", err
		}
	} else {
		// A bare chat identifier names both the peer and the chat.
		senderJID = chatJID
	}

	return senderJID, chatJID, groupJID, nil
}

func (p *Pipeline) buildMessage(payload *WebhookPayload, messageID, senderJID, chatJID, groupJID string) *database.Message {
	msg := &database.Message{
		MessageID: messageID,
		Timestamp: payload.Timestamp.UTC(),
		Text:      sql.NullString{String: payload.Message.Text, Valid: payload.Message.Text != ""},
		MediaURL:  sql.NullString{String: payload.Message.MediaURL, Valid: payload.Message.MediaURL != ""},
		ChatJID:   chatJID,
		SenderJID: senderJID,
		GroupJID:  sql.NullString{String: groupJID, Valid: groupJID != ""},
	}
	if ci := payload.Message.ContextInfo; ci != nil && ci.StanzaID != "" {
		msg.ReplyToID = sql.NullString{String: ci.StanzaID, Valid: true}
	}
	return msg
}

// classify runs the relevance classifier and persists its outcome in a
// second, independent write. A missing classifier or a classifier failure
// never blocks the pipeline: the message stays stored.
func (p *Pipeline) classify(ctx context.Context, messageID, text string) *classifier.Decision {
	if p.classifier == nil {
		p.log.InfoContext(ctx, "Classifier not configured, skipping relevance analysis",
			"message_id", messageID)
		return nil
	}

	classifyCtx, cancel := context.WithTimeout(ctx, p.classifyTimeout)
	defer cancel()

	decision, err := p.classifier.Classify(classifyCtx, text)
	if err != nil {
		p.log.ErrorContext(ctx, "Relevance classification failed",
			"message_id", messageID, "error", err)
		diagnostic := database.Classification{
			IsRelevant: sql.NullBool{Bool: false, Valid: true},
			Reasoning:  sql.NullString{String: "classification error: " + err.Error(), Valid: true},
		}
		if saveErr := p.store.SaveClassification(ctx, messageID, diagnostic); saveErr != nil {
			p.log.ErrorContext(ctx, "Failed to persist classification diagnostic",
				"message_id", messageID, "error", saveErr)
		}
		return nil
	}

	record := database.Classification{
		IsRelevant:   sql.NullBool{Bool: decision.IsRelevant, Valid: true},
		Reasoning:    sql.NullString{String: decision.Reasoning, Valid: decision.Reasoning != ""},
		TotalTokens:  nullInt64(decision.TotalTokens),
		InputTokens:  nullInt64(decision.InputTokens),
		OutputTokens: nullInt64(decision.OutputTokens),
	}
	if err := p.store.SaveClassification(ctx, messageID, record); err != nil {
		p.log.ErrorContext(ctx, "Failed to persist classification",
			"message_id", messageID, "error", err)
		return nil
	}

	p.log.InfoContext(ctx, "Message classified",
		"message_id", messageID, "is_relevant", decision.IsRelevant, "reasoning", decision.Reasoning)
	return decision
}

// dispatch forwards a relevant message. The group name is resolved by
// reloading the Group row; any failure is logged and swallowed.
func (p *Pipeline) dispatch(ctx context.Context, messageID, senderJID, groupJID, text string) {
	if p.notifier == nil {
		p.log.InfoContext(ctx, "Notifier not configured, skipping dispatch", "message_id", messageID)
		return
	}

	groupName := ""
	group, err := p.store.GetGroup(ctx, groupJID)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to load group for notification",
			"group_jid", groupJID, "error", err)
	} else if group != nil && group.GroupName.Valid {
		groupName = group.GroupName.String
	}

	if err := p.notifier.Notify(ctx, notify.Notification{
		Sender:    senderJID,
		GroupName: groupName,
		Content:   text,
	}); err != nil {
		p.log.ErrorContext(ctx, "Notification dispatch failed",
			"message_id", messageID, "error", err)
		return
	}

	p.log.InfoContext(ctx, "Notification dispatched", "message_id", messageID, "group_jid", groupJID)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
