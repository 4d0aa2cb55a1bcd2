package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/benzvi/groupsift/internal/database"
)

// messageResponse is the JSON shape of a single message in listings.
type messageResponse struct {
	MessageID   string    `json:"message_id"`
	Timestamp   time.Time `json:"timestamp"`
	Text        *string   `json:"text"`
	MediaURL    *string   `json:"media_url"`
	ChatJID     string    `json:"chat_jid"`
	SenderJID   string    `json:"sender_jid"`
	SenderName  *string   `json:"sender_name"`
	GroupJID    *string   `json:"group_jid"`
	GroupName   *string   `json:"group_name"`
	ReplyToID   *string   `json:"reply_to_id"`
	IsRelevant  *bool     `json:"is_relevant"`
	Reasoning   *string   `json:"reasoning"`
	TotalTokens *int64    `json:"relevancy_total_token_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type paginatedMessagesResponse struct {
	Messages   []messageResponse `json:"messages"`
	TotalCount int64             `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	HasMore    bool              `json:"has_more"`
}

type messageStatsResponse struct {
	TotalMessages       int64    `json:"total_messages"`
	RelevantMessages    int64    `json:"relevant_messages"`
	IrrelevantMessages  int64    `json:"irrelevant_messages"`
	PendingAnalysis     int64    `json:"pending_analysis"`
	AvgTokensPerMessage *float64 `json:"avg_tokens_per_message"`
}

// handleListMessages serves paginated, filterable message listings for the
// dashboard. Unknown relevance_filter values are rejected so a typo does not
// silently return the unfiltered set.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.MessageFilter{
		GroupJID:   q.Get("group_jid"),
		SearchText: q.Get("search_text"),
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			http.Error(w, "invalid page parameter", http.StatusBadRequest)
			return
		}
		filter.Page = page
	}

	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			http.Error(w, "invalid page_size parameter", http.StatusBadRequest)
			return
		}
		filter.PageSize = size
	}

	switch rf := q.Get("relevance_filter"); rf {
	case "", "all":
	case "relevant":
		filter.Relevance = database.RelevanceRelevant
	case "irrelevant":
		filter.Relevance = database.RelevanceIrrelevant
	case "pending":
		filter.Relevance = database.RelevancePending
	default:
		http.Error(w, "invalid relevance_filter parameter", http.StatusBadRequest)
		return
	}

	messages, total, err := s.store.ListMessages(r.Context(), filter)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to list messages", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	} else if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	resp := paginatedMessagesResponse{
		Messages:   make([]messageResponse, 0, len(messages)),
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		HasMore:    int64(filter.Page*filter.PageSize) < total,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

// handleMessageStats serves aggregate classification counters.
func (s *Server) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetMessageStats(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to get message stats", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := messageStatsResponse{
		TotalMessages:      stats.TotalMessages,
		RelevantMessages:   stats.RelevantMessages,
		IrrelevantMessages: stats.IrrelevantMessages,
		PendingAnalysis:    stats.PendingAnalysis,
	}
	if stats.AvgTokensPerMessage.Valid {
		avg := stats.AvgTokensPerMessage.Float64
		resp.AvgTokensPerMessage = &avg
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

func toMessageResponse(m *database.MessageWithNames) messageResponse {
	return messageResponse{
		MessageID:   m.MessageID,
		Timestamp:   m.Timestamp,
		Text:        nullStringPtr(m.Text),
		MediaURL:    nullStringPtr(m.MediaURL),
		ChatJID:     m.ChatJID,
		SenderJID:   m.SenderJID,
		SenderName:  nullStringPtr(m.SenderName),
		GroupJID:    nullStringPtr(m.GroupJID),
		GroupName:   nullStringPtr(m.GroupName),
		ReplyToID:   nullStringPtr(m.ReplyToID),
		IsRelevant:  nullBoolPtr(m.IsRelevant),
		Reasoning:   nullStringPtr(m.Reasoning),
		TotalTokens: nullInt64Ptr(m.RelevancyTotalTokenCount),
		CreatedAt:   m.CreatedAt,
	}
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullBoolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	return &nb.Bool
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}
