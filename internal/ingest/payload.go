package ingest

import "time"

// WebhookPayload is the inbound webhook body for a WhatsApp message.
// From is either "<sender_jid> in <chat_jid>" for group and forwarded
// captures, or a bare chat JID for direct messages.
type WebhookPayload struct {
	From         string          `json:"from"`
	Timestamp    time.Time       `json:"timestamp"`
	Pushname     string          `json:"pushname"`
	GroupSubject string          `json:"group_subject,omitempty"`
	Message      *PayloadMessage `json:"message,omitempty"`
}

// PayloadMessage is the message body within a webhook payload.
type PayloadMessage struct {
	ID          string       `json:"id"`
	Text        string       `json:"text,omitempty"`
	MediaURL    string       `json:"media_url,omitempty"`
	ContextInfo *ContextInfo `json:"context_info,omitempty"`
}

// ContextInfo carries quoting/group metadata attached to a message.
type ContextInfo struct {
	StanzaID     string `json:"stanza_id,omitempty"`
	Participant  string `json:"participant,omitempty"`
	GroupSubject string `json:"group_subject,omitempty"`
}

// GroupName returns the best-effort group display name from the payload,
// preferring the top-level subject over the nested context-info subject.
func (p *WebhookPayload) GroupName() string {
	if p.GroupSubject != "" {
		return p.GroupSubject
	}
	if p.Message != nil && p.Message.ContextInfo != nil {
		return p.Message.ContextInfo.GroupSubject
	}
	return ""
}
