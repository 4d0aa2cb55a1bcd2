package ingest

import (
	"strings"
	"time"
)

// ingestFilter is one predicate in the ordered filter chain. keep returns
// false to reject the payload; the chain short-circuits on first rejection.
type ingestFilter struct {
	name string
	keep func(now time.Time, payload *WebhookPayload) bool
}

// newFilterChain builds the standard chain, cheapest and most selective
// first: staleness, then content type, then minimum length.
func newFilterChain(freshnessWindow time.Duration, minWords int) []ingestFilter {
	return []ingestFilter{
		{
			name: "stale",
			keep: func(now time.Time, p *WebhookPayload) bool {
				return !p.Timestamp.Before(now.Add(-freshnessWindow))
			},
		},
		{
			name: "no_text",
			keep: func(_ time.Time, p *WebhookPayload) bool {
				return p.Message != nil && strings.TrimSpace(p.Message.Text) != ""
			},
		},
		{
			name: "too_short",
			keep: func(_ time.Time, p *WebhookPayload) bool {
				return len(strings.Fields(p.Message.Text)) > minWords
			},
		},
	}
}

// firstRejection runs the chain in order and returns the name of the first
// filter that rejects the payload. ok is true when every filter passes.
func firstRejection(filters []ingestFilter, now time.Time, payload *WebhookPayload) (reason string, ok bool) {
	for _, f := range filters {
		if !f.keep(now, payload) {
			return f.name, false
		}
	}
	return "", true
}
