// Package classifier implements relevance classification of group messages
// using Google's Gemini API. The classifier is an injected capability: the
// pipeline receives a Client and never reads classifier state from globals.
package classifier

import "context"

// Decision is the outcome of classifying a single message text.
// Token counts are nil when the backend does not report usage.
type Decision struct {
	IsRelevant   bool
	Reasoning    string
	TotalTokens  *int64
	InputTokens  *int64
	OutputTokens *int64
}

// Client classifies message text for recruitment relevance. Implementations
// must honor context cancellation; callers bound every call with a timeout.
type Client interface {
	Classify(ctx context.Context, text string) (*Decision, error)
}
