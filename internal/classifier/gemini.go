package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/benzvi/groupsift/internal/config"
)

// decisionSchema constrains the model output to the decision shape.
var decisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"should_notify": {Type: genai.TypeBoolean, Description: "Whether this message should trigger a notification."},
		"reasoning":     {Type: genai.TypeString, Description: "Brief explanation of the decision."},
	},
	Required: []string{"should_notify", "reasoning"},
}

type geminiClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
}

// NewGeminiClient creates a Gemini-backed classifier from the provided
// configuration. The caller decides whether to construct one at all: a
// missing API key means classification is disabled, not an error here —
// this constructor requires a key.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	contentConfig := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: RelevanceSystemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    decisionSchema,
	}

	logger := log.With("component", "gemini_classifier")
	logger.Info("Gemini classifier initialized successfully", "model", cfg.ModelName)
	return &geminiClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: contentConfig,
		modelName:     cfg.ModelName,
	}, nil
}

// Classify sends the message text to Gemini and parses the structured
// decision, attaching token usage when the API reports it.
func (c *geminiClient) Classify(ctx context.Context, text string) (*Decision, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is empty")
	}

	contents := []*genai.Content{genai.NewContentFromText("Message: "+text, genai.RoleUser)}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini classification API call failed", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	jsonText, err := extractResponseText(resp)
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to extract classification response", "error", err)
		return nil, err
	}

	decision, err := ParseDecision(jsonText)
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to parse classification JSON", "error", err, "response_text", jsonText)
		return nil, err
	}

	if usage := resp.UsageMetadata; usage != nil {
		decision.TotalTokens = int64Ptr(int64(usage.TotalTokenCount))
		decision.InputTokens = int64Ptr(int64(usage.PromptTokenCount))
		decision.OutputTokens = int64Ptr(int64(usage.CandidatesTokenCount))
	}

	c.log.DebugContext(ctx, "Classification completed",
		"is_relevant", decision.IsRelevant, "reasoning", decision.Reasoning)
	return decision, nil
}

func extractResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		return "", fmt.Errorf("classification blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("classification returned no content")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("classification returned empty text")
	}
	return text, nil
}

// ParseDecision decodes the model's JSON decision payload.
func ParseDecision(jsonText string) (*Decision, error) {
	var raw struct {
		ShouldNotify bool   `json:"should_notify"`
		Reasoning    string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("invalid decision JSON received: %w", err)
	}

	return &Decision{
		IsRelevant: raw.ShouldNotify,
		Reasoning:  raw.Reasoning,
	}, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}
