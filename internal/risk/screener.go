// Package risk screens message content for clinical urgency. Screening is
// advisory: results are logged and emitted as security events, never used to
// block or reject a message.
package risk

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Risk levels returned by a Screener.
const (
	LevelNone = "none"
	LevelLow  = "low"
	LevelHigh = "high"
)

const screenPrompt = `You review messages exchanged between a doctor and a patient.
Classify the clinical urgency of the following message as exactly one word:
"none" (routine), "low" (should be seen soon), or "high" (mentions of
self-harm, acute symptoms, or emergencies). Reply with the single word only.`

// OpenAIScreener classifies message urgency with a chat completion call.
type OpenAIScreener struct {
	client *openai.Client
	model  string
}

// NewOpenAIScreener returns a screener using the given API key and model.
// Returns nil when apiKey is empty so callers can treat screening as optional.
func NewOpenAIScreener(apiKey, model string) *OpenAIScreener {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIScreener{client: openai.NewClient(apiKey), model: model}
}

// Screen classifies the message body and returns a risk level.
func (s *OpenAIScreener) Screen(ctx context.Context, threadID, messageID, body string) (string, error) {
	if s == nil || s.client == nil {
		return LevelNone, nil
	}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: screenPrompt},
			{Role: openai.ChatMessageRoleUser, Content: body},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return parseLevel(resp.Choices[0].Message.Content), nil
}

// parseLevel normalizes the model output to a known level, defaulting to high
// on anything unrecognized so unexpected output errs toward review.
func parseLevel(out string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `."'`))) {
	case LevelNone:
		return LevelNone
	case LevelLow:
		return LevelLow
	case LevelHigh:
		return LevelHigh
	default:
		return LevelHigh
	}
}
