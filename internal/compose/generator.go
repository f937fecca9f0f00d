package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Message is one chat turn sent to a Generator.
type Message struct {
	Role    string
	Content string
}

// Prompt is a complete text-generation request.
type Prompt struct {
	Model            string
	Messages         []Message
	Temperature      float32
	PresencePenalty  float32
	FrequencyPenalty float32
	MaxTokens        int
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// OpenAI generates text with the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI generator. An empty baseURL uses the public API.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig)}
}

// Generate performs a single chat completion. Retries are left to the caller.
func (o *OpenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, len(p.Messages))
	for i, m := range p.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            p.Model,
		Messages:         messages,
		Temperature:      p.Temperature,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
		MaxTokens:        p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
