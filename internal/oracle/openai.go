package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI calls an OpenAI-compatible chat completion endpoint in JSON mode.
type OpenAI struct {
	client *openai.Client
	model  string
	system string
}

// NewOpenAI builds a provider. Callers only construct it when an API key is configured.
func NewOpenAI(apiKey, baseURL, model, system string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, system: system}
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   int(cfg.MaxOutputTokens),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, classify(ctx, o.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: %w: no choices", o.Name(), ErrMalformedResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Response{}, fmt.Errorf("%s: %w: empty content", o.Name(), ErrMalformedResponse)
	}
	model := resp.Model
	if model == "" {
		model = o.model
	}
	return Response{Text: text, Model: model}, nil
}

var _ Generator = (*OpenAI)(nil)
