package oracle

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Vertex calls a pre-configured Gemini model on Vertex AI.
type Vertex struct {
	model *genai.GenerativeModel
	name  string
}

// NewVertex wraps a configured model. The model is never mutated; each call works on a copy
// so concurrent batches can use different generation parameters.
func NewVertex(model *genai.GenerativeModel, modelName string) *Vertex {
	return &Vertex{model: model, name: modelName}
}

func (v *Vertex) Name() string { return "vertex:" + v.name }

// Generate implements Generator.
func (v *Vertex) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (Response, error) {
	model := *v.model
	model.GenerationConfig.Temperature = genai.Ptr(cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(cfg.MaxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Response{}, classify(ctx, v.Name(), err)
	}
	text := extractText(resp)
	if text == "" {
		return Response{}, fmt.Errorf("%s: %w: empty candidate", v.Name(), ErrMalformedResponse)
	}
	return Response{Text: text, Model: v.name}, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

var _ Generator = (*Vertex)(nil)
