package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Extraction Model Prompts ---
const ExtractionSystemPrompt = "You are a financial document analyst. Your task is to find every numeric fact in the text of a financial filing and report it as structured data. You must output your response as a single valid JSON object."

// --- Linking Model Prompts ---
const LinkingSystemPrompt = "You are an XBRL tagging specialist. Your task is to map extracted financial facts to US-GAAP taxonomy concepts chosen only from the catalogue you are given. You must output your response as a single valid JSON object."

// DefaultVertexModel is used when no model name is configured.
const DefaultVertexModel = "gemini-1.5-pro"

// VertexClient holds all pre-configured generative models for our app.
type VertexClient struct {
	ExtractionModel *genai.GenerativeModel
	LinkingModel    *genai.GenerativeModel
	ModelName       string
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultVertexModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the extraction model ---
	extractionModel := baseClient.GenerativeModel(modelName)
	extractionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractionSystemPrompt)},
	}
	configureStructured(extractionModel)

	// --- Configure the linking model ---
	linkingModel := baseClient.GenerativeModel(modelName)
	linkingModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(LinkingSystemPrompt)},
	}
	configureStructured(linkingModel)

	return &VertexClient{
		ExtractionModel: extractionModel,
		LinkingModel:    linkingModel,
		ModelName:       modelName,
		baseClient:      baseClient,
	}, nil
}

// configureStructured forces JSON output and disables safety blocking, which
// otherwise trips on ordinary financial vocabulary.
func configureStructured(model *genai.GenerativeModel) {
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
