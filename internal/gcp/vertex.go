package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Document Center Tagger Prompts ---
const TaggerSystemPrompt = "You are a filing assistant for a credit repair company's Document Center. Your task is to classify an uploaded client document into exactly one of the provided categories and suggest short tags. You must output your response as a valid JSON object."
const TaggerUserPrompt = `Classify the document text below.

Follow these rules precisely:
1.  Choose exactly one category from this list: %s
2.  If nothing fits, use "other".
3.  Suggest up to five lowercase tags that describe the document (for example the bureau, the creditor type, or the letter type).
4.  The output MUST be a single JSON object with exactly two keys:
    - "category": the chosen category string.
    - "tags": an array of tag strings.
Do not include any text before or after the JSON object.

Document text:
%s`

// VertexClient holds the pre-configured generative models.
type VertexClient struct {
	TaggerModel *genai.GenerativeModel
	baseClient  *genai.Client
}

// NewVertexClient creates a new client holding the tagger model.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	taggerModel := baseClient.GenerativeModel("gemini-1.5-flash")
	taggerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TaggerSystemPrompt)},
	}
	taggerModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		TaggerModel: taggerModel,
		baseClient:  baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
