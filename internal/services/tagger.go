package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/authorizationflow/internal/config"
	"github.com/Lllllllleong/authorizationflow/internal/gcp"
	"github.com/Lllllllleong/authorizationflow/internal/models"
)

// Tag sources reported in TagResponse.Source.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// OtherCategory is used when nothing matches.
const OtherCategory = "other"

// maxTagInput bounds how much document text is sent to the model.
const maxTagInput = 20000

// DefaultCategories are the Document Center folders.
var DefaultCategories = []string{
	"credit_report",
	"dispute_letter",
	"bureau_response",
	"collection_notice",
	"identity_document",
	"proof_of_address",
	"bank_statement",
	"court_record",
}

// categoryKeywords widen the substring fallback beyond the category name.
var categoryKeywords = map[string][]string{
	"credit_report":     {"fico", "tradeline", "experian", "equifax", "transunion"},
	"dispute_letter":    {"dispute", "inaccurate", "request that you investigate"},
	"bureau_response":   {"results of your dispute", "reinvestigation", "we have completed"},
	"collection_notice": {"collection", "past due", "debt collector", "amount owed"},
	"identity_document": {"driver license", "driver's license", "passport", "social security card"},
	"proof_of_address":  {"utility bill", "lease agreement", "service address"},
	"bank_statement":    {"account summary", "beginning balance"},
	"court_record":      {"judgment", "bankruptcy", "court", "docket"},
}

// ContentGenerator is the slice of a Vertex generative model the tagger uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// TaggerFunction categorizes Document Center uploads.
type TaggerFunction struct {
	model ContentGenerator
}

// modelTags is the JSON object the model is asked for.
type modelTags struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// NewTagger creates a tagger backed by Vertex AI.
func NewTagger(ctx context.Context) (*TaggerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	return &TaggerFunction{model: vertexClient.TaggerModel}, nil
}

// Process asks the model for a category and falls back to substring search
// when the call fails or returns anything unusable.
func (f *TaggerFunction) Process(ctx context.Context, req *models.TagRequest) (*models.TagResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	logCtx := slog.With("documentId", req.DocumentID)
	categories := req.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	if f.model != nil {
		tags, err := f.classify(ctx, req.Text, categories)
		if err == nil {
			logCtx.Info("Document tagged by model.", "category", tags.Category)
			return &models.TagResponse{Status: "success", Category: tags.Category, Tags: tags.Tags, Source: SourceModel}, nil
		}
		logCtx.Warn("Model tagging failed, using substring fallback.", "error", err)
	}

	category, matched := FallbackCategory(req.Text, categories)
	logCtx.Info("Document tagged by fallback.", "category", category)
	return &models.TagResponse{Status: "success", Category: category, Tags: matched, Source: SourceFallback}, nil
}

func (f *TaggerFunction) classify(ctx context.Context, text string, categories []string) (*modelTags, error) {
	if len(text) > maxTagInput {
		text = text[:maxTagInput]
	}
	prompt := fmt.Sprintf(gcp.TaggerUserPrompt, strings.Join(categories, ", "), text)
	resp, err := f.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tags from gemini: %w", err)
	}

	raw := extractText(resp)
	if raw == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}
	var tags modelTags
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from model: %w", err)
	}

	tags.Category = strings.ToLower(strings.TrimSpace(tags.Category))
	if tags.Category != OtherCategory && !containsFold(categories, tags.Category) {
		return nil, fmt.Errorf("model chose unknown category %q", tags.Category)
	}
	if len(tags.Tags) > 5 {
		tags.Tags = tags.Tags[:5]
	}
	if tags.Tags == nil {
		tags.Tags = []string{}
	}
	return &tags, nil
}

// extractText gets the first text part, without markdown fences.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return ""
	}
	clean := strings.TrimSpace(string(txt))
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// FallbackCategory picks the category with the most keyword hits in text.
// Ties go to the earlier category; no hits yields OtherCategory.
func FallbackCategory(text string, categories []string) (string, []string) {
	lower := strings.ToLower(text)
	best, bestHits := OtherCategory, 0
	var bestMatched []string
	for _, c := range categories {
		needles := append([]string{strings.ReplaceAll(strings.ToLower(c), "_", " ")}, categoryKeywords[c]...)
		var matched []string
		for _, n := range needles {
			if strings.Contains(lower, n) {
				matched = append(matched, n)
			}
		}
		if len(matched) > bestHits {
			best, bestHits, bestMatched = c, len(matched), matched
		}
	}
	if bestMatched == nil {
		bestMatched = []string{}
	}
	return best, bestMatched
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
