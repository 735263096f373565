package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Enrichment is the model's suggestion for a scraped deal.
type Enrichment struct {
	CleanTitle string `json:"clean_title"`
	Category   string `json:"category"`
}

type Client struct {
	client     *genai.Client
	model      string
	categories []string
}

// DefaultCategories are offered to the model when no list is configured.
var DefaultCategories = []string{
	"food", "fashion", "electronics", "travel", "beauty", "home", "entertainment", "health", "services", "other",
}

// NewClient returns nil without an API key so callers can skip enrichment.
func NewClient(ctx context.Context, apiKey, modelID string, categories []string) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &Client{client: client, model: modelID, categories: categories}, nil
}

func (c *Client) generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"clean_title": {
					Type:        genai.TypeString,
					Description: "A concise 3-12 word product title. Remove store names, SKUs, shipping notes and marketing fluff.",
				},
				"category": {
					Type:        genai.TypeString,
					Description: "The single best matching category.",
					Enum:        c.categories,
				},
			},
			Required: []string{"clean_title", "category"},
		},
	}
}

// Enrich asks the model for a cleaned title and a category. A nil Client
// returns an empty Enrichment.
func (c *Client) Enrich(ctx context.Context, title, description string) (Enrichment, error) {
	if c == nil || c.client == nil {
		return Enrichment{}, nil
	}

	prompt := fmt.Sprintf(`
Classify this product offer scraped from a merchant page:
Title: "%s"
Description: "%s"

Task:
1. Create a clean, concise product title.
2. Pick one category from: %s.

Output JSON adhering to the schema.
`, title, truncate(description, 1000), strings.Join(c.categories, ", "))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.generationConfig())
	if err != nil {
		return Enrichment{}, fmt.Errorf("gemini generation failed: %w", err)
	}
	return parseEnrichment(resp.Text())
}

func parseEnrichment(text string) (Enrichment, error) {
	jsonStr := strings.TrimSpace(text)
	if jsonStr == "" {
		return Enrichment{}, fmt.Errorf("no text part in response")
	}
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")

	var result Enrichment
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return Enrichment{}, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	result.CleanTitle = strings.TrimSpace(result.CleanTitle)
	result.Category = strings.ToLower(strings.TrimSpace(result.Category))
	return result, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
