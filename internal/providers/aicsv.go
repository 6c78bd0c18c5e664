package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ParsedRow is one normalized book record the AI-CSV parser extracted from
// an arbitrary, user-supplied CSV layout.
type ParsedRow struct {
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}

// ParseResult is the structured output of a CSV parse.
type ParseResult struct {
	Rows []ParsedRow `json:"rows"`
}

var parseResultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"rows": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":  map[string]any{"type": "string"},
					"author": map[string]any{"type": "string"},
					"isbn":   map[string]any{"type": "string"},
				},
				"required":             []string{"title"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"rows"},
	"additionalProperties": false,
}

// AICSV wraps the AI-CSV-parser provider (spec §4.1, §4.7 CSV import),
// which tolerates arbitrary column layouts ("Title", "book_title", "Name",
// …) by asking the model to map them rather than hand-rolling a header
// heuristic.
type AICSV struct {
	client openai.Client
	model  string
}

const aiCSVName = "ai_csv"

// NewAICSV builds a client.
func NewAICSV(apiKey, model string) *AICSV {
	return &AICSV{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}
}

// ParseCSV extracts book records from raw CSV text.
func (a *AICSV) ParseCSV(ctx context.Context, text string) (*ParseResult, error) {
	if text == "" {
		return nil, newError(aiCSVName, KindInvalidResponse, fmt.Errorf("empty csv"))
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Extract one row per book from this CSV, regardless of its column headers. Map title/author/isbn columns by meaning, not by exact header name."),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "parse_result",
					Schema: parseResultSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, classifyOpenAIErr(aiCSVName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(aiCSVName, KindInvalidResponse, fmt.Errorf("no choices returned"))
	}

	var out ParseResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, newError(aiCSVName, KindInvalidResponse, err)
	}
	return &out, nil
}
