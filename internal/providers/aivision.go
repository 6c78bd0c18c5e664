package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DetectedBook is one book the AI-vision model identified in a photo.
type DetectedBook struct {
	Title      string  `json:"title"`
	Author     string  `json:"author,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ScanResult is the structured output of a bookshelf scan. ModelName and
// TokenUsage are surfaced to the job's progress payload per spec §4.7
// stage 2 ("captured token usage and provider model string").
type ScanResult struct {
	Books      []DetectedBook `json:"books"`
	ModelName  string         `json:"-"`
	TokenUsage int64          `json:"-"`
}

// scanResultSchema is the JSON schema used for the structured-output call,
// resolving spec.md §9's OQ about which Gemini/OpenAI generation to target:
// this client uniformly uses a schema-enforced response_format, the newest
// of the generations the source carried.
var scanResultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"books": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":      map[string]any{"type": "string"},
					"author":     map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
				"required":             []string{"title", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"books"},
	"additionalProperties": false,
}

// AIVision wraps the AI-vision provider (spec §4.1, §4.7 stage 2).
type AIVision struct {
	client openai.Client
	model  string
}

const aiVisionName = "ai_vision"

// NewAIVision builds a client. apiKey is used as given: neither the
// constructor nor ScanImage checks that it is set.
func NewAIVision(apiKey, model string) *AIVision {
	return &AIVision{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// ScanImage sends image bytes to the vision model and returns the books it
// detected. The call is bounded by the AI deadline (spec §4.1: default
// 30s) on top of any deadline ctx already carries.
func (a *AIVision) ScanImage(ctx context.Context, image []byte, contentType string) (*ScanResult, error) {
	if len(image) == 0 {
		return nil, newError(aiVisionName, KindInvalidResponse, fmt.Errorf("empty image"))
	}
	ctx, cancel := WithDeadline(ctx, DefaultDeadlines().AI)
	defer cancel()

	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Identify every book spine visible in this photo of a bookshelf. Return title, author if legible, and your confidence 0-1."),
			openai.UserMessage(dataURL),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "scan_result",
					Schema: scanResultSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, classifyOpenAIErr(aiVisionName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(aiVisionName, KindInvalidResponse, fmt.Errorf("no choices returned"))
	}

	var out ScanResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, newError(aiVisionName, KindInvalidResponse, err)
	}
	out.ModelName = resp.Model
	out.TokenUsage = resp.Usage.TotalTokens
	return &out, nil
}

// classifyOpenAIErr maps a generic transport/API error into our ErrorKind
// taxonomy. openai-go surfaces HTTP status via *openai.Error, mirrored here
// without importing internal SDK details beyond that one type.
func classifyOpenAIErr(provider string, err error) error {
	var apiErr *openai.Error
	if ok := asOpenAIError(err, &apiErr); ok {
		kind, retryAfter := classifyStatus(apiErr.StatusCode, 0)
		e := newError(provider, kind, err)
		e.RetryAfter = retryAfter
		return e
	}
	return newError(provider, KindTransport, err)
}

func asOpenAIError(err error, target **openai.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*openai.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
