package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/imaging"
	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/pkg/logger"
)

// ErrUpstream indicates the vision provider could not be reached or returned
// an error response. Calls are not retried here; the caller decides whether
// to resubmit.
var ErrUpstream = errors.New("vision provider unavailable")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client composes prompts for and extracts analyses from the vision model.
type Client struct {
	api         chatCompleter
	model       string
	temperature float32
	maxTokens   int
}

// Result is the outcome of a single vision invocation.
type Result struct {
	Extraction  *Extraction
	Severity    string
	Confidence  float64
	RawResponse string
	Metadata    models.AnalysisMetadata
}

func NewClient(apiKey, model string, temperature float32, maxTokens int) *Client {
	logger.Info("Vision client initialized",
		zap.String("model", model),
		zap.Float64("temperature", float64(temperature)),
		zap.Int("max_output_tokens", maxTokens),
	)

	return &Client{
		api:         openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Analyze runs one model invocation over the normalized images and extracts
// the structured scope. There is deliberately no timeout beyond the transport
// default and no retry.
func (c *Client) Analyze(ctx context.Context, req *models.AnalysisRequest, images []imaging.ProcessedImage) (*Result, error) {
	start := time.Now()

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: BuildUserPrompt(req, images),
		},
	}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + img.Base64Data,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		logger.Error("Vision request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrUpstream, err)
	}

	elapsed := int(time.Since(start).Milliseconds())

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contained no choices", ErrUpstream)
	}
	content := resp.Choices[0].Message.Content

	ext, err := ParseResponse(content)
	if err != nil {
		logger.Error("Vision response could not be parsed",
			zap.Int("response_length", len(content)),
			zap.Error(err),
		)
		return nil, err
	}

	severity, err := ValidateSeverity(ext.Severity)
	if err != nil {
		return nil, err
	}

	confidence := ResolveConfidence(ext, images)

	tokens := resp.Usage.TotalTokens
	raw, err := json.Marshal(resp)
	if err != nil {
		logger.Warn("Failed to encode provider response, keeping message content", zap.Error(err))
		raw = []byte(content)
	}

	logger.Debug("Vision analysis extracted",
		zap.String("model", c.model),
		zap.Int("scope_items", len(ext.ScopeItems)),
		zap.Int("tokens_used", tokens),
		zap.Int("processing_time_ms", elapsed),
	)

	return &Result{
		Extraction:  ext,
		Severity:    severity,
		Confidence:  confidence,
		RawResponse: string(raw),
		Metadata: models.AnalysisMetadata{
			ProcessingStatus: "completed",
			ModelVersion:     c.model,
			TokensUsed:       &tokens,
			ProcessingTimeMS: &elapsed,
		},
	}, nil
}
