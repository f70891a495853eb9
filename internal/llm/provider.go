package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/version"
)

// DataURLPrefix is prepended to bare base64 page images.
const DataURLPrefix = "data:image/png;base64,"

// StreamRequest is a single page extraction against an OpenAI-compatible provider.
type StreamRequest struct {
	BaseURL  string
	ModelID  string
	APIKey   string
	Prompt   string
	ImageURL string
}

// Provider streams chat completions from OpenAI-compatible endpoints.
type Provider struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProvider creates a Provider. A nil httpClient uses http.DefaultClient.
func NewProvider(httpClient *http.Client, logger *slog.Logger) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{httpClient: httpClient, logger: logger}
}

// BuildImageURL turns a page image into the image_url the provider expects.
func BuildImageURL(imageBase64 string) string {
	if strings.HasPrefix(imageBase64, "data:") {
		return imageBase64
	}
	return DataURLPrefix + imageBase64
}

// Stream runs a streaming completion and calls onDelta for every non-empty
// content fragment. An error returned by onDelta aborts the stream. The
// returned usage is nil when the provider did not report any.
//
// Provider failures are returned as *ProviderError.
func (p *Provider) Stream(ctx context.Context, req StreamRequest, onDelta func(string) error) (*models.Usage, error) {
	client := openai.NewClient(
		option.WithBaseURL(req.BaseURL),
		option.WithAPIKey(req.APIKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.Get().UserAgent()),
	)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.ModelID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: req.ImageURL,
				}),
			}),
		},
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var usage *models.Usage
	deltas := 0
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = &models.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		deltas++
		if err := onDelta(content); err != nil {
			return usage, err
		}
	}

	if err := stream.Err(); err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		if ctx.Err() != nil {
			return usage, ctx.Err()
		}
		pe := ClassifyError(err, req.ModelID, status)
		p.logger.Warn("provider stream failed",
			"model", req.ModelID,
			"status", status,
			"category", pe.Category,
			"deltas", deltas,
			"error", err,
		)
		return usage, pe
	}

	p.logger.Debug("provider stream complete", "model", req.ModelID, "deltas", deltas, "usage", usage != nil)
	return usage, nil
}
