package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lehigh-university-libraries/imagechat/internal/providers"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const name = "openai"

// OpenAI is a provider for OpenAI
type OpenAI struct {
	client oai.Client
}

// New returns a new OpenAI provider. baseURL may be empty to use the public API.
func New(apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// a quota failure is surfaced to the user instead of retried
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: oai.NewClient(opts...)}
}

func (o *OpenAI) Name() string {
	return name
}

// Generate answers the prompt using chat completions, attaching the image as a data URL
func (o *OpenAI) Generate(ctx context.Context, req providers.Request) (string, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	for _, t := range req.History {
		if t.Role == providers.RoleAssistant {
			messages = append(messages, oai.AssistantMessage(t.Content))
		} else {
			messages = append(messages, oai.UserMessage(t.Content))
		}
	}

	if req.Image != nil {
		messages = append(messages, oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
			oai.TextContentPart(req.Prompt),
			oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
				URL: req.Image.DataURL(),
			}),
		}))
	} else {
		messages = append(messages, oai.UserMessage(req.Prompt))
	}

	params := oai.ChatCompletionNewParams{
		Model:       oai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: oai.Float(req.Temperature),
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(fmt.Errorf("failed to call OpenAI API: %w", err))
	}

	if len(completion.Choices) == 0 {
		return "", providers.Failure(name, fmt.Errorf("no choices returned from OpenAI"))
	}

	return completion.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == "insufficient_quota" {
			return providers.Quota(name, err)
		}
	}
	return providers.Failure(name, err)
}
