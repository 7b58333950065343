package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/loreforge/loreforge/internal/config"
)

// OpenAIClient backs the provider capability with the official openai-go
// SDK, including streamed chat completions.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(cfg config.ProviderConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai backend requires an api key")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai backend requires a model")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxOutputTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	if opts.OnChunk == nil {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", mapOpenAIError(err, "")
		}
		if len(resp.Choices) == 0 {
			return "", &Error{Status: 200, Message: "empty choices in response"}
		}
		return resp.Choices[0].Message.Content, nil
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			full.WriteString(delta)
			opts.OnChunk(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", mapOpenAIError(err, full.String())
	}
	return full.String(), nil
}

func mapOpenAIError(err error, partial string) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &Error{
			Status:  apierr.StatusCode,
			Code:    fmt.Sprintf("%v", apierr.Code),
			Message: apierr.Message,
			Partial: partial,
		}
	}
	if partial != "" {
		return &Error{Status: 0, Message: err.Error(), Partial: partial}
	}
	return err
}
