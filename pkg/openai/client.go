package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/shapeai4-rgb/shapeai/pkg/config"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("openai api key is required")
	errLoggerRequired = errors.New("openai logger is required")
	errEmptyResponse  = errors.New("openai returned an empty response")
)

// Generator produces structured JSON completions.
type Generator interface {
	CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error)
}

// Client wraps the OpenAI chat API with centralized logging and error mapping.
type Client struct {
	sdk    *goopenai.Client
	model  string
	logger *logger.Logger
}

// NewClient initializes the OpenAI wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.OpenAIConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &Client{
		sdk:    goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logg,
	}

	logg.Info(ctx, "openai client initialized")
	return c, nil
}

// CompleteJSON runs a chat completion constrained to a JSON object response.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	ctx = c.logger.WithField(ctx, "model", c.model)
	c.logger.Info(ctx, "openai completion request")

	resp, err := c.sdk.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error(ctx, "openai completion failed", err)
		return nil, c.mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errEmptyResponse, "openai completion failed")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errEmptyResponse, "openai completion failed")
	}
	if !json.Valid([]byte(content)) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "openai returned malformed JSON")
	}

	c.logger.Info(c.logger.WithField(ctx, "completion_tokens", resp.Usage.CompletionTokens), "openai completion response")
	return json.RawMessage(content), nil
}

func (c *Client) mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code := pkgerrors.CodeDependency
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = pkgerrors.CodeUnauthorized
		case http.StatusTooManyRequests:
			code = pkgerrors.CodeRateLimit
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("openai request failed with status %d", apiErr.HTTPStatusCode))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "openai request failed")
}
