package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when the configuration leaves Model empty.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProvider("openai", newOpenAIProvider)
}

type openAIProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := ValidateBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		conf.BaseURL = u
	}
	if t := ValidateTimeout(cfg.Timeout); t > 0 {
		conf.HTTPClient = &http.Client{Timeout: t}
	}

	return &openAIProvider{client: openai.NewClientWithConfig(conf), model: model}, nil
}

func (p *openAIProvider) Model() string { return p.model }

func (p *openAIProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	body := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: req.maxTokens(),
	}
	if t, ok := req.temperature(); ok {
		body.Temperature = float32(t)
	}

	resp, err := p.client.CreateChatCompletion(ctx, body)
	if err != nil {
		return Completion{}, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoResponseChoice
	}

	text := resp.Choices[0].Message.Content
	return Completion{
		Text:      text,
		TokensIn:  tokenCount(int64(resp.Usage.PromptTokens), req.System+req.Prompt),
		TokensOut: tokenCount(int64(resp.Usage.CompletionTokens), text),
	}, nil
}

func (p *openAIProvider) classify(err error) error {
	if isContextError(err) {
		return contextError("openai", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return httpError("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return httpError("openai", reqErr.HTTPStatusCode, "", err)
	}
	return NewProviderError("openai", ErrorTypeNetwork, 0, "request failed", err)
}
