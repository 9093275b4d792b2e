package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when the configuration leaves Model empty.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProvider("google", newGoogleProvider)
}

type googleProvider struct {
	client *genai.Client
	model  string
}

func newGoogleProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		u, err := ValidateBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.HTTPOptions.BaseURL = u
	}
	if t := ValidateTimeout(cfg.Timeout); t > 0 {
		cc.HTTPClient = &http.Client{Timeout: t}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return &googleProvider{client: client, model: model}, nil
}

func (p *googleProvider) Model() string { return p.model }

func (p *googleProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	conf := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.maxTokens())}
	if t, ok := req.temperature(); ok {
		conf.Temperature = genai.Ptr(float32(t))
	}
	if req.System != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}, conf)
	if err != nil {
		return Completion{}, p.classify(err)
	}

	text := resp.Text()
	var in, out int64
	if u := resp.UsageMetadata; u != nil {
		in, out = int64(u.PromptTokenCount), int64(u.CandidatesTokenCount)
	}
	return Completion{
		Text:      text,
		TokensIn:  tokenCount(in, req.System+req.Prompt),
		TokensOut: tokenCount(out, text),
	}, nil
}

func (p *googleProvider) classify(err error) error {
	if isContextError(err) {
		return contextError("google", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if blockedBySafety(apiErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		msg := apiErr.Message
		if msg == "" && len(apiErr.Errors) > 0 {
			msg = apiErr.Errors[0].Message
		}
		return httpError("google", apiErr.Code, msg, err)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return httpError("google", genaiErr.Code, genaiErr.Message, err)
	}
	return NewProviderError("google", ErrorTypeNetwork, 0, "request failed", err)
}

func blockedBySafety(apiErr *googleapi.Error) bool {
	lower := strings.ToLower(apiErr.Message)
	if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
