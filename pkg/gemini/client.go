// Package gemini wraps Google's Gemini API for structured JSON generation.
package gemini

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client generates JSON documents that follow a response schema.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// Request is a single structured generation call.
type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Schema            *genai.Schema
	Temperature       *float32
}

type sdkClient struct {
	client *genai.Client
}

// Option customizes client construction.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = u }
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: c}, nil
}

func (c *sdkClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}},
	}
	gc := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
		Temperature:      req.Temperature,
	}
	if req.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, gc)
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}
	text := resp.Text()
	if text == "" {
		return "", eris.New("gemini: empty response")
	}
	return text, nil
}
