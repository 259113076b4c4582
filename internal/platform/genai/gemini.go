package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gensdk "google.golang.org/genai"

	"github.com/kalamitra/api/internal/platform/config"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultTimeout      = 45 * time.Second
	defaultMaxImageSide = 1024
	jsonMimeType        = "application/json"
)

var (
	// ErrNotConfigured is returned when no API key was supplied.
	ErrNotConfigured = errors.New("genai: client not configured")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("genai: empty response")
)

// Image is an inline image passed to the model.
type Image struct {
	MimeType string
	Data     []byte
}

// Request describes a single multimodal prompt.
type Request struct {
	Prompt string
	Images []Image
	// JSON asks the model to answer with application/json.
	JSON bool
}

// Response carries the model text with any markdown fences removed.
type Response struct {
	Text  string
	Model string
}

type generateFunc func(ctx context.Context, model string, contents []*gensdk.Content, cfg *gensdk.GenerateContentConfig) (*gensdk.GenerateContentResponse, error)

// GeminiClient calls the Gemini API.
type GeminiClient struct {
	generate     generateFunc
	model        string
	timeout      time.Duration
	maxImageSide int
}

// Option customises the Gemini client.
type Option func(*GeminiClient)

// WithMaxImageSide overrides the longest edge images are downscaled to before upload.
func WithMaxImageSide(px int) Option {
	return func(c *GeminiClient) {
		if px > 0 {
			c.maxImageSide = px
		}
	}
}

func withGenerateFunc(fn generateFunc) Option {
	return func(c *GeminiClient) {
		c.generate = fn
	}
}

// NewGeminiClient builds a client from the AI configuration. A missing API key yields ErrNotConfigured.
func NewGeminiClient(ctx context.Context, cfg config.AIConfig, opts ...Option) (*GeminiClient, error) {
	client := &GeminiClient{
		model:        strings.TrimSpace(cfg.Model),
		timeout:      cfg.Timeout,
		maxImageSide: defaultMaxImageSide,
	}
	if client.model == "" {
		client.model = defaultModel
	}
	if client.timeout <= 0 {
		client.timeout = defaultTimeout
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.generate != nil {
		return client, nil
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, ErrNotConfigured
	}
	sdk, err := gensdk.NewClient(ctx, &gensdk.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: gensdk.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	client.generate = sdk.Models.GenerateContent
	return client, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Generate sends the prompt and images and returns the first candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.generate == nil {
		return Response{}, ErrNotConfigured
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, errors.New("genai: prompt is required")
	}

	parts := []*gensdk.Part{{Text: req.Prompt}}
	for i, img := range req.Images {
		data, mimeType, err := Downscale(img.Data, c.maxImageSide)
		if err != nil {
			return Response{}, fmt.Errorf("genai: image %d: %w", i, err)
		}
		if mimeType == "" {
			mimeType = img.MimeType
		}
		parts = append(parts, &gensdk.Part{
			InlineData: &gensdk.Blob{MIMEType: mimeType, Data: data},
		})
	}

	contents := []*gensdk.Content{{Role: "user", Parts: parts}}
	var genCfg *gensdk.GenerateContentConfig
	if req.JSON {
		genCfg = &gensdk.GenerateContentConfig{ResponseMIMEType: jsonMimeType}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.generate(callCtx, c.model, contents, genCfg)
	if err != nil {
		return Response{}, fmt.Errorf("genai: generate content: %w", err)
	}
	text := StripFences(responseText(resp))
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text, Model: c.model}, nil
}

func responseText(resp *gensdk.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text
		}
	}
	return ""
}

// StripFences removes a surrounding ```json ... ``` or ``` ... ``` block.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		if lang := strings.TrimSpace(text[:nl]); lang == "" || !strings.ContainsAny(lang, "{[\"") {
			text = text[nl+1:]
		}
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
