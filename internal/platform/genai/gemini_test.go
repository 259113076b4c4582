package genai

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	gensdk "google.golang.org/genai"

	"github.com/kalamitra/api/internal/platform/config"
)

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"{\"title\":\"x\"}":                   "{\"title\":\"x\"}",
		"```json\n{\"title\":\"x\"}\n```":     "{\"title\":\"x\"}",
		"```\n{\"title\":\"x\"}\n```":         "{\"title\":\"x\"}",
		"  ```json{\"title\":\"x\"}```  ":     "{\"title\":\"x\"}",
		"```{\"a\":\n1}```":                   "{\"a\":\n1}",
	}
	for input, want := range cases {
		if got := StripFences(input); got != want {
			t.Fatalf("StripFences(%q): expected %q, got %q", input, want, got)
		}
	}
}

func TestGenerateBuildsMultimodalRequest(t *testing.T) {
	var gotModel string
	var gotContents []*gensdk.Content
	var gotCfg *gensdk.GenerateContentConfig
	client, err := NewGeminiClient(context.Background(), config.AIConfig{Model: "gemini-test"},
		withGenerateFunc(func(_ context.Context, model string, contents []*gensdk.Content, cfg *gensdk.GenerateContentConfig) (*gensdk.GenerateContentResponse, error) {
			gotModel = model
			gotContents = contents
			gotCfg = cfg
			return &gensdk.GenerateContentResponse{
				Candidates: []*gensdk.Candidate{{
					Content: &gensdk.Content{Parts: []*gensdk.Part{{Text: "```json\n{\"title\":\"Pot\"}\n```"}}},
				}},
			}, nil
		}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Generate(context.Background(), Request{
		Prompt: "describe",
		Images: []Image{{MimeType: "image/png", Data: encodePNG(t, 4, 4)}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "{\"title\":\"Pot\"}" || resp.Model != "gemini-test" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotModel != "gemini-test" {
		t.Fatalf("expected configured model, got %s", gotModel)
	}
	if gotCfg == nil || gotCfg.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json response mime type")
	}
	if len(gotContents) != 1 || gotContents[0].Role != "user" {
		t.Fatalf("expected a single user turn, got %+v", gotContents)
	}
	parts := gotContents[0].Parts
	if len(parts) != 2 || parts[0].Text != "describe" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/png" {
		t.Fatalf("expected inline png data, got %+v", parts[1].InlineData)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(parts[1].InlineData.Data)); err != nil {
		t.Fatalf("expected raw image bytes: %v", err)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	client, _ := NewGeminiClient(context.Background(), config.AIConfig{},
		withGenerateFunc(func(context.Context, string, []*gensdk.Content, *gensdk.GenerateContentConfig) (*gensdk.GenerateContentResponse, error) {
			return &gensdk.GenerateContentResponse{}, nil
		}),
	)
	if _, err := client.Generate(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if client.Model() != defaultModel {
		t.Fatalf("expected default model, got %s", client.Model())
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), config.AIConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDownscale(t *testing.T) {
	small := encodePNG(t, 10, 10)
	out, mimeType, err := Downscale(small, 1024)
	if err != nil {
		t.Fatalf("downscale small: %v", err)
	}
	if mimeType != "" || !bytes.Equal(out, small) {
		t.Fatalf("expected small image untouched")
	}

	large := encodePNG(t, 400, 100)
	out, mimeType, err = Downscale(large, 200)
	if err != nil {
		t.Fatalf("downscale large: %v", err)
	}
	if mimeType != "image/png" {
		t.Fatalf("expected png output, got %s", mimeType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 50 {
		t.Fatalf("expected 200x50, got %dx%d", cfg.Width, cfg.Height)
	}

	if _, _, err := Downscale([]byte("not an image"), 100); err == nil {
		t.Fatalf("expected decode error")
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
