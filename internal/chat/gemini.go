package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/fpang/reimagine/internal/filehandler"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// GeminiInterpreter interprets narratives with a Gemini multimodal model.
type GeminiInterpreter struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a genai client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiInterpreter wraps an existing genai client.
func NewGeminiInterpreter(client *genai.Client, model string) *GeminiInterpreter {
	if model == "" {
		model = ModelGemini25Flash
	}
	return &GeminiInterpreter{client: client, model: model}
}

// Model returns the model identifier sent with each request.
func (g *GeminiInterpreter) Model() string { return g.model }

// Interpret sends the text prompt followed by the inline image and returns the
// response text verbatim.
func (g *GeminiInterpreter) Interpret(ctx context.Context, prompt string, img *filehandler.SourceImage) (string, error) {
	parts := []*genai.Part{
		{Text: prompt},
		{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Data,
			},
		},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	log.Debug().
		Str("model", g.model).
		Int("prompt_length", len(prompt)).
		Int("image_bytes", len(img.Data)).
		Msg("Interpret: Starting Gemini API call")

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Gemini interpretation failed")
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	return resp.Text(), nil
}
