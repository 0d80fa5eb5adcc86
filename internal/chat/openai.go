package chat

// openai.go provides a REST client for the OpenAI chat completions API.
// The narrative prompt and the source photo are sent in one user message; the
// first choice's text is the editing instruction.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/reimagine/internal/filehandler"
	"github.com/fpang/reimagine/internal/imageresult"
	"github.com/rs/zerolog/log"
)

// openAIBaseURL is the OpenAI REST API base URL.
const openAIBaseURL = "https://api.openai.com"

// OpenAIClient interprets narratives with an OpenAI multimodal chat model and
// transcribes spoken narratives.
type OpenAIClient struct {
	apiKey          string
	model           string
	transcribeModel string
	baseURL         string
	httpClient      *http.Client
}

// NewOpenAIClient creates a client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = ModelOpenAIChat
	}
	return &OpenAIClient{
		apiKey:          apiKey,
		model:           model,
		transcribeModel: GetTranscribeModel(),
		baseURL:         openAIBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Model returns the model identifier sent with each request.
func (c *OpenAIClient) Model() string { return c.model }

// --- REST API request/response types ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Interpret sends prompt and img to the chat model and returns the first
// choice's message text verbatim.
func (c *OpenAIClient) Interpret(ctx context.Context, prompt string, img *filehandler.SourceImage) (string, error) {
	log.Debug().
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Int("image_bytes", len(img.Data)).
		Str("image_mime", img.MIMEType).
		Msg("Interpret: Starting OpenAI API call")

	req := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: imageresult.EncodeDataURI(img.MIMEType, img.Data)}},
				},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Interpret: HTTP call completed")

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("OpenAI API returned error")
		return "", &APIError{Provider: "OpenAI", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var chatResp openAIResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s (%s)", chatResp.Error.Message, chatResp.Error.Type)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from %s", c.model)
	}

	return chatResp.Choices[0].Message.Content, nil
}
