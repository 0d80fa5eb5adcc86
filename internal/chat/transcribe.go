package chat

// transcribe.go turns a spoken narrative into text with the OpenAI audio
// transcription endpoint.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TranscriptionLanguage is the ISO-639-1 hint sent with every transcription.
const TranscriptionLanguage = "en"

type transcriptionResponse struct {
	Text  string       `json:"text"`
	Error *openAIError `json:"error,omitempty"`
}

// Transcribe uploads the audio file at path and returns the transcript text,
// trimmed of surrounding whitespace.
func (c *OpenAIClient) Transcribe(ctx context.Context, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write multipart file: %w", err)
	}
	for _, f := range [][2]string{{"model", c.transcribeModel}, {"language", TranscriptionLanguage}} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("failed to write multipart field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	log.Debug().
		Str("model", c.transcribeModel).
		Str("file", filepath.Base(path)).
		Int("audio_bytes", len(audio)).
		Msg("Transcribe: Starting OpenAI API call")

	url := strings.TrimRight(c.baseURL, "/") + "/v1/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
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

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("OpenAI transcription returned error")
		return "", &APIError{Provider: "OpenAI", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if tr.Error != nil {
		return "", fmt.Errorf("API error: %s (%s)", tr.Error.Message, tr.Error.Type)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", fmt.Errorf("transcription of %s is empty", filepath.Base(path))
	}

	log.Debug().
		Dur("duration", time.Since(start)).
		Int("transcript_length", len(text)).
		Msg("Transcribe: completed")
	return text, nil
}
