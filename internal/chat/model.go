package chat

import (
	"context"
	"os"

	"github.com/fpang/reimagine/internal/filehandler"
)

// Interpreter turns a formatted narrative prompt plus the source photo into
// an editing instruction. OpenAIClient and GeminiInterpreter implement it.
type Interpreter interface {
	Model() string
	Interpret(ctx context.Context, prompt string, img *filehandler.SourceImage) (string, error)
}

var (
	_ Interpreter = (*OpenAIClient)(nil)
	_ Interpreter = (*GeminiInterpreter)(nil)
)

// Model IDs
//
// | Stage       | Provider  | Model ID                            |
// |-------------|-----------|-------------------------------------|
// | Interpret   | OpenAI    | gpt-5-chat-latest                   |
// | Interpret   | Gemini    | gemini-2.5-flash                    |
// | Edit        | Replicate | black-forest-labs/flux-kontext-pro  |
// | Transcribe  | OpenAI    | whisper-1                           |
const (
	// ModelOpenAIChat is the multimodal chat model used to interpret narratives.
	ModelOpenAIChat = "gpt-5-chat-latest"

	// ModelGemini25Flash is the Gemini alternative for narrative interpretation.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelFluxKontextPro is the instruction-driven image editing model.
	ModelFluxKontextPro = "black-forest-labs/flux-kontext-pro"

	// ModelWhisper transcribes spoken narratives.
	ModelWhisper = "whisper-1"
)

// DefaultOutputFormat is the raster format requested from the editor.
const DefaultOutputFormat = "png"

// GetChatModel returns the interpreter model, resolved from:
// 1. REIMAGINE_CHAT_MODEL environment variable (if set)
// 2. fallback
func GetChatModel(fallback string) string {
	if env := os.Getenv("REIMAGINE_CHAT_MODEL"); env != "" {
		return env
	}
	return fallback
}

// GetEditModel returns the editing model, resolved from:
// 1. REIMAGINE_EDIT_MODEL environment variable (if set)
// 2. ModelFluxKontextPro
func GetEditModel() string {
	if env := os.Getenv("REIMAGINE_EDIT_MODEL"); env != "" {
		return env
	}
	return ModelFluxKontextPro
}

// GetTranscribeModel returns the speech-to-text model, resolved from:
// 1. REIMAGINE_TRANSCRIBE_MODEL environment variable (if set)
// 2. ModelWhisper
func GetTranscribeModel() string {
	if env := os.Getenv("REIMAGINE_TRANSCRIBE_MODEL"); env != "" {
		return env
	}
	return ModelWhisper
}
