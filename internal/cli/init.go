package cli

import (
	"context"
	"fmt"

	"github.com/fpang/reimagine/internal/auth"
	"github.com/fpang/reimagine/internal/chat"
	"github.com/rs/zerolog/log"
)

// Interpreter names accepted by --interpreter.
const (
	InterpreterOpenAI = "openai"
	InterpreterGemini = "gemini"
)

// InterpreterService maps an --interpreter value to its credential source.
func InterpreterService(name string) (auth.Service, error) {
	switch name {
	case InterpreterOpenAI, "":
		return auth.OpenAI, nil
	case InterpreterGemini:
		return auth.Gemini, nil
	default:
		return auth.Service{}, fmt.Errorf("unknown interpreter %q (want %s or %s)", name, InterpreterOpenAI, InterpreterGemini)
	}
}

// InitInterpreter builds the narrative interpreter named by name. An empty
// model selects the provider default, overridable by REIMAGINE_CHAT_MODEL.
func InitInterpreter(ctx context.Context, name, model, apiKey string) (chat.Interpreter, error) {
	switch name {
	case InterpreterGemini:
		client, err := chat.NewGeminiClient(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		interp := chat.NewGeminiInterpreter(client, chat.GetChatModel(orDefault(model, chat.ModelGemini25Flash)))
		log.Info().Str("model", interp.Model()).Msg("Gemini interpreter initialized")
		return interp, nil
	case InterpreterOpenAI, "":
		interp := chat.NewOpenAIClient(apiKey, chat.GetChatModel(orDefault(model, chat.ModelOpenAIChat)))
		log.Info().Str("model", interp.Model()).Msg("OpenAI interpreter initialized")
		return interp, nil
	default:
		return nil, fmt.Errorf("unknown interpreter %q", name)
	}
}

// InitEditor builds the Replicate image editor.
func InitEditor(token, model string) *chat.ReplicateClient {
	if model == "" {
		model = chat.GetEditModel()
	}
	editor := chat.NewReplicateClient(token, model, chat.DefaultOutputFormat)
	log.Info().Str("model", editor.Model()).Msg("Replicate editor initialized")
	return editor
}

// orDefault returns v, or def when v is empty.
func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// InitTranscriber returns the OpenAI client that transcribes spoken
// narratives. The interpreter is reused when it already talks to OpenAI;
// otherwise an OpenAI key is resolved separately.
func InitTranscriber(interp chat.Interpreter) (*chat.OpenAIClient, error) {
	if c, ok := interp.(*chat.OpenAIClient); ok {
		return c, nil
	}
	key, err := auth.GetKey(auth.OpenAI)
	if err != nil {
		return nil, err
	}
	c := chat.NewOpenAIClient(key, "")
	log.Info().Str("model", chat.GetTranscribeModel()).Msg("OpenAI transcriber initialized")
	return c, nil
}
