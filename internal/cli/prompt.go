package cli

import (
	"fmt"
	"os"

	"github.com/fpang/reimagine/internal/assets"
)

// LoadPromptTemplate returns the interpreter prompt template. An empty path
// selects the embedded default; a file must contain the narrative marker
// exactly once.
func LoadPromptTemplate(path string) (string, error) {
	if path == "" {
		return assets.InterpreterPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	template := string(data)
	if !assets.HasMarker(template) {
		return "", fmt.Errorf("prompt file %s must contain %s exactly once", path, assets.PromptMarker)
	}
	return template, nil
}
