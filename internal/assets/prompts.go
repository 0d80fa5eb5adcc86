// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	_ "embed"
	"strings"
)

// PromptMarker is the substitution marker replaced by the user's narrative.
const PromptMarker = "{users_input}"

// InterpreterPrompt asks a multimodal model to turn a personal story and its
// photo into one short image-editing instruction.
//
//go:embed prompts/interpreter.txt
var InterpreterPrompt string

// FormatPrompt substitutes narrative for the marker in template. The narrative
// is inserted verbatim: no escaping, no length limit.
func FormatPrompt(template, narrative string) string {
	return strings.ReplaceAll(template, PromptMarker, narrative)
}

// FormatInterpreterPrompt renders the embedded interpreter prompt for narrative.
func FormatInterpreterPrompt(narrative string) string {
	return FormatPrompt(InterpreterPrompt, narrative)
}

// HasMarker reports whether template contains exactly one substitution marker.
func HasMarker(template string) bool {
	return strings.Count(template, PromptMarker) == 1
}
