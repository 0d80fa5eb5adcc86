package chat

import "fmt"

// APIError is a non-success HTTP response from a remote model API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, truncateString(e.Body, 200))
}

// PredictionError is a prediction that ended in a terminal non-success state.
type PredictionError struct {
	ID     string
	Status string
	Detail string
}

func (e *PredictionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("prediction %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("prediction %s %s: %s", e.ID, e.Status, e.Detail)
}

// truncateString shortens s to maxLen bytes for logging.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
