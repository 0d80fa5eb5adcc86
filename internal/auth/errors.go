package auth

import "net/http"

// ValidationError represents a specific type of credential failure.
type ValidationError struct {
	Type    ValidationErrorType
	Service string
	Message string
	Err     error
}

// ValidationErrorType categorizes credential failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no credential was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the credential was rejected.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates the service could not be reached or failed server-side.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates rate limiting or exhausted credit.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (e *ValidationError) Error() string {
	if e.Err != nil && e.Type != ErrTypeNoKey {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status returned by a remote API to a credential
// failure type. ok is false for statuses that say nothing about credentials.
func ClassifyStatus(code int) (t ValidationErrorType, ok bool) {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrTypeInvalidKey, true
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		return ErrTypeQuotaExceeded, true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrTypeNetworkError, true
	default:
		return ErrTypeUnknown, false
	}
}
