package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fpang/reimagine/internal/auth"
	"github.com/fpang/reimagine/internal/chat"
	"github.com/fpang/reimagine/internal/filehandler"
	"github.com/fpang/reimagine/internal/imageresult"
	"github.com/rs/zerolog/log"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath
}

// HandleValidationError processes auth.ValidationError and exits with appropriate messaging.
func HandleValidationError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoKey:
			log.Fatal().Str("service", validationErr.Service).Msg(validationErr.Message)
		case auth.ErrTypeInvalidKey:
			log.Fatal().Err(err).Msg("Invalid API credential. Please check your key and try again")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		case auth.ErrTypeQuotaExceeded:
			log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
		default:
			log.Fatal().Err(err).Msg("Credential validation failed")
		}
	} else {
		log.Fatal().Err(err).Msg("unexpected error during credential validation")
	}
	os.Exit(1)
}

// HandleRunError logs a pipeline failure with a message matched to its cause
// and exits. Credential-related HTTP statuses are reported like validation
// failures.
func HandleRunError(err error) {
	log.Fatal().Err(err).Msg(DescribeRunError(err))
	os.Exit(1)
}

// DescribeRunError returns the operator-facing summary for a pipeline error.
func DescribeRunError(err error) string {
	var (
		missing    *filehandler.MissingAssetError
		apiErr     *chat.APIError
		predErr    *chat.PredictionError
		fetchErr   *imageresult.FetchError
		validation *auth.ValidationError
	)
	switch {
	case errors.As(err, &validation):
		return "Credential error"
	case errors.As(err, &missing):
		return "Source image missing; no remote calls were made for it"
	case errors.As(err, &apiErr):
		if t, ok := auth.ClassifyStatus(apiErr.StatusCode); ok {
			switch t {
			case auth.ErrTypeInvalidKey:
				return apiErr.Provider + " rejected the API credential"
			case auth.ErrTypeQuotaExceeded:
				return apiErr.Provider + " quota exceeded or rate limited"
			case auth.ErrTypeNetworkError:
				return apiErr.Provider + " service unavailable"
			}
		}
		return apiErr.Provider + " request failed"
	case errors.As(err, &predErr):
		return "Image edit did not succeed"
	case errors.As(err, &fetchErr):
		return "Failed to download generated image"
	case errors.Is(err, imageresult.ErrNoBytes):
		return "Editor returned no usable image"
	default:
		return "Pipeline failed"
	}
}
