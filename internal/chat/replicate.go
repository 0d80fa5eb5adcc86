package chat

// replicate.go provides a REST client for instruction-driven image editing on
// Replicate. A prediction is created with "Prefer: wait" so short edits finish
// in the create call; longer ones are polled through urls.get until they reach
// a terminal status.

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

// replicateBaseURL is the Replicate REST API base URL.
const replicateBaseURL = "https://api.replicate.com"

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 150
)

// Prediction statuses.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ReplicateClient edits images with a model hosted on Replicate.
type ReplicateClient struct {
	apiToken     string
	model        string
	outputFormat string
	baseURL      string
	httpClient   *http.Client

	// PollInterval is the wait between status checks of a running prediction.
	PollInterval time.Duration
	// MaxPolls bounds the number of status checks.
	MaxPolls int
}

// NewReplicateClient creates a client for model ("owner/name" or
// "owner/name:version") producing images in outputFormat.
func NewReplicateClient(apiToken, model, outputFormat string) *ReplicateClient {
	if model == "" {
		model = ModelFluxKontextPro
	}
	if outputFormat == "" {
		outputFormat = DefaultOutputFormat
	}
	return &ReplicateClient{
		apiToken:     apiToken,
		model:        model,
		outputFormat: outputFormat,
		baseURL:      replicateBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Create call blocks up to 60s with Prefer: wait
		},
		PollInterval: defaultPollInterval,
		MaxPolls:     defaultMaxPolls,
	}
}

// Model returns the model identifier.
func (c *ReplicateClient) Model() string { return c.model }

// --- REST API request/response types ---

type replicateRequest struct {
	Version string         `json:"version,omitempty"`
	Input   replicateInput `json:"input"`
}

type replicateInput struct {
	Prompt       string `json:"prompt"`
	InputImage   string `json:"input_image"`
	OutputFormat string `json:"output_format"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// errorDetail renders the prediction's error field, which may be a string or an object.
func (p *replicatePrediction) errorDetail() string {
	raw := bytes.TrimSpace(p.Error)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// EditImage applies instruction to the source image and returns the
// prediction output in whatever shape the model produced. The image file is
// re-opened from disk rather than reusing any earlier encoding.
func (c *ReplicateClient) EditImage(ctx context.Context, instruction string, img *filehandler.SourceImage) (imageresult.Result, error) {
	log.Info().
		Str("model", c.model).
		Str("instruction", truncateString(instruction, 100)).
		Str("image", img.Name).
		Msg("Sending image to Replicate for editing")

	inputImage, err := c.encodeSource(img)
	if err != nil {
		return imageresult.Result{}, err
	}

	startTime := time.Now()
	pred, err := c.createPrediction(ctx, instruction, inputImage)
	if err != nil {
		return imageresult.Result{}, err
	}

	pred, err = c.waitForPrediction(ctx, pred)
	if err != nil {
		return imageresult.Result{}, err
	}

	result, err := imageresult.FromJSON(pred.Output)
	if err != nil {
		return imageresult.Result{}, fmt.Errorf("prediction %s: %w", pred.ID, err)
	}

	log.Debug().
		Str("prediction", pred.ID).
		Str("output_kind", result.Kind().String()).
		Int("output_elements", result.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("EditImage: prediction completed")

	return result, nil
}

// encodeSource reads a fresh stream of the image and returns it as a data URI.
func (c *ReplicateClient) encodeSource(img *filehandler.SourceImage) (string, error) {
	rc, err := filehandler.OpenSourceImage(img.Path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return imageresult.EncodeDataURI(img.MIMEType, data), nil
}

// createPrediction submits the prediction. Official models use the
// /v1/models/{owner}/{name}/predictions endpoint; pinned versions use /v1/predictions.
func (c *ReplicateClient) createPrediction(ctx context.Context, instruction, inputImage string) (*replicatePrediction, error) {
	req := replicateRequest{
		Input: replicateInput{
			Prompt:       instruction,
			InputImage:   inputImage,
			OutputFormat: c.outputFormat,
		},
	}

	base := strings.TrimRight(c.baseURL, "/")
	url := base + "/v1/models/" + c.model + "/predictions"
	if _, version, ok := strings.Cut(c.model, ":"); ok {
		req.Version = version
		url = base + "/v1/predictions"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	return c.do(httpReq, http.StatusCreated, http.StatusOK)
}

// waitForPrediction polls until pred reaches a terminal status.
func (c *ReplicateClient) waitForPrediction(ctx context.Context, pred *replicatePrediction) (*replicatePrediction, error) {
	for polls := 0; ; polls++ {
		switch pred.Status {
		case StatusSucceeded:
			return pred, nil
		case StatusFailed, StatusCanceled:
			log.Error().
				Str("prediction", pred.ID).
				Str("status", pred.Status).
				Str("error", pred.errorDetail()).
				Msg("Replicate prediction did not succeed")
			return nil, &PredictionError{ID: pred.ID, Status: pred.Status, Detail: pred.errorDetail()}
		case StatusStarting, StatusProcessing, "":
		default:
			return nil, fmt.Errorf("prediction %s has unexpected status %q", pred.ID, pred.Status)
		}

		if polls >= c.MaxPolls {
			return nil, fmt.Errorf("prediction %s still %s after %d status checks", pred.ID, pred.Status, polls)
		}
		if pred.URLs.Get == "" {
			return nil, fmt.Errorf("prediction %s is %s but has no status URL", pred.ID, pred.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pred.URLs.Get, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		next, err := c.do(httpReq, http.StatusOK)
		if err != nil {
			return nil, err
		}

		log.Debug().
			Str("prediction", next.ID).
			Str("status", next.Status).
			Int("poll", polls+1).
			Msg("Polled Replicate prediction")
		pred = next
	}
}

// do sends an authenticated request and decodes a prediction from the response.
func (c *ReplicateClient) do(httpReq *http.Request, okStatuses ...int) (*replicatePrediction, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	ok := false
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("Replicate API returned error")
		return nil, &APIError{Provider: "Replicate", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pred replicatePrediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &pred, nil
}
