package imageresult

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoBytes means the remote call succeeded but its result held nothing usable.
var ErrNoBytes = errors.New("failed to obtain generated image bytes from result")

// FetchError reports a non-success HTTP status while downloading a result URL.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// Fetcher downloads the body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches URLs with a single GET and no retries.
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client gets a 60s timeout client.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{httpClient: client}
}

// Fetch performs one GET and returns the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetched body: %w", err)
	}

	log.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Generated image downloaded")

	return body, nil
}

// Normalizer reduces any Result to one byte buffer.
type Normalizer struct {
	fetcher Fetcher
}

// NewNormalizer creates a Normalizer that downloads URLs through fetcher.
func NewNormalizer(fetcher Fetcher) *Normalizer {
	return &Normalizer{fetcher: fetcher}
}

// Normalize resolves r to bytes. The first matching rule wins:
//  1. byte stream: read to completion
//  2. URL handle: fetch its URL
//  3. URL string: fetch it
//  4. non-empty sequence: rules 1-3 on the first element only
//
// Anything else, including an empty sequence or a missing URL, is ErrNoBytes.
func (n *Normalizer) Normalize(ctx context.Context, r Result) ([]byte, error) {
	if r.kind == KindSequence {
		if len(r.items) == 0 {
			return nil, ErrNoBytes
		}
		log.Debug().Int("elements", len(r.items)).Str("first", r.items[0].kind.String()).Msg("Using first element of sequence result")
		r = r.items[0]
	}

	var (
		data []byte
		err  error
	)
	switch r.kind {
	case KindBytes:
		if r.reader == nil {
			return nil, ErrNoBytes
		}
		data, err = io.ReadAll(r.reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read generated image stream: %w", err)
		}
	case KindURLHandle:
		if r.locator == nil {
			return nil, ErrNoBytes
		}
		data, err = n.fetch(ctx, r.locator.URL())
	case KindURLString:
		data, err = n.fetch(ctx, r.url)
	default:
		return nil, ErrNoBytes
	}
	if err != nil {
		return nil, err
	}
	// A zero-length stream or body is returned as-is and written as an empty file.
	if len(data) == 0 {
		log.Warn().Str("result_kind", r.kind.String()).Msg("Generated image is empty")
	}
	return data, nil
}

func (n *Normalizer) fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ErrNoBytes
	}
	if n.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured for %s", url)
	}
	return n.fetcher.Fetch(ctx, url)
}
