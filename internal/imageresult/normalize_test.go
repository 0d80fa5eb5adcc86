package imageresult

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// recordingFetcher returns canned bodies and counts calls.
type recordingFetcher struct {
	bodies map[string][]byte
	calls  []string
}

func (f *recordingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if body, ok := f.bodies[url]; ok {
		return body, nil
	}
	return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound}
}

type staticLocator string

func (l staticLocator) URL() string { return string(l) }

func TestNormalizeBytesShortCircuits(t *testing.T) {
	fetcher := &recordingFetcher{}
	n := NewNormalizer(fetcher)

	want := []byte("\x89PNG\r\n\x1a\nbody")
	got, err := n.Normalize(context.Background(), FromBytes(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("expected no fetches, got %v", fetcher.calls)
	}
}

func TestNormalizeURLHandle(t *testing.T) {
	fetcher := &recordingFetcher{bodies: map[string][]byte{"https://cdn.test/out.png": []byte("handle-bytes")}}
	n := NewNormalizer(fetcher)

	got, err := n.Normalize(context.Background(), FromLocator(staticLocator("https://cdn.test/out.png")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "handle-bytes" {
		t.Errorf("Normalize() = %q", got)
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("expected 1 fetch, got %d", len(fetcher.calls))
	}
}

func TestNormalizeURLStringFetchesOnce(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte("remote-image"))
	}))
	defer server.Close()

	n := NewNormalizer(NewHTTPFetcher(server.Client()))
	got, err := n.Normalize(context.Background(), FromURL(server.URL+"/out.png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "remote-image" {
		t.Errorf("Normalize() = %q, want remote-image", got)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", hits)
	}
}

func TestNormalizeFetchFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer server.Close()

	n := NewNormalizer(NewHTTPFetcher(server.Client()))
	got, err := n.Normalize(context.Background(), FromURL(server.URL))
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if got != nil {
		t.Errorf("expected nil bytes, got %q", got)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", fetchErr.StatusCode)
	}
	if errors.Is(err, ErrNoBytes) {
		t.Error("fetch failure must not be reported as ErrNoBytes")
	}
}

func TestNormalizeEmptySequence(t *testing.T) {
	n := NewNormalizer(&recordingFetcher{})
	got, err := n.Normalize(context.Background(), FromSequence())
	if !errors.Is(err, ErrNoBytes) {
		t.Fatalf("expected ErrNoBytes, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil bytes, got %q", got)
	}
}

func TestNormalizeSequenceUsesFirstElementOnly(t *testing.T) {
	fetcher := &recordingFetcher{bodies: map[string][]byte{"https://cdn.test/2.png": []byte("second")}}
	n := NewNormalizer(fetcher)

	seq := FromSequence(
		FromBytes([]byte("first")),
		FromURL("https://cdn.test/2.png"),
		FromLocator(staticLocator("https://cdn.test/2.png")),
	)
	got, err := n.Normalize(context.Background(), seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("Normalize() = %q, want first", got)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("later elements must not be fetched, got %v", fetcher.calls)
	}
}

func TestNormalizeSequenceUnrecognizedFirstElement(t *testing.T) {
	fetcher := &recordingFetcher{bodies: map[string][]byte{"https://cdn.test/ok.png": []byte("ok")}}
	n := NewNormalizer(fetcher)

	tests := []struct {
		name  string
		first Result
	}{
		{"unknown", Result{}},
		{"nested sequence", FromSequence(FromBytes([]byte("nested")))},
		{"empty url", FromURL("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), FromSequence(tt.first, FromURL("https://cdn.test/ok.png")))
			if !errors.Is(err, ErrNoBytes) {
				t.Errorf("expected ErrNoBytes, got %v", err)
			}
		})
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("no element after the first may be tried, got %v", fetcher.calls)
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	fetcher := &recordingFetcher{bodies: map[string][]byte{"https://cdn.test/empty": {}}}
	n := NewNormalizer(fetcher)

	got, err := n.Normalize(context.Background(), FromBytes([]byte{}))
	if err != nil || len(got) != 0 {
		t.Errorf("empty stream: got %q, %v; want empty bytes and no error", got, err)
	}
	got, err = n.Normalize(context.Background(), FromURL("https://cdn.test/empty"))
	if err != nil || len(got) != 0 {
		t.Errorf("empty body: got %q, %v; want empty bytes and no error", got, err)
	}
	if _, err := n.Normalize(context.Background(), Result{}); !errors.Is(err, ErrNoBytes) {
		t.Errorf("unknown: expected ErrNoBytes, got %v", err)
	}
}

func TestHTTPFetcherContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewHTTPFetcher(server.Client()).Fetch(ctx, server.URL); err == nil {
		t.Error("expected error for canceled context")
	}
}
