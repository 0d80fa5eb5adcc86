package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

// geminiWireRequest mirrors the generateContent request body.
type geminiWireRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
}

func newTestGeminiInterpreter(t *testing.T, server *httptest.Server) *GeminiInterpreter {
	t.Helper()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  server.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: server.URL + "/"},
	})
	if err != nil {
		t.Fatalf("genai.NewClient: %v", err)
	}
	return NewGeminiInterpreter(client, "")
}

func TestGeminiInterpret(t *testing.T) {
	img := newTestImage(t)
	const instruction = "Add two friends laughing beside the subject."

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/models/"+ModelGemini25Flash+":generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req geminiWireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("expected one content with two parts, got %+v", req.Contents)
			return
		}
		parts := req.Contents[0].Parts
		if parts[0].Text != "Story: I miss my friends" || parts[0].InlineData != nil {
			t.Errorf("first part should be the prompt text, got %+v", parts[0])
		}
		if parts[1].InlineData == nil {
			t.Error("second part should carry inline image data")
			return
		}
		if parts[1].InlineData.MIMEType != "image/png" {
			t.Errorf("inline MIME type = %q, want image/png", parts[1].InlineData.MIMEType)
		}
		data, err := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
		if err != nil || string(data) != string(img.Data) {
			t.Errorf("inline data mismatch: %q, %v", data, err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"` + instruction + `"}]}}]}`))
	}))
	defer server.Close()

	got, err := newTestGeminiInterpreter(t, server).Interpret(context.Background(), "Story: I miss my friends", img)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got != instruction {
		t.Errorf("Interpret() = %q, want %q", got, instruction)
	}
}

func TestGeminiInterpretNoCandidates(t *testing.T) {
	img := newTestImage(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	_, err := newTestGeminiInterpreter(t, server).Interpret(context.Background(), "prompt", img)
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestGeminiInterpretHTTPError(t *testing.T) {
	img := newTestImage(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	if _, err := newTestGeminiInterpreter(t, server).Interpret(context.Background(), "prompt", img); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
