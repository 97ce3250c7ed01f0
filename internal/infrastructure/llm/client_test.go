package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medassess/internal/config"
	"medassess/internal/extraction"
	"medassess/internal/ports"
)

func testClient(endpoint string) *Client {
	return NewClient(config.ReasoningConfig{
		Endpoint: endpoint,
		Model:    "gpt-4o",
		APIKey:   "test-key",
	})
}

func TestCompleteTextRequest(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"articles\":[]}"}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	raw, err := client.Complete(context.Background(), ports.ReasoningRequest{Prompt: "analyze this"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if raw != `{"articles":[]}` {
		t.Fatalf("unexpected content: %s", raw)
	}
	if authHeader != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %s", authHeader)
	}
	if captured["model"] != "gpt-4o" {
		t.Fatalf("unexpected model: %v", captured["model"])
	}
	format, ok := captured["response_format"].(map[string]any)
	if !ok || format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", captured["response_format"])
	}
}

func TestCompleteImageRequestEmbedsDataURL(t *testing.T) {
	t.Parallel()

	var rawBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Complete(context.Background(), ports.ReasoningRequest{
		Prompt:      "ocr this",
		ImageBase64: "QUJDRA==",
		ImageMIME:   "image/png",
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	body := string(rawBody)
	if !strings.Contains(body, "data:image/png;base64,QUJDRA==") {
		t.Fatalf("image data URL missing from request: %s", body)
	}
	if !strings.Contains(body, `"type":"image_url"`) {
		t.Fatalf("image content part missing from request: %s", body)
	}
}

func TestCompleteClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   extraction.FailureKind
	}{
		{"plain rate limit", http.StatusTooManyRequests, "slow down", extraction.FailureRateLimited},
		{"quota behind 429", http.StatusTooManyRequests, "you exceeded your current quota", extraction.FailureQuotaExhausted},
		{"billing required", http.StatusPaymentRequired, "payment required", extraction.FailureQuotaExhausted},
		{"image refusal", http.StatusBadRequest, "invalid image payload", extraction.FailureUnprocessableInput},
		{"generic bad request", http.StatusBadRequest, "missing field", extraction.FailureExtraction},
		{"server error", http.StatusInternalServerError, "boom", extraction.FailureExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := testClient(server.URL)
			_, err := client.Complete(context.Background(), ports.ReasoningRequest{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := extraction.KindOf(err); got != tt.want {
				t.Fatalf("expected kind %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestCompleteClassifiesErrorObject(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached for requests","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Complete(context.Background(), ports.ReasoningRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := extraction.KindOf(err); got != extraction.FailureRateLimited {
		t.Fatalf("expected rate-limited, got %s", got)
	}
}

func TestCompleteMisconfiguredClient(t *testing.T) {
	t.Parallel()

	client := NewClient(config.ReasoningConfig{})
	_, err := client.Complete(context.Background(), ports.ReasoningRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error for missing configuration")
	}
}
