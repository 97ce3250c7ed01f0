package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"medassess/internal/config"
	"medassess/internal/extraction"
	"medassess/internal/ports"
)

// Client talks to an OpenAI-compatible chat-completions endpoint and maps
// its failure modes onto the extraction failure taxonomy.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.ReasoningClient = (*Client)(nil)

// NewClient builds a reasoning client from configuration.
func NewClient(cfg config.ReasoningConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends one prompt (optionally with an embedded image) and returns
// the assistant's raw text.
func (c *Client) Complete(ctx context.Context, req ports.ReasoningRequest) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", extraction.NewFailure(extraction.FailureExtraction, "reasoning client misconfigured", nil)
	}

	var content any = req.Prompt
	if req.ImageBase64 != "" {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		content = []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageRef{
				URL: fmt.Sprintf("data:%s;base64,%s", mime, req.ImageBase64),
			}},
		}
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", extraction.NewFailure(extraction.FailureExtraction, "marshal reasoning payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", extraction.NewFailure(extraction.FailureExtraction, "new request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", extraction.NewFailure(extraction.FailureExtraction, "reasoning request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", extraction.NewFailure(extraction.FailureExtraction, "read reasoning response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", classifyHTTPFailure(resp.StatusCode, payload)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", extraction.NewFailure(extraction.FailureExtraction, "decode reasoning response", err)
	}
	if parsed.Error != nil {
		return "", classifyServiceError(parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", extraction.NewFailure(extraction.FailureExtraction, "reasoning response carries no choices", nil)
	}

	return parsed.Choices[0].Message.Content, nil
}

// classifyHTTPFailure distinguishes terminal quota/rate failures and
// image-processing refusals from generic transport errors.
func classifyHTTPFailure(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusTooManyRequests:
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return extraction.NewFailure(extraction.FailureQuotaExhausted, "service quota exhausted", nil)
		}
		return extraction.NewFailure(extraction.FailureRateLimited, "service rate limit reached", nil)
	case status == http.StatusPaymentRequired:
		return extraction.NewFailure(extraction.FailureQuotaExhausted, "billing required", nil)
	case (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) &&
		(strings.Contains(lower, "image") || strings.Contains(lower, "vision")):
		return extraction.NewFailure(extraction.FailureUnprocessableInput, "service refused to interpret the image", nil)
	}
	return extraction.NewFailure(extraction.FailureExtraction,
		fmt.Sprintf("reasoning service returned status %d: %s", status, truncate(message, 256)), nil)
}

func classifyServiceError(code, message string) error {
	lower := strings.ToLower(code + " " + message)
	switch {
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		return extraction.NewFailure(extraction.FailureQuotaExhausted, "service quota exhausted", nil)
	case strings.Contains(lower, "rate"):
		return extraction.NewFailure(extraction.FailureRateLimited, "service rate limit reached", nil)
	case strings.Contains(lower, "image") || strings.Contains(lower, "vision"):
		return extraction.NewFailure(extraction.FailureUnprocessableInput, "service refused to interpret the image", nil)
	}
	return extraction.NewFailure(extraction.FailureExtraction, truncate(message, 256), nil)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
