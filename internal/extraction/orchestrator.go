package extraction

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"medassess/internal/ports"
)

// minImageBase64Len rejects trivially short payloads before any network
// call; a real document scan is always far larger.
const minImageBase64Len = 100

// RetryPolicy parameterizes the bounded retry loop so it can be unit-tested
// with a fake sleep and a scripted sequence of failures.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is three attempts with 1s/2s/4s exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// delay returns the pause before retry number n (1-based); past the end of
// the schedule the last entry repeats.
func (p RetryPolicy) delay(n int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if n > len(p.Backoff) {
		n = len(p.Backoff)
	}
	return p.Backoff[n-1]
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Orchestrator builds task-specific prompts and invokes the reasoning
// service with bounded, failure-classified retries. It is stateless and
// safe to use concurrently for distinct documents.
type Orchestrator struct {
	client   ports.ReasoningClient
	builders *BuilderRegistry
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewOrchestrator wires the reasoning client and retry policy.
func NewOrchestrator(client ports.ReasoningClient, policy RetryPolicy, logger *slog.Logger) *Orchestrator {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Orchestrator{
		client:   client,
		builders: NewBuilderRegistry(),
		policy:   policy,
		logger:   logger,
	}
}

// ExtractImage runs OCR-and-classify extraction for a base64 image payload.
// Line-wrapped (MIME-style) payloads are accepted; all whitespace is stripped
// before validation.
func (o *Orchestrator) ExtractImage(ctx context.Context, documentID, imageBase64, imageMIME string, refs ReferenceSet) (string, error) {
	payload := stripWhitespace(imageBase64)
	if len(payload) < minImageBase64Len {
		return "", NewFailure(FailureMalformedInput, "image payload too short to be a document scan", nil)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", NewFailure(FailureMalformedInput, "image payload is not valid base64", err)
	}

	builder, err := o.builders.Resolve(InputImage)
	if err != nil {
		return "", NewFailure(FailureExtraction, "resolve prompt builder", err)
	}

	req := Request{DocumentID: documentID, ImageBase64: payload, ImageMIME: imageMIME, Refs: refs}
	return o.invoke(ctx, documentID, ports.ReasoningRequest{
		Prompt:      builder.Build(req),
		ImageBase64: payload,
		ImageMIME:   imageMIME,
	})
}

// ExtractText runs differential-diagnosis extraction for free-form text
// such as questionnaire answers. HTML submissions are reduced to plain
// text first.
func (o *Orchestrator) ExtractText(ctx context.Context, documentID, text string, refs ReferenceSet) (string, error) {
	if LooksLikeHTML(text) {
		text = HTMLToText(text)
	}
	if strings.TrimSpace(text) == "" {
		return "", NewFailure(FailureMalformedInput, "empty text submission", nil)
	}

	builder, err := o.builders.Resolve(InputText)
	if err != nil {
		return "", NewFailure(FailureExtraction, "resolve prompt builder", err)
	}

	req := Request{DocumentID: documentID, Text: text, Refs: refs}
	return o.invoke(ctx, documentID, ports.ReasoningRequest{Prompt: builder.Build(req)})
}

func (o *Orchestrator) invoke(ctx context.Context, documentID string, req ports.ReasoningRequest) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := o.policy.sleep(ctx, o.policy.delay(attempt-1)); err != nil {
				return "", NewFailure(FailureExtraction, "extraction canceled", err)
			}
		}

		raw, err := o.client.Complete(ctx, req)
		if err == nil {
			return raw, nil
		}

		kind := KindOf(err)
		o.debug("reasoning attempt failed",
			"document", documentID, "attempt", attempt, "kind", string(kind), "error", err)

		if !retriable(kind) {
			return "", err
		}
		lastErr = err
	}

	if KindOf(lastErr) == FailureUnprocessableInput {
		return "", NewFailure(FailureUnprocessableInput,
			"the service could not interpret the payload; resubmit a clearer scan or use the text-based path", lastErr)
	}
	return "", NewFailure(FailureExtraction, "reasoning service failed after all attempts", lastErr)
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}
