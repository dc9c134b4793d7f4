// Package generator wraps the structured-content generation call used by
// every downstream engine (lesson builder, quiz scorer, plan updater,
// reassessment). It owns timeouts, the bounded retry policy, and
// schema-shape validation of the returned JSON; callers never see the raw
// HTTP transport.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"noble-language-orchestrator/internal/apperrors"
)

// Client calls the external structured-generation endpoint. The endpoint
// itself is out of scope; this package only owns the contract around it.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	getToken         func() string
	timeoutInitial   time.Duration
	timeoutRetry     time.Duration
	maxAttempts      int
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTimeouts overrides the initial and retry timeouts.
func WithTimeouts(initial, retry time.Duration) Option {
	return func(c *Client) {
		c.timeoutInitial = initial
		c.timeoutRetry = retry
	}
}

// WithRetries overrides the number of retry attempts after the first call.
func WithRetries(retries int) Option {
	return func(c *Client) { c.maxAttempts = retries + 1 }
}

// NewClient builds a Client against baseURL, using tokenProvider to source
// the service token on every call.
func NewClient(baseURL string, tokenProvider func() string, opts ...Option) *Client {
	c := &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{},
		getToken:       tokenProvider,
		timeoutInitial: 60 * time.Second,
		timeoutRetry:   45 * time.Second,
		maxAttempts:    2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseCase names the prompt family being invoked, used for logging and
// metrics labelling by callers.
type UseCase string

const (
	UseCaseAssessment   UseCase = "assessment"
	UseCaseLesson       UseCase = "lesson"
	UseCaseQuiz         UseCase = "quiz"
	UseCasePlan         UseCase = "plan"
	UseCaseAIGrading    UseCase = "ai_grading"
	UseCaseReassessment UseCase = "reassessment"
)

// Request is the envelope sent to the generation endpoint.
type Request struct {
	UseCase      UseCase                `json:"use_case"`
	SystemPrompt string                 `json:"system_prompt"`
	UserPrompt   string                 `json:"user_prompt"`
	Schema       map[string]interface{} `json:"schema"`
	Temperature  float64                `json:"temperature"`
	JSONMode     bool                   `json:"json_mode"`
}

// Response is the raw envelope returned by the generation endpoint; Payload
// holds the use-case-specific structured document as opaque JSON for the
// caller to unmarshal into its own type.
type Response struct {
	Payload    json.RawMessage `json:"payload"`
	TokensUsed int             `json:"tokens_used"`
	LatencyMs  int             `json:"latency_ms"`
}

// Generate invokes the generation endpoint for req, retrying once (or
// config.GeneratorRetries times) on a Timeout/Transient failure, with a
// shorter timeout on the retry attempt. A schema-shape validation failure
// from the endpoint is reported as GenerationInvalid and is never retried.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		timeout := c.timeoutInitial
		if attempt > 0 {
			timeout = c.timeoutRetry
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, lastErr = c.doCall(attemptCtx, req)
		cancel()

		if lastErr == nil {
			return resp, nil
		}
		if !apperrors.Retriable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) doCall(ctx context.Context, req Request) (*Response, error) {
	url := fmt.Sprintf("%s/generate", c.baseURL)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Validation("failed to marshal generate request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Validation("failed to build generate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Service-Token", c.getToken())
	httpReq.Header.Set("X-Use-Case", string(req.UseCase))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.Timeout("generate call timed out", err)
		}
		return nil, apperrors.Transient("generate call failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.Transient("failed to read generate response", err)
	}

	if httpResp.StatusCode == http.StatusRequestTimeout || httpResp.StatusCode == http.StatusGatewayTimeout {
		return nil, apperrors.Timeout("generator endpoint reported a timeout", fmt.Errorf("status %d", httpResp.StatusCode))
	}
	if httpResp.StatusCode >= 500 {
		return nil, apperrors.Transient("generator endpoint returned a server error", fmt.Errorf("status %d: %s", httpResp.StatusCode, respBody))
	}
	if httpResp.StatusCode == http.StatusUnprocessableEntity {
		return nil, apperrors.GenerationInvalid("generator rejected the request shape", fmt.Errorf("status %d: %s", httpResp.StatusCode, respBody))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, apperrors.Validation("generator endpoint returned an unexpected status", fmt.Errorf("status %d: %s", httpResp.StatusCode, respBody))
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperrors.GenerationInvalid("generate response did not match the envelope shape", err)
	}
	if len(result.Payload) == 0 {
		return nil, apperrors.GenerationInvalid("generate response carried an empty payload", nil)
	}

	return &result, nil
}

// DecodePayload unmarshals resp's payload into out, wrapping any failure as
// GenerationInvalid so callers can treat it uniformly with transport-level
// schema failures.
func DecodePayload(resp *Response, out interface{}) error {
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return apperrors.GenerationInvalid("generate payload did not match the expected schema", err)
	}
	return nil
}
