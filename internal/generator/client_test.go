package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noble-language-orchestrator/internal/apperrors"
)

func TestGenerateReturnsThePayloadOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Service-Token"))
		assert.Equal(t, "lesson", r.Header.Get("X-Use-Case"))
		_ = json.NewEncoder(w).Encode(Response{Payload: json.RawMessage(`{"ok":true}`)})
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "test-token" })
	resp, err := c.Generate(context.Background(), Request{UseCase: UseCaseLesson})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Payload))
}

func TestGenerateRetriesATransientFailureThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Payload: json.RawMessage(`{"ok":true}`)})
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok" }, WithRetries(1))
	resp, err := c.Generate(context.Background(), Request{UseCase: UseCaseQuiz})

	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateDoesNotRetryANonRetriableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok" }, WithRetries(2))
	_, err := c.Generate(context.Background(), Request{UseCase: UseCasePlan})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindGenerationInvalid))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a schema-shape rejection should never be retried")
}

func TestGenerateExhaustsRetriesAndReturnsTheLastError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok" }, WithRetries(2))
	_, err := c.Generate(context.Background(), Request{UseCase: UseCaseAIGrading})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransient))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "one initial attempt plus two retries")
}

func TestGenerateMapsAGatewayTimeoutStatusToTimeoutKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok" }, WithRetries(0))
	_, err := c.Generate(context.Background(), Request{UseCase: UseCaseReassessment})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTimeout))
}

func TestGenerateMapsAContextDeadlineToTimeoutKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(Response{Payload: json.RawMessage(`{}`)})
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok" }, WithTimeouts(5*time.Millisecond, 5*time.Millisecond), WithRetries(0))
	_, err := c.Generate(context.Background(), Request{UseCase: UseCaseAssessment})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTimeout))
}

func TestGenerateRejectsAnEmptyPayloadAsGenerationInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Payload: nil})
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok" }, WithRetries(0))
	_, err := c.Generate(context.Background(), Request{UseCase: UseCaseLesson})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindGenerationInvalid))
}

func TestDecodePayloadUnmarshalsIntoTheGivenType(t *testing.T) {
	type lessonShape struct {
		Objective string `json:"objective"`
	}
	resp := &Response{Payload: json.RawMessage(`{"objective":"greetings"}`)}

	var out lessonShape
	err := DecodePayload(resp, &out)

	require.NoError(t, err)
	assert.Equal(t, "greetings", out.Objective)
}

func TestDecodePayloadWrapsAShapeMismatchAsGenerationInvalid(t *testing.T) {
	resp := &Response{Payload: json.RawMessage(`"not an object"`)}

	var out struct {
		Objective string `json:"objective"`
	}
	err := DecodePayload(resp, &out)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindGenerationInvalid))
}
