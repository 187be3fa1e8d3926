package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Completer is the LLM completion contract the pipeline depends on.
// The concrete vendor is swappable behind it.
type Completer interface {
	// Complete returns the whole answer for prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Stream delivers answer text chunks to onChunk as they arrive.
	// Returning an error from onChunk aborts the stream.
	Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error
}

// Embedder maps text to vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	// Regular content (always present in streaming)
	Content string

	// Thinking/reasoning content (provider-specific, e.g., DeepSeek)
	ThinkingContent string

	// Role (assistant, user, system)
	Role string

	// Whether this is the final chunk
	Done bool

	// Provider-specific metadata
	Metadata map[string]interface{}
}

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("LLM API is not enabled (missing API key)")

// APIError is a non-2xx answer from an upstream model API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

var quotaMarkers = []string{
	"quota",
	"rate limit",
	"rate_limit",
	"resource_exhausted",
	"too many requests",
	"insufficient_quota",
}

// IsQuotaError reports whether err is a quota or rate-limit rejection,
// the only failure that warrants switching credentials.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return containsQuotaMarker(apiErr.Body)
	}
	return containsQuotaMarker(err.Error())
}

func containsQuotaMarker(s string) bool {
	s = strings.ToLower(s)
	for _, m := range quotaMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
