package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"policychat/internal/config"
	"policychat/internal/logger"

	"golang.org/x/time/rate"
)

// HTTPClient talks to any OpenAI-compatible REST API.
type HTTPClient struct {
	chat       config.LLMConfig
	embed      config.EmbeddingConfig
	keys       *KeyRing
	log        *logger.Logger
	httpClient *http.Client
	parseChunk chunkParser
	limiter    *rate.Limiter
	chatExtra  map[string]any
	embedExtra map[string]any
}

// NewHTTPClient creates a new OpenAI-compatible client with auto-detection of provider
func NewHTTPClient(chat config.LLMConfig, embed config.EmbeddingConfig, keys *KeyRing, log *logger.Logger) *HTTPClient {
	log = log.With("service", "LLMHTTPClient")

	parser, format := parserFor(chat.APIBase)
	log.Info("Chat stream format selected", "format", format, "api_base", chat.APIBase)

	limit := rate.Inf
	if embed.RequestsPerSecond > 0 {
		limit = rate.Limit(embed.RequestsPerSecond)
	}
	if embed.BatchSize <= 0 {
		embed.BatchSize = 100
	}

	return &HTTPClient{
		chat:       chat,
		embed:      embed,
		keys:       keys,
		log:        log,
		parseChunk: parser,
		limiter:    rate.NewLimiter(limit, 1),
		chatExtra:  parseExtraBody(log, "OPENAI_CHAT_EXTRA_BODY", chat.ChatExtraBody),
		embedExtra: parseExtraBody(log, "OPENAI_EMBEDDING_EXTRA_BODY", embed.ExtraBody),
		httpClient: &http.Client{
			Timeout: time.Duration(chat.Timeout) * time.Second,
		},
	}
}

func parseExtraBody(log *logger.Logger, name, raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var extra map[string]any
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		log.Warn("Failed to parse extra body", "env", name, "error", err)
		return nil
	}
	return extra
}

// IsEnabled returns whether the client is configured and ready
func (c *HTTPClient) IsEnabled() bool {
	return c.keys != nil && c.keys.Len() > 0
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []ChatMessage  `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	TopP        float64        `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	ExtraBody   map[string]any `json:"extra_body,omitempty"`
}

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbeddingRequest represents an embedding request
type EmbeddingRequest struct {
	Model          string         `json:"model"`
	Input          []string       `json:"input"`
	Dimensions     int            `json:"dimensions,omitempty"`
	EncodingFormat string         `json:"encoding_format,omitempty"`
	ExtraBody      map[string]any `json:"extra_body,omitempty"`
}

// EmbeddingResponse represents the embedding API response
type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete implements Completer with a single user message.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Completer; reasoning chunks are not forwarded.
func (c *HTTPClient) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error {
	return c.ChatCompletionStream(ctx, ChatCompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	}, func(chunk *StreamChunk) error {
		if chunk.Content == "" {
			return nil
		}
		return onChunk(chunk.Content)
	})
}

func (c *HTTPClient) applyDefaults(req *ChatCompletionRequest) {
	if req.Model == "" {
		req.Model = c.chat.ChatModel
	}
	if req.Temperature == 0 && c.chat.ChatTemperature > 0 {
		req.Temperature = c.chat.ChatTemperature
	}
	if req.TopP == 0 && c.chat.ChatTopP > 0 {
		req.TopP = c.chat.ChatTopP
	}
	if req.MaxTokens == 0 && c.chat.ChatMaxTokens > 0 {
		req.MaxTokens = c.chat.ChatMaxTokens
	}
	if req.ExtraBody == nil && c.chatExtra != nil {
		req.ExtraBody = c.chatExtra
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chat.APIBase+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.keys.Current())
	return httpReq, nil
}

// ChatCompletion performs a chat completion request
func (c *HTTPClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.IsEnabled() {
		return nil, ErrDisabled
	}
	c.applyDefaults(&req)

	httpReq, err := c.newRequest(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.log.Debug("Chat completion finished",
		"model", result.Model,
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
	)
	return &result, nil
}

// ChatCompletionStream performs a streaming chat completion request
func (c *HTTPClient) ChatCompletionStream(ctx context.Context, req ChatCompletionRequest, callback func(chunk *StreamChunk) error) error {
	if !c.IsEnabled() {
		return ErrDisabled
	}
	c.applyDefaults(&req)
	req.Stream = true

	httpReq, err := c.newRequest(ctx, "/chat/completions", req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		// SSE format: "data: {...}"
		data := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		chunk, err := c.parseChunk(data)
		if err != nil {
			c.log.Warn("Failed to parse stream chunk", "error", err)
			continue
		}

		if err := callback(chunk); err != nil {
			return fmt.Errorf("callback error: %w", err)
		}
	}

	return nil
}

// Embed creates a single embedding
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch creates embeddings for the given texts, batching and pacing requests
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.IsEnabled() {
		return nil, ErrDisabled
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	batchSize := c.embed.BatchSize

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}

		embeddings, err := c.createEmbeddingBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for batch %d: %w", i/batchSize, err)
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

// createEmbeddingBatch creates embeddings for a single batch
func (c *HTTPClient) createEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := EmbeddingRequest{
		Model:          c.embed.Model,
		Input:          texts,
		Dimensions:     c.embed.Dimensions,
		EncodingFormat: "float",
		ExtraBody:      c.embedExtra,
	}

	httpReq, err := c.newRequest(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result EmbeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Extract embeddings in order
	embeddings := make([][]float32, len(texts))
	for _, item := range result.Data {
		if item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}

	c.log.Debug("Created embeddings", "count", len(embeddings), "model", result.Model, "tokens", result.Usage.TotalTokens)
	return embeddings, nil
}

var (
	_ Completer = (*HTTPClient)(nil)
	_ Embedder  = (*HTTPClient)(nil)
)
