package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"policychat/internal/config"
	"policychat/internal/logger"

	"github.com/sashabaranov/go-openai"
)

// SDKClient implements Completer and Embedder on top of go-openai.
// One SDK client is built lazily per credential so rotation is a map lookup.
type SDKClient struct {
	chat  config.LLMConfig
	embed config.EmbeddingConfig
	keys  *KeyRing
	log   *logger.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewSDKClient creates a go-openai backed client.
func NewSDKClient(chat config.LLMConfig, embed config.EmbeddingConfig, keys *KeyRing, log *logger.Logger) *SDKClient {
	log.Info("Initializing go-openai client", "model", chat.ChatModel, "api_base", chat.APIBase)
	return &SDKClient{
		chat:    chat,
		embed:   embed,
		keys:    keys,
		log:     log.With("service", "LLMSDKClient"),
		clients: make(map[string]*openai.Client),
	}
}

func (s *SDKClient) client() (*openai.Client, error) {
	key := s.keys.Current()
	if key == "" {
		return nil, ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[key]; ok {
		return c, nil
	}
	cfg := openai.DefaultConfig(key)
	if s.chat.APIBase != "" {
		cfg.BaseURL = s.chat.APIBase
	}
	c := openai.NewClientWithConfig(cfg)
	s.clients[key] = c
	return c, nil
}

func (s *SDKClient) chatRequest(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: s.chat.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(s.chat.ChatTemperature),
		TopP:        float32(s.chat.ChatTopP),
		MaxTokens:   s.chat.ChatMaxTokens,
	}
}

// Complete implements Completer.
func (s *SDKClient) Complete(ctx context.Context, prompt string) (string, error) {
	c, err := s.client()
	if err != nil {
		return "", err
	}
	resp, err := c.CreateChatCompletion(ctx, s.chatRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", toAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	s.log.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Completer.
func (s *SDKClient) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	req := s.chatRequest(prompt)
	req.Stream = true

	stream, err := c.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("openai chat stream failed: %w", toAPIError(err))
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read stream: %w", toAPIError(err))
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onChunk(resp.Choices[0].Delta.Content); err != nil {
			return fmt.Errorf("callback error: %w", err)
		}
	}
}

// Embed implements Embedder.
func (s *SDKClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder.
func (s *SDKClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	c, err := s.client()
	if err != nil {
		return nil, err
	}

	batchSize := s.embed.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		resp, err := c.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[i:end],
			Model:      openai.EmbeddingModel(s.embed.Model),
			Dimensions: s.embed.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for batch %d: %w", i/batchSize, toAPIError(err))
		}
		batch := make([][]float32, end-i)
		for _, d := range resp.Data {
			if d.Index < len(batch) {
				batch[d.Index] = d.Embedding
			}
		}
		out = append(out, batch...)
	}
	return out, nil
}

// toAPIError maps SDK errors onto APIError so quota detection is uniform.
func toAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}

var (
	_ Completer = (*SDKClient)(nil)
	_ Embedder  = (*SDKClient)(nil)
)
