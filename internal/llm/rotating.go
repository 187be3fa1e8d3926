package llm

import (
	"context"

	"policychat/internal/config"
	"policychat/internal/logger"
)

// RotatingCompleter re-issues a call once with the next credential when the
// first attempt fails on quota. Any other failure is returned as is.
type RotatingCompleter struct {
	next Completer
	keys *KeyRing
	log  *logger.Logger
}

// NewRotatingCompleter wraps next; next must read keys.Current() per call.
func NewRotatingCompleter(next Completer, keys *KeyRing, log *logger.Logger) *RotatingCompleter {
	return &RotatingCompleter{next: next, keys: keys, log: log}
}

func (r *RotatingCompleter) canRotate(err error) bool {
	return IsQuotaError(err) && r.keys != nil && r.keys.Len() > 1
}

// Complete implements Completer.
func (r *RotatingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := r.next.Complete(ctx, prompt)
	if err == nil || !r.canRotate(err) {
		return out, err
	}
	r.keys.Rotate()
	r.log.Warn("Quota error, retrying with next API key", "error", err)
	return r.next.Complete(ctx, prompt)
}

// Stream implements Completer. A retry only happens when nothing was
// delivered yet; otherwise the caller would see duplicated text.
func (r *RotatingCompleter) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error {
	emitted := false
	track := func(chunk string) error {
		emitted = true
		return onChunk(chunk)
	}
	err := r.next.Stream(ctx, prompt, track)
	if err == nil || emitted || !r.canRotate(err) {
		return err
	}
	r.keys.Rotate()
	r.log.Warn("Quota error on stream, retrying with next API key", "error", err)
	return r.next.Stream(ctx, prompt, onChunk)
}

// RotatingEmbedder is the Embedder counterpart of RotatingCompleter.
type RotatingEmbedder struct {
	next Embedder
	keys *KeyRing
	log  *logger.Logger
}

// NewRotatingEmbedder wraps next.
func NewRotatingEmbedder(next Embedder, keys *KeyRing, log *logger.Logger) *RotatingEmbedder {
	return &RotatingEmbedder{next: next, keys: keys, log: log}
}

// Embed implements Embedder.
func (r *RotatingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.next.Embed(ctx, text)
	if err == nil || !IsQuotaError(err) || r.keys == nil || r.keys.Len() < 2 {
		return vec, err
	}
	r.keys.Rotate()
	r.log.Warn("Quota error on embedding, retrying with next API key", "error", err)
	return r.next.Embed(ctx, text)
}

// EmbedBatch implements Embedder.
func (r *RotatingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.next.EmbedBatch(ctx, texts)
	if err == nil || !IsQuotaError(err) || r.keys == nil || r.keys.Len() < 2 {
		return vecs, err
	}
	r.keys.Rotate()
	r.log.Warn("Quota error on embedding batch, retrying with next API key", "error", err)
	return r.next.EmbedBatch(ctx, texts)
}

// NewFromConfig builds the configured client wrapped with credential rotation.
func NewFromConfig(cfg *config.Config, log *logger.Logger) (Completer, Embedder) {
	keys := NewKeyRing(cfg.LLM.APIKeys...)

	var completer Completer
	var embedder Embedder
	switch cfg.LLM.Provider {
	case "sdk":
		c := NewSDKClient(cfg.LLM, cfg.Embedding, keys, log)
		completer, embedder = c, c
	default:
		c := NewHTTPClient(cfg.LLM, cfg.Embedding, keys, log)
		completer, embedder = c, c
	}

	log.Info("LLM client ready", "provider", cfg.LLM.Provider, "keys", keys.Len())
	return NewRotatingCompleter(completer, keys, log), NewRotatingEmbedder(embedder, keys, log)
}
