package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"policychat/internal/llm"
	"policychat/internal/logger"

	goredis "github.com/redis/go-redis/v9"
)

// CachedEmbedder memoizes single query embeddings in Redis. Batch calls,
// used only for index builds, go straight to the wrapped embedder.
// Redis failures never fail an embedding; they only cost a cache miss.
type CachedEmbedder struct {
	next  llm.Embedder
	rdb   *goredis.Client
	model string
	ttl   time.Duration
	log   *logger.Logger
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewCachedEmbedder wraps next with a Redis cache keyed by model and text.
func NewCachedEmbedder(next llm.Embedder, rdb *goredis.Client, model string, ttl time.Duration, log *logger.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		next:  next,
		rdb:   rdb,
		model: model,
		ttl:   ttl,
		log:   log.With("service", "EmbeddingCache"),
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// Embed implements llm.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jsonErr := json.Unmarshal(raw, &vec); jsonErr == nil && len(vec) > 0 {
			return vec, nil
		}
		c.log.Warn("Discarding corrupt cached embedding", "key", key)
	case !errors.Is(err, goredis.Nil):
		c.log.Warn("Embedding cache read failed", "error", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(vec); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn("Embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

// EmbedBatch implements llm.Embedder.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedBatch(ctx, texts)
}

var _ llm.Embedder = (*CachedEmbedder)(nil)
