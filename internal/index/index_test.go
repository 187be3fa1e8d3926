package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"policychat/internal/logger"
	"policychat/internal/model"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"전세", "월세", "청년", "신혼"}

// keywordEmbedder counts vocabulary hits, giving stable, inspectable vectors.
type keywordEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	err        error
}

func (k *keywordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(text, w))
	}
	return v
}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	k.embedCalls++
	k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	return k.vector(text), nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.batchCalls++
	k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func samplePolicies() []model.PolicyRecord {
	return []model.PolicyRecord{
		{ID: 1, Title: "청년전세임대", Content: "청년 대상 전세 지원"},
		{ID: 2, Title: "청년월세 특별지원", Content: "청년 월세 지원"},
		{ID: 3, Title: "신혼부부 전세임대", Content: "신혼 가구 전세"},
		{ID: 4, Title: "주거급여", Content: "저소득 가구 지원"},
	}
}

func TestFileIndex_SearchOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	idx, err := NewFileIndex(t.TempDir(), &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, samplePolicies()))

	for _, k := range []int{1, 2, 3, 10} {
		results, err := idx.Search(ctx, "청년 전세", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), k)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].SimilarityScore, results[i].SimilarityScore)
		}
	}

	results, err := idx.Search(ctx, "청년 전세", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "청년전세임대", results[0].Title)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 0.2)
}

func TestFileIndex_ZeroK(t *testing.T) {
	idx, err := NewFileIndex("", &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), samplePolicies()))

	results, err := idx.Search(context.Background(), "청년", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFileIndex_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewFileIndex(dir, &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, samplePolicies()))

	reopened, err := NewFileIndex(dir, &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	results, err := reopened.Search(ctx, "신혼 전세", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(3), results[0].ID)
}

func TestFileIndex_ClearRemovesSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewFileIndex(dir, &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, samplePolicies()))
	require.NoError(t, idx.Clear(ctx))

	n, _ := idx.Count(ctx)
	assert.Equal(t, 0, n)

	reopened, err := NewFileIndex(dir, &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	n, _ = reopened.Count(ctx)
	assert.Equal(t, 0, n)
}

func TestFileIndex_EmbeddingFailurePropagates(t *testing.T) {
	emb := &keywordEmbedder{err: errors.New("embedding service down")}
	idx, err := NewFileIndex("", emb, logger.Nop())
	require.NoError(t, err)

	assert.Error(t, idx.Add(context.Background(), samplePolicies()))
	_, err = idx.Search(context.Background(), "청년", 3)
	assert.Error(t, err)

	assert.Empty(t, SearchOrEmpty(context.Background(), idx, "청년", 3, logger.Nop()))
	assert.NotNil(t, SearchOrEmpty(context.Background(), idx, "청년", 3, logger.Nop()))
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
}

type staticSource struct {
	policies []model.PolicyRecord
	calls    int
	block    chan struct{}
	mu       sync.Mutex
}

func (s *staticSource) ListActivePolicies(ctx context.Context) ([]model.PolicyRecord, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.policies, nil
}

func TestSyncer_RebuildsOnlyOnMismatch(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	idx, err := NewFileIndex("", emb, logger.Nop())
	require.NoError(t, err)
	src := &staticSource{policies: samplePolicies()}
	s := NewSyncer(idx, src, logger.Nop())

	res, err := s.Sync(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, 4, res.Indexed)
	assert.Equal(t, 4, res.SourceSize)

	res, err = s.Sync(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Rebuilt)
	assert.Equal(t, 1, emb.batchCalls)

	src.policies = src.policies[:2]
	res, err = s.Sync(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, 2, res.Indexed)

	res, err = s.Sync(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
}

func TestSyncer_FailedRebuildLeavesIndexEmptyUntilNextSync(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	idx, err := NewFileIndex("", emb, logger.Nop())
	require.NoError(t, err)
	s := NewSyncer(idx, &staticSource{policies: samplePolicies()}, logger.Nop())

	_, err = s.Sync(ctx, false)
	require.NoError(t, err)

	emb.err = errors.New("embedding quota exceeded")
	res, err := s.Sync(ctx, true)
	require.Error(t, err)
	assert.False(t, res.Rebuilt)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	emb.err = nil
	res, err = s.Sync(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, 4, res.Indexed)
}

func TestSyncer_ConcurrentSyncsShareOneRebuild(t *testing.T) {
	idx, err := NewFileIndex("", &keywordEmbedder{}, logger.Nop())
	require.NoError(t, err)
	src := &staticSource{policies: samplePolicies(), block: make(chan struct{})}
	s := NewSyncer(idx, src, logger.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Sync(context.Background(), false)
		}()
	}
	// let the goroutines pile up on the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.Equal(t, 1, src.calls)
	n, _ := idx.Count(context.Background())
	assert.Equal(t, 4, n)
}

func TestCachedEmbedder_FallsThroughWhenRedisIsDown(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := &keywordEmbedder{}
	c := NewCachedEmbedder(inner, rdb, "emb", time.Minute, logger.Nop())

	vec, err := c.Embed(context.Background(), "청년 전세")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 1, 0}, vec)
	assert.Equal(t, 1, inner.embedCalls)

	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.batchCalls)
}
