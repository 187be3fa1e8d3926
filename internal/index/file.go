package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/pgvector/pgvector-go"
)

const latestPointer = "latest"

// FileIndex is an exact cosine index held in memory and persisted as a
// vector file plus a metadata file, located through a "latest" pointer.
// Searches are safe concurrently; a rebuild racing a search may return a
// partial result.
type FileIndex struct {
	embedder llm.Embedder
	dir      string
	log      *logger.Logger

	mu      sync.RWMutex
	vectors [][]float32
	records []model.PolicyRecord
}

// NewFileIndex opens the index in dir, loading the latest snapshot if any.
func NewFileIndex(dir string, embedder llm.Embedder, log *logger.Logger) (*FileIndex, error) {
	idx := &FileIndex{
		embedder: embedder,
		dir:      dir,
		log:      log.With("service", "FileIndex"),
	}
	if dir == "" {
		return idx, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add implements Index.
func (f *FileIndex) Add(ctx context.Context, records []model.PolicyRecord) error {
	if len(records) == 0 {
		return nil
	}
	vecs, err := f.embedder.EmbedBatch(ctx, indexTexts(records))
	if err != nil {
		return fmt.Errorf("failed to embed policies: %w", err)
	}
	if len(vecs) != len(records) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(records))
	}

	f.mu.Lock()
	for i, r := range records {
		f.vectors = append(f.vectors, normalize(vecs[i]))
		f.records = append(f.records, r.IndexCopy())
	}
	f.mu.Unlock()

	return f.save()
}

// Search implements Index.
func (f *FileIndex) Search(ctx context.Context, query string, k int) ([]model.PolicyRecord, error) {
	if k <= 0 {
		return []model.PolicyRecord{}, nil
	}
	qv, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv = normalize(qv)

	f.mu.RLock()
	type hit struct {
		pos   int
		score float64
	}
	hits := make([]hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = hit{pos: i, score: dot(qv, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]model.PolicyRecord, len(hits))
	for i, h := range hits {
		out[i] = f.records[h.pos]
		out[i].SimilarityScore = h.score
	}
	f.mu.RUnlock()

	return out, nil
}

// Count implements Index.
func (f *FileIndex) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records), nil
}

// Clear implements Index.
func (f *FileIndex) Clear(ctx context.Context) error {
	f.mu.Lock()
	f.vectors = nil
	f.records = nil
	f.mu.Unlock()

	if f.dir == "" {
		return nil
	}
	for _, pattern := range []string{"policies_*.vec", "policies_*.meta.json", latestPointer} {
		matches, _ := filepath.Glob(filepath.Join(f.dir, pattern))
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", m, err)
			}
		}
	}
	return nil
}

// save writes a new snapshot and repoints "latest" at it.
func (f *FileIndex) save() error {
	if f.dir == "" {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	base := "policies_" + stamp

	var vecBuf strings.Builder
	for _, v := range f.vectors {
		vecBuf.WriteString(pgvector.NewVector(v).String())
		vecBuf.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(f.dir, base+".vec"), []byte(vecBuf.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}

	meta, err := json.Marshal(f.records)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, base+".meta.json"), meta, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	previous, _ := os.ReadFile(filepath.Join(f.dir, latestPointer))
	if err := os.WriteFile(filepath.Join(f.dir, latestPointer), []byte(base), 0o644); err != nil {
		return fmt.Errorf("failed to write latest pointer: %w", err)
	}
	if old := strings.TrimSpace(string(previous)); old != "" && old != base {
		_ = os.Remove(filepath.Join(f.dir, old+".vec"))
		_ = os.Remove(filepath.Join(f.dir, old+".meta.json"))
	}

	f.log.Debug("Saved policy index snapshot", "snapshot", base, "count", len(f.records))
	return nil
}

func (f *FileIndex) load() error {
	raw, err := os.ReadFile(filepath.Join(f.dir, latestPointer))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read latest pointer: %w", err)
	}
	base := strings.TrimSpace(string(raw))
	if base == "" {
		return nil
	}

	meta, err := os.ReadFile(filepath.Join(f.dir, base+".meta.json"))
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	var records []model.PolicyRecord
	if err := json.Unmarshal(meta, &records); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}

	file, err := os.Open(filepath.Join(f.dir, base+".vec"))
	if err != nil {
		return fmt.Errorf("failed to open vectors: %w", err)
	}
	defer file.Close()

	var vectors [][]float32
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var v pgvector.Vector
		if err := v.Scan(line); err != nil {
			return fmt.Errorf("failed to parse vector %d: %w", len(vectors), err)
		}
		vectors = append(vectors, v.Slice())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read vectors: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("index snapshot %s is inconsistent: %d vectors, %d records", base, len(vectors), len(records))
	}

	f.mu.Lock()
	f.vectors = vectors
	f.records = records
	f.mu.Unlock()

	f.log.Info("Loaded policy index snapshot", "snapshot", base, "count", len(records))
	return nil
}

var _ Index = (*FileIndex)(nil)
