package index

import (
	"context"
	"encoding/json"
	"fmt"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// PGVectorIndex stores policy embeddings in the policy_embeddings table.
type PGVectorIndex struct {
	db         *sqlx.DB
	embedder   llm.Embedder
	dimensions int
	log        *logger.Logger
}

// NewPGVectorIndex creates the index; EnsureSchema must run once before use.
func NewPGVectorIndex(db *sqlx.DB, embedder llm.Embedder, dimensions int, log *logger.Logger) *PGVectorIndex {
	return &PGVectorIndex{
		db:         db,
		embedder:   embedder,
		dimensions: dimensions,
		log:        log.With("service", "PGVectorIndex"),
	}
}

// EnsureSchema creates the extension and table when missing.
func (p *PGVectorIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS policy_embeddings (
				policy_id  BIGINT PRIMARY KEY,
				document   JSONB NOT NULL,
				embedding  vector(%d) NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, p.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure policy_embeddings schema: %w", err)
		}
	}
	return nil
}

// Add implements Index. All rows are written in one transaction.
func (p *PGVectorIndex) Add(ctx context.Context, records []model.PolicyRecord) error {
	if len(records) == 0 {
		return nil
	}
	vecs, err := p.embedder.EmbedBatch(ctx, indexTexts(records))
	if err != nil {
		return fmt.Errorf("failed to embed policies: %w", err)
	}
	if len(vecs) != len(records) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(records))
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO policy_embeddings (policy_id, document, embedding, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (policy_id) DO UPDATE
		SET document = EXCLUDED.document, embedding = EXCLUDED.embedding, updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		doc, err := json.Marshal(r.IndexCopy())
		if err != nil {
			return fmt.Errorf("policy %d: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, doc, pgvector.NewVector(normalize(vecs[i]))); err != nil {
			return fmt.Errorf("policy %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type similarityRow struct {
	Document   []byte  `db:"document"`
	Similarity float64 `db:"similarity"`
}

// Search implements Index using the cosine distance operator.
func (p *PGVectorIndex) Search(ctx context.Context, query string, k int) ([]model.PolicyRecord, error) {
	if k <= 0 {
		return []model.PolicyRecord{}, nil
	}
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var rows []similarityRow
	err = p.db.SelectContext(ctx, &rows, `
		SELECT document, 1 - (embedding <=> $1) AS similarity
		FROM policy_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(normalize(qv)), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]model.PolicyRecord, 0, len(rows))
	for _, row := range rows {
		var rec model.PolicyRecord
		if err := json.Unmarshal(row.Document, &rec); err != nil {
			p.log.Warn("Skipping undecodable policy document", "error", err)
			continue
		}
		rec.SimilarityScore = row.Similarity
		out = append(out, rec)
	}
	return out, nil
}

// Count implements Index.
func (p *PGVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM policy_embeddings`); err != nil {
		return 0, fmt.Errorf("failed to count policy embeddings: %w", err)
	}
	return n, nil
}

// Clear implements Index.
func (p *PGVectorIndex) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE policy_embeddings`); err != nil {
		return fmt.Errorf("failed to clear policy embeddings: %w", err)
	}
	return nil
}

var _ Index = (*PGVectorIndex)(nil)
