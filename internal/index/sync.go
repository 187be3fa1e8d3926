package index

import (
	"context"
	"fmt"
	"time"

	"policychat/internal/logger"
	"policychat/internal/metrics"
	"policychat/internal/model"

	"golang.org/x/sync/singleflight"
)

// PolicySource is the relational source of truth for the index.
type PolicySource interface {
	ListActivePolicies(ctx context.Context) ([]model.PolicyRecord, error)
}

// Syncer keeps an Index in step with its PolicySource. Concurrent sync
// requests share one rebuild.
type Syncer struct {
	idx    Index
	source PolicySource
	log    *logger.Logger
	group  singleflight.Group
}

// NewSyncer creates a syncer for idx.
func NewSyncer(idx Index, source PolicySource, log *logger.Logger) *Syncer {
	return &Syncer{
		idx:    idx,
		source: source,
		log:    log.With("service", "IndexSyncer"),
	}
}

// Sync rebuilds the index when its size differs from the source, or
// unconditionally when force is set.
func (s *Syncer) Sync(ctx context.Context, force bool) (model.ReindexResponse, error) {
	key := "sync"
	if force {
		key = "force"
	}
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.sync(ctx, force)
	})
	if shared {
		s.log.Debug("Joined an in-flight index sync")
	}
	res, _ := v.(model.ReindexResponse)
	return res, err
}

func (s *Syncer) sync(ctx context.Context, force bool) (model.ReindexResponse, error) {
	start := time.Now()

	policies, err := s.source.ListActivePolicies(ctx)
	if err != nil {
		return model.ReindexResponse{}, fmt.Errorf("failed to list policies: %w", err)
	}
	count, err := s.idx.Count(ctx)
	if err != nil {
		return model.ReindexResponse{}, fmt.Errorf("failed to count index: %w", err)
	}

	res := model.ReindexResponse{Indexed: count, SourceSize: len(policies)}
	if !force && count == len(policies) {
		s.log.Info("Policy index is up to date", "count", count)
		res.Took = time.Since(start).Milliseconds()
		return res, nil
	}

	s.log.Info("Rebuilding policy index", "indexed", count, "source", len(policies), "force", force)
	if err := s.idx.Clear(ctx); err != nil {
		metrics.IndexRebuilds.WithLabelValues("error").Inc()
		return res, fmt.Errorf("failed to clear index: %w", err)
	}
	if err := s.idx.Add(ctx, policies); err != nil {
		metrics.IndexRebuilds.WithLabelValues("error").Inc()
		return res, fmt.Errorf("failed to rebuild index: %w", err)
	}
	metrics.IndexRebuilds.WithLabelValues("success").Inc()

	res.Rebuilt = true
	res.Indexed, _ = s.idx.Count(ctx)
	res.Took = time.Since(start).Milliseconds()
	s.log.Info("Policy index rebuilt", "count", res.Indexed, "took_ms", res.Took)
	return res, nil
}
