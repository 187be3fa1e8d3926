package app

import (
	"context"
	"fmt"
	"time"

	"policychat/internal/agent"
	"policychat/internal/config"
	"policychat/internal/index"
	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/repository"
	"policychat/internal/service"

	goredis "github.com/redis/go-redis/v9"
)

// App holds the process-wide dependency graph. It is built once at startup
// and shared by every request.
type App struct {
	Config   *config.Config
	Repo     *repository.PostgresRepository
	Index    index.Index
	Syncer   *index.Syncer
	Chat     *service.ChatService
	Profiles *service.ProfileService

	redis *goredis.Client
	log   *logger.Logger
}

// New connects to the stores and wires the agents.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.Repo = repo
	log.Info("Connected to PostgreSQL database")

	if !cfg.LLM.Enabled {
		log.Warn("No OpenAI API key configured, every model call will fail and answers will fall back")
	}
	completer, embedder := llm.NewFromConfig(cfg, log)

	if cfg.Redis.Addr != "" {
		rdb, err := index.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("Redis unavailable, query embeddings will not be cached", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.redis = rdb
			ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
			embedder = index.NewCachedEmbedder(embedder, rdb, cfg.Embedding.Model, ttl, log)
			log.Info("Query embedding cache enabled", "addr", cfg.Redis.Addr, "ttl", ttl)
		}
	}

	idx, err := newIndex(ctx, cfg, repo, embedder, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = idx
	a.Syncer = index.NewSyncer(idx, repo, log)

	rules, err := agent.LoadRules(cfg.Rules.File)
	if err != nil {
		a.Close()
		return nil, err
	}

	orchestrator := service.NewOrchestrator(service.Stages{
		Profiler:    agent.NewProfiler(completer, repo, log),
		Eligibility: agent.NewEligibilityChecker(completer, rules, log),
		Ranker:      agent.NewRanker(completer, rules, log),
		Strategist:  agent.NewStrategist(completer, rules, log),
		Synthesizer: agent.NewSynthesizer(completer, log),
	}, idx, cfg.Index.DefaultTopK, log)

	a.Chat = service.NewChatService(
		agent.NewIntentClassifier(completer, log),
		agent.NewAnswerer(completer, log),
		orchestrator,
		repo,
		idx,
		cfg.Index.DefaultTopK,
		log,
	).WithConsultationLog(repo)
	a.Profiles = service.NewProfileService(repo)

	log.Info("Services initialized", "index_backend", cfg.Index.Backend, "llm_provider", cfg.LLM.Provider)
	return a, nil
}

func newIndex(ctx context.Context, cfg *config.Config, repo *repository.PostgresRepository, embedder llm.Embedder, log *logger.Logger) (index.Index, error) {
	switch cfg.Index.Backend {
	case "pgvector":
		idx := index.NewPGVectorIndex(repo.DB(), embedder, cfg.Embedding.Dimensions, log)
		if err := idx.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare pgvector index: %w", err)
		}
		return idx, nil
	default:
		idx, err := index.NewFileIndex(cfg.Index.Dir, embedder, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open policy index: %w", err)
		}
		return idx, nil
	}
}

// SyncIndex brings the index in line with the policy table. A rebuild clears
// the index before re-embedding, so a failure part way leaves it empty until
// the next successful sync; searches then return no context.
func (a *App) SyncIndex(ctx context.Context, force bool) {
	res, err := a.Syncer.Sync(ctx, force)
	if err != nil {
		count, _ := a.Index.Count(ctx)
		a.log.Error("Policy index sync failed", "indexed", count, "error", err)
		return
	}
	a.log.Info("Policy index synced", "rebuilt", res.Rebuilt, "indexed", res.Indexed, "source", res.SourceSize, "took_ms", res.Took)
}

// Close releases the store connections.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Repo != nil {
		_ = a.Repo.Close()
	}
}
