package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/chunker"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/embedder"
	embedderopenai "github.com/sujalkumar04/healthcare-memory-assistant/pkg/embedder/openai"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/lifecycle"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/llm"
	llmopenai "github.com/sujalkumar04/healthcare-memory-assistant/pkg/llm/openai"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/reasoning"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/retrieval"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/inmemory"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/oceanbase"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/postgres"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/sqlite"
)

// Assistant is the main client for the memory store.
//
// It owns the full lifecycle of an entity's memories: ingestion with
// chunking and duplicate resolution, confidence decay, ranked retrieval, and
// evidence-grounded answer generation. All operations are scoped to one
// entity per call; cross-entity access is rejected, not filtered.
type Assistant struct {
	config    *Config
	store     storage.VectorStore
	embedders *embedder.Registry
	chain     *reasoning.Chain
	ranker    *retrieval.Ranker
	resolver  *lifecycle.Resolver
	sweeper   *lifecycle.Sweeper
	splitter  *chunker.Chunker

	// snowflakeNode generates unique IDs for memories.
	snowflakeNode *snowflake.Node

	// ingestLocks serializes ingestion per (entity, space).
	ingestLocks *keyedMutex

	logger     *slog.Logger
	logCleanup func() error
}

// NewAssistant creates a new Assistant from the configuration.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	assistant, err := core.NewAssistant(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer assistant.Close()
func NewAssistant(cfg *Config) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logCleanup := SetupLogger(cfg.LogFile, slog.LevelInfo)

	store, err := initStorage(cfg)
	if err != nil {
		return nil, NewMemoryError("NewAssistant", err)
	}

	registry, err := initEmbedders(cfg)
	if err != nil {
		return nil, NewMemoryError("NewAssistant", err)
	}

	provider, err := initLLM(cfg)
	if err != nil {
		return nil, NewMemoryError("NewAssistant", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewAssistant", err)
	}

	mergeThreshold := 0.0
	if cfg.Lifecycle != nil {
		mergeThreshold = cfg.Lifecycle.MergeThreshold
	}

	return &Assistant{
		config:        cfg,
		store:         store,
		embedders:     registry,
		chain:         reasoning.NewChain(provider, logger),
		ranker:        retrieval.NewRanker(store),
		resolver:      lifecycle.NewResolver(store, mergeThreshold),
		sweeper:       lifecycle.NewSweeper(store, logger),
		splitter:      chunker.New(),
		snowflakeNode: node,
		ingestLocks:   newKeyedMutex(),
		logger:        logger,
		logCleanup:    logCleanup,
	}, nil
}

func initStorage(cfg *Config) (storage.VectorStore, error) {
	conf := cfg.VectorStore.Config
	switch cfg.VectorStore.Provider {
	case "sqlite":
		return sqlite.NewClient(&sqlite.Config{
			DBPath: getString(conf, "db_path", "./memories.db"),
			Table:  getString(conf, "table", "memories"),
		})
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:      getString(conf, "host", "localhost"),
			Port:      getInt(conf, "port", 5432),
			User:      getString(conf, "user", "postgres"),
			Password:  getString(conf, "password", ""),
			DBName:    getString(conf, "db_name", "memassist"),
			SSLMode:   getString(conf, "ssl_mode", "disable"),
			Table:     getString(conf, "table", "memories"),
			TextDims:  cfg.TextEmbedder.Dimensions,
			ImageDims: imageDims(cfg),
		})
	case "oceanbase":
		return oceanbase.NewClient(&oceanbase.Config{
			Host:      getString(conf, "host", "127.0.0.1"),
			Port:      getInt(conf, "port", 2881),
			User:      getString(conf, "user", "root@sys"),
			Password:  getString(conf, "password", ""),
			DBName:    getString(conf, "db_name", "memassist"),
			Table:     getString(conf, "table", "memories"),
			TextDims:  cfg.TextEmbedder.Dimensions,
			ImageDims: imageDims(cfg),
		})
	case "memory":
		return inmemory.NewClient(), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}

func initEmbedders(cfg *Config) (*embedder.Registry, error) {
	text, err := initEmbedder(&cfg.TextEmbedder)
	if err != nil {
		return nil, err
	}

	var image embedder.Provider
	if cfg.ImageEmbedder != nil {
		image, err = initEmbedder(cfg.ImageEmbedder)
		if err != nil {
			return nil, err
		}
	}
	return embedder.NewRegistry(text, image), nil
}

func initEmbedder(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return embedderopenai.NewClient(&embedderopenai.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Dimensions:        cfg.Dimensions,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder provider %q",
			ErrInvalidConfig, cfg.Provider)
	}
}

func initLLM(cfg *Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llmopenai.NewClient(&llmopenai.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q",
			ErrInvalidConfig, cfg.LLM.Provider)
	}
}

func imageDims(cfg *Config) int {
	if cfg.ImageEmbedder != nil {
		return cfg.ImageEmbedder.Dimensions
	}
	return 512
}

func getString(conf map[string]interface{}, key, def string) string {
	if v, ok := conf[key].(string); ok && v != "" {
		return v
	}
	return def
}

func getInt(conf map[string]interface{}, key string, def int) int {
	switch v := conf[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Ingest stores content as one or more memories for the entity.
//
// Long text is split into overlapping chunks; each chunk is embedded and then
// either reinforces its best near-duplicate match or becomes a new memory.
// All chunks of one call share a parent ID so the ingestion event can be
// traced later.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entityID: The owning entity (required)
//   - content: The text to remember (required)
//   - opts: Optional settings (modality, memory type, source, attributes)
//
// Returns an IngestResult naming the action taken and the memories touched.
func (a *Assistant) Ingest(ctx context.Context, entityID, content string, opts ...IngestOption) (*IngestResult, error) {
	if entityID == "" {
		return nil, NewMemoryError("Ingest", fmt.Errorf("%w: entity id is required", ErrValidation))
	}
	if strings.TrimSpace(content) == "" {
		return nil, NewMemoryError("Ingest", fmt.Errorf("%w: content is empty", ErrValidation))
	}

	options := applyIngestOptions(opts)
	if !options.Modality.Valid() {
		return nil, NewMemoryError("Ingest", fmt.Errorf("%w: unknown modality %q", ErrValidation, options.Modality))
	}

	space := options.Modality.Space()
	provider := a.embedders.ForSpace(space)
	if provider == nil {
		return nil, NewMemoryError("Ingest", fmt.Errorf("%w: no embedder configured for %s space", ErrInvalidConfig, space))
	}

	chunks := a.splitter.Split(content)
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, NewMemoryError("Ingest", fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
	}
	if dims := provider.Dimensions(); dims > 0 {
		for _, emb := range embeddings {
			if len(emb) != dims {
				return nil, NewMemoryError("Ingest",
					fmt.Errorf("%w: embedding dimension %d, expected %d", ErrValidation, len(emb), dims))
			}
		}
	}

	// The resolver's check-then-act must not race with another ingestion
	// for the same entity and space.
	unlock := a.ingestLocks.Lock(entityID + "/" + space)
	defer unlock()

	result := &IngestResult{
		Action:    ActionReinforced,
		ParentID:  uuid.NewString(),
		MemoryIDs: make([]int64, 0, len(chunks)),
	}

	now := time.Now().UTC()
	for i, chunk := range chunks {
		if !options.SkipReinforcement {
			match, err := a.resolver.Resolve(ctx, entityID, space, embeddings[i])
			if err != nil {
				return nil, NewMemoryError("Ingest", err)
			}
			if match != nil {
				updated, err := a.resolver.Reinforce(ctx, match)
				if err != nil {
					return nil, NewMemoryError("Ingest", err)
				}
				result.MemoryIDs = append(result.MemoryIDs, updated.ID)
				result.ReinforcedCount++
				a.logger.Debug("reinforced memory",
					"entity_id", entityID, "memory_id", updated.ID,
					"confidence", updated.Confidence, "similarity", match.Score)
				continue
			}
		}

		memory := &storage.Memory{
			ID:                 a.snowflakeNode.Generate().Int64(),
			EntityID:           entityID,
			Content:            chunk.Text,
			Embedding:          embeddings[i],
			Space:              space,
			Modality:           string(options.Modality),
			MemoryType:         options.MemoryType,
			Source:             options.Source,
			Confidence:         lifecycle.InitialConfidence,
			ReinforcementCount: 0,
			CreatedAt:          now,
			LastReinforcedAt:   now,
			IsActive:           true,
			ParentID:           result.ParentID,
			ChunkIndex:         chunk.Index,
			TotalChunks:        len(chunks),
			Attributes:         options.Attributes,
		}
		if err := a.store.Insert(ctx, memory); err != nil {
			return nil, NewMemoryError("Ingest", err)
		}
		result.MemoryIDs = append(result.MemoryIDs, memory.ID)
		result.Action = ActionCreated
	}

	a.logger.Info("ingested content",
		"entity_id", entityID, "action", result.Action,
		"chunks", len(chunks), "reinforced", result.ReinforcedCount)
	return result, nil
}

// Retrieve returns ranked evidence for a query.
//
// The query is embedded once per vector space in scope and each space is
// searched separately; results merge into one ranking before truncation. An
// empty result is a normal outcome.
func (a *Assistant) Retrieve(ctx context.Context, entityID, query string, opts ...RetrieveOption) ([]*retrieval.Evidence, error) {
	evidence, _, err := a.RetrieveWithStats(ctx, entityID, query, opts...)
	return evidence, err
}

// RetrieveWithStats runs Retrieve and summarizes the evidence set.
func (a *Assistant) RetrieveWithStats(ctx context.Context, entityID, query string, opts ...RetrieveOption) ([]*retrieval.Evidence, *RetrievalStats, error) {
	if entityID == "" {
		return nil, nil, NewMemoryError("Retrieve", fmt.Errorf("%w: entity id is required", ErrValidation))
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil, NewMemoryError("Retrieve", fmt.Errorf("%w: query is empty", ErrValidation))
	}

	options := applyRetrieveOptions(opts)
	searches, err := a.buildSearches(ctx, query, options.Modalities)
	if err != nil {
		return nil, nil, NewMemoryError("Retrieve", err)
	}

	minScore := options.MinScore
	if minScore == 0 && a.config.Lifecycle != nil {
		minScore = a.config.Lifecycle.MinScore
	}

	evidence, stats, err := a.ranker.RetrieveWithStats(ctx, &retrieval.Query{
		EntityID:    entityID,
		Searches:    searches,
		MemoryTypes: options.MemoryTypes,
		Limit:       options.Limit,
		MinScore:    minScore,
	})
	if err != nil {
		return nil, nil, NewMemoryError("Retrieve", err)
	}

	a.logger.Debug("retrieved evidence",
		"entity_id", entityID, "count", stats.Count,
		"avg_semantic", stats.AvgSemantic, "avg_confidence", stats.AvgConfidence)
	return evidence, &RetrievalStats{
		Count:         stats.Count,
		AvgSemantic:   stats.AvgSemantic,
		AvgConfidence: stats.AvgConfidence,
	}, nil
}

// buildSearches embeds the query once per vector space in scope and pairs
// each embedding with the modality filter for that space.
func (a *Assistant) buildSearches(ctx context.Context, query string, modalities []Modality) ([]retrieval.SpaceSearch, error) {
	spaceModalities := make(map[string][]string)
	if len(modalities) == 0 {
		spaceModalities[embedder.SpaceText] = nil
		if a.embedders.ForSpace(embedder.SpaceImage) != nil {
			spaceModalities[embedder.SpaceImage] = nil
		}
	} else {
		for _, m := range modalities {
			if !m.Valid() {
				return nil, fmt.Errorf("%w: unknown modality %q", ErrValidation, m)
			}
			space := m.Space()
			spaceModalities[space] = append(spaceModalities[space], string(m))
		}
	}

	var searches []retrieval.SpaceSearch
	for space, filter := range spaceModalities {
		provider := a.embedders.ForSpace(space)
		if provider == nil {
			return nil, fmt.Errorf("%w: no embedder configured for %s space", ErrInvalidConfig, space)
		}
		embedding, err := provider.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		searches = append(searches, retrieval.SpaceSearch{
			Space:      space,
			Embedding:  embedding,
			Modalities: filter,
		})
	}
	return searches, nil
}

// Answer retrieves evidence for the question and generates a grounded
// answer.
//
// With no evidence the fixed insufficient-data response comes back and the
// model is never called. With evidence, a generation failure surfaces as
// ErrGenerationFailed; the caller decides whether to retry.
func (a *Assistant) Answer(ctx context.Context, entityID, question string, opts ...RetrieveOption) (*reasoning.Response, error) {
	evidence, err := a.Retrieve(ctx, entityID, question, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := a.chain.Answer(ctx, entityID, question, evidence)
	if err != nil {
		return nil, NewMemoryError("Answer", err)
	}
	return resp, nil
}

// SuggestFollowUps proposes follow-up questions based on evidence for the
// query. Suggestions are best-effort: generation or parse failures fall back
// to fixed lists rather than erroring.
func (a *Assistant) SuggestFollowUps(ctx context.Context, entityID, query string, opts ...RetrieveOption) ([]string, error) {
	evidence, err := a.Retrieve(ctx, entityID, query, opts...)
	if err != nil {
		return nil, err
	}
	return a.chain.SuggestFollowUps(ctx, evidence), nil
}

// Summarize generates a grounded overview of the entity's active memories.
// The evidence gate applies: an entity with no memories gets the fixed
// insufficient-data response without any generation.
func (a *Assistant) Summarize(ctx context.Context, entityID string) (*reasoning.Response, error) {
	if entityID == "" {
		return nil, NewMemoryError("Summarize", fmt.Errorf("%w: entity id is required", ErrValidation))
	}

	memories, err := a.store.List(ctx, &storage.ListOptions{
		EntityID: entityID,
		Limit:    50,
	})
	if err != nil {
		return nil, NewMemoryError("Summarize", err)
	}

	now := time.Now().UTC()
	evidence := make([]*retrieval.Evidence, len(memories))
	for i, m := range memories {
		evidence[i] = &retrieval.Evidence{
			MemoryID:   m.ID,
			Content:    m.Content,
			Confidence: lifecycle.Decay(m.Confidence, m.LastReinforcedAt, now),
			Modality:   m.Modality,
			MemoryType: m.MemoryType,
			Source:     m.Source,
			CreatedAt:  m.CreatedAt,
			ParentID:   m.ParentID,
			ChunkIndex: m.ChunkIndex,
		}
	}

	resp, err := a.chain.Summarize(ctx, entityID, evidence)
	if err != nil {
		return nil, NewMemoryError("Summarize", err)
	}
	return resp, nil
}

// SoftDelete marks a memory inactive. The row is retained for audit; there
// is no hard delete. Deleting another entity's memory is rejected.
func (a *Assistant) SoftDelete(ctx context.Context, entityID string, memoryID int64, reason string) error {
	if entityID == "" {
		return NewMemoryError("SoftDelete", fmt.Errorf("%w: entity id is required", ErrValidation))
	}

	err := a.store.SoftDelete(ctx, memoryID, reason, &storage.DeleteOptions{EntityID: entityID})
	if err != nil {
		return NewMemoryError("SoftDelete", err)
	}

	a.logger.Info("soft-deleted memory",
		"entity_id", entityID, "memory_id", memoryID, "reason", reason)
	return nil
}

// Get retrieves one memory by ID, rejecting cross-entity access.
func (a *Assistant) Get(ctx context.Context, entityID string, memoryID int64) (*Memory, error) {
	if entityID == "" {
		return nil, NewMemoryError("Get", fmt.Errorf("%w: entity id is required", ErrValidation))
	}

	memory, err := a.store.Get(ctx, memoryID, &storage.GetOptions{EntityID: entityID})
	if err != nil {
		return nil, NewMemoryError("Get", err)
	}
	return toClientMemory(memory), nil
}

// ApplyDecay runs a decay maintenance pass over the entity's active
// memories, persisting decayed confidence values. Retrieval does not depend
// on this pass; it computes decay at read time regardless.
func (a *Assistant) ApplyDecay(ctx context.Context, entityID string) (*DecayStats, error) {
	if entityID == "" {
		return nil, NewMemoryError("ApplyDecay", fmt.Errorf("%w: entity id is required", ErrValidation))
	}

	stats, err := a.sweeper.Sweep(ctx, entityID)
	if err != nil {
		return nil, NewMemoryError("ApplyDecay", err)
	}
	return &DecayStats{Processed: stats.Processed, Decayed: stats.Decayed}, nil
}

// Audit lists all of the entity's memories, including soft-deleted ones with
// their deletion time and reason.
func (a *Assistant) Audit(ctx context.Context, entityID string) ([]*Memory, error) {
	if entityID == "" {
		return nil, NewMemoryError("Audit", fmt.Errorf("%w: entity id is required", ErrValidation))
	}

	memories, err := a.store.List(ctx, &storage.ListOptions{
		EntityID:        entityID,
		IncludeInactive: true,
	})
	if err != nil {
		return nil, NewMemoryError("Audit", err)
	}
	return toClientMemories(memories), nil
}

// Close closes the Assistant and releases all resources.
func (a *Assistant) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	if err := a.embedders.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.chain.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.logCleanup(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
