package main

import (
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"docqa/internal/answer"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/extractor"
	"docqa/internal/index"
	"docqa/internal/logger"
	"docqa/internal/service"
	"docqa/internal/summarizer"
)

// newService assembles the retrieval service from cfg.
func newService(cfg *config.AppConfig) (*service.RAGService, *answer.Cache, error) {
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, nil, err
	}
	ix := index.NewIndexer(
		extractor.New(),
		chunker.NewSentenceChunker(cfg.Chunker.MaxChunkSize),
		emb,
		index.Options{VerifyFingerprint: cfg.Index.VerifyFingerprint},
	)

	corpora := make([]service.Corpus, 0, len(cfg.Corpora))
	for _, c := range cfg.Corpora {
		kind, err := domain.ParseKind(c.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("corpus %s: %w", c.Name, err)
		}
		corpora = append(corpora, service.Corpus{
			Name:         c.Name,
			Source:       index.Source{Path: c.Source, CachePath: c.Cache, Kind: kind},
			Route:        c.Route,
			SystemPrompt: c.SystemPrompt,
			Model:        c.Model,
			Temperature:  c.Temperature,
			Generator:    overrideGenerator(cfg, c.Generator),
		})
	}

	cache := newAnswerCache(cfg.AnswerCache)
	var svcCache service.AnswerCache
	if cache != nil {
		svcCache = cache
	}
	svc := service.NewRAGService(corpora, ix, newGenerator(cfg.Generator), svcCache, summarizer.NewFrequencySummarizer(), cfg.Summarizer.MaxSentences)
	for _, p := range cfg.Prompts {
		svc.AddPromptRoutes(service.PromptRoute{
			Name:         p.Name,
			Route:        p.Route,
			SystemPrompt: p.SystemPrompt,
			UserTemplate: p.UserTemplate,
			Model:        p.Model,
			Temperature:  p.Temperature,
			Generator:    overrideGenerator(cfg, p.Generator),
		})
	}
	return svc, cache, nil
}

// overrideGenerator returns nil when there is no override so the service
// default is used.
func overrideGenerator(cfg *config.AppConfig, override *config.GeneratorConfig) answer.Generator {
	if override == nil {
		return nil
	}
	return newGenerator(cfg.GeneratorFor(override))
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		emb, err := openai.NewEmbedder(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:  cfg.OpenAI.BatchSize,
			Workers:    cfg.OpenAI.Workers,
			Dimensions: cfg.OpenAI.Dimensions,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// newGenerator falls back to returning the retrieved chunk when no API key is set.
func newGenerator(cfg config.GeneratorConfig) answer.Generator {
	if cfg.Type == "none" {
		return answer.NoopGenerator{}
	}
	gen, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		BaseURL:    cfg.BaseURL,
		APIKeyEnv:  cfg.APIKeyEnv,
		Model:      cfg.Model,
		Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		logger.Warnf("answer generation disabled: %v", err)
		return answer.NoopGenerator{}
	}
	return gen
}

func newAnswerCache(cfg config.AnswerCacheConfig) *answer.Cache {
	if !cfg.Enabled {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: os.Getenv(cfg.PasswordEnv),
		DB:       cfg.DB,
	})
	return answer.NewCache(client, answer.CacheConfig{
		Enabled:   true,
		TTL:       time.Duration(cfg.TTLSecs) * time.Second,
		KeyPrefix: cfg.KeyPrefix,
	})
}
