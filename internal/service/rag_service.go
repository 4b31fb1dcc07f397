// Package service owns the corpus indexes and answers questions against them.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"docqa/internal/answer"
	"docqa/internal/domain"
	"docqa/internal/index"
	"docqa/internal/logger"
	"docqa/internal/search"
)

// Corpus is one configured source and how questions against it are answered.
// A nil Generator uses the service default.
type Corpus struct {
	Name         string
	Source       index.Source
	Route        string
	SystemPrompt string
	Model        string
	Temperature  float64
	Generator    answer.Generator
}

// PromptRoute sends its input straight to a generator without retrieval.
// UserTemplate replaces {input} with the input; empty means the input as is.
type PromptRoute struct {
	Name         string
	Route        string
	SystemPrompt string
	UserTemplate string
	Model        string
	Temperature  float64
	Generator    answer.Generator
}

// Render returns the user message for input.
func (p PromptRoute) Render(input string) string {
	if p.UserTemplate == "" {
		return input
	}
	return strings.ReplaceAll(p.UserTemplate, "{input}", input)
}

// AnswerCache stores generated answers. *answer.Cache implements it.
type AnswerCache interface {
	Get(ctx context.Context, k answer.Key) (string, bool)
	Set(ctx context.Context, k answer.Key, text string)
	Clear(ctx context.Context, corpus string) (int, error)
}

type noCache struct{}

func (noCache) Get(context.Context, answer.Key) (string, bool) { return "", false }
func (noCache) Set(context.Context, answer.Key, string)        {}
func (noCache) Clear(context.Context, string) (int, error)     { return 0, nil }

// Handle is a loaded corpus.
type Handle struct {
	Corpus
	Index   *index.CorpusIndex
	Summary string
}

// Answer is the result of Ask.
type Answer struct {
	Corpus   string       `json:"corpus"`
	Question string       `json:"question"`
	Match    search.Match `json:"match"`
	Text     string       `json:"text"`
	Cached   bool         `json:"cached"`
}

// Loader loads or builds corpus indexes.
type Loader interface {
	LoadOrBuild(ctx context.Context, src index.Source) (*index.CorpusIndex, error)
	Rebuild(ctx context.Context, src index.Source) (*index.CorpusIndex, error)
	Embedder() domain.Embedder
}

// RAGService retrieves the best chunk for a question and generates an answer from it.
type RAGService struct {
	loader              Loader
	generator           answer.Generator
	cache               AnswerCache
	summarizer          domain.Summarizer
	summaryMaxSentences int
	corpora             []Corpus
	prompts             []PromptRoute

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRAGService creates a service over corpora. cache and summarizer may be nil.
func NewRAGService(corpora []Corpus, loader Loader, generator answer.Generator, cache AnswerCache, summarizer domain.Summarizer, summaryMaxSentences int) *RAGService {
	if generator == nil {
		generator = answer.NoopGenerator{}
	}
	if cache == nil {
		cache = noCache{}
	}
	return &RAGService{
		loader:              loader,
		generator:           generator,
		cache:               cache,
		summarizer:          summarizer,
		summaryMaxSentences: summaryMaxSentences,
		corpora:             corpora,
		handles:             make(map[string]*Handle, len(corpora)),
	}
}

// Init loads or builds every configured corpus. It fails if any corpus fails.
func (s *RAGService) Init(ctx context.Context) error {
	return s.load(ctx, s.corpora, false)
}

// Reindex rebuilds the named corpora, or all of them when names is empty,
// ignoring their cache entries.
func (s *RAGService) Reindex(ctx context.Context, names ...string) error {
	corpora, err := s.selectCorpora(names)
	if err != nil {
		return err
	}
	return s.load(ctx, corpora, true)
}

// Load loads or builds only the named corpora, or all of them when names is empty.
func (s *RAGService) Load(ctx context.Context, names ...string) error {
	corpora, err := s.selectCorpora(names)
	if err != nil {
		return err
	}
	return s.load(ctx, corpora, false)
}

func (s *RAGService) selectCorpora(names []string) ([]Corpus, error) {
	if len(names) == 0 {
		return s.corpora, nil
	}
	out := make([]Corpus, 0, len(names))
	for _, name := range names {
		c, ok := s.corpus(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrCorpusNotFound, name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RAGService) corpus(name string) (Corpus, bool) {
	for _, c := range s.corpora {
		if c.Name == name {
			return c, true
		}
	}
	return Corpus{}, false
}

// AddPromptRoutes registers routes served by Complete. It must be called
// before the service is shared.
func (s *RAGService) AddPromptRoutes(routes ...PromptRoute) {
	s.prompts = append(s.prompts, routes...)
}

// PromptRoutes returns the registered prompt routes.
func (s *RAGService) PromptRoutes() []PromptRoute {
	out := make([]PromptRoute, len(s.prompts))
	copy(out, s.prompts)
	return out
}

func (s *RAGService) load(ctx context.Context, corpora []Corpus, rebuild bool) error {
	handles := make([]*Handle, len(corpora))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range corpora {
		g.Go(func() error {
			var (
				idx *index.CorpusIndex
				err error
			)
			if rebuild {
				idx, err = s.loader.Rebuild(gctx, c.Source)
			} else {
				idx, err = s.loader.LoadOrBuild(gctx, c.Source)
			}
			if err != nil {
				return fmt.Errorf("corpus %s: %w", c.Name, err)
			}
			h := &Handle{Corpus: c, Index: idx}
			if s.summarizer != nil && idx.Len() > 0 {
				if h.Summary, err = s.summarizer.Summarize(idx.Text(), s.summaryMaxSentences); err != nil {
					logger.Warnf("corpus %s: summary failed: %v", c.Name, err)
				}
			}
			handles[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	for _, h := range handles {
		s.handles[h.Name] = h
		logger.Infof("corpus %s ready: %d documents", h.Name, h.Index.Len())
	}
	s.mu.Unlock()

	if rebuild {
		for _, c := range corpora {
			n, err := s.cache.Clear(ctx, c.Name)
			if err != nil {
				logger.Warnf("corpus %s: clearing cached answers failed: %v", c.Name, err)
				continue
			}
			if n > 0 {
				logger.Infof("corpus %s: dropped %d cached answers", c.Name, n)
			}
		}
	}
	return nil
}

// Corpora returns the configured corpora in configuration order.
func (s *RAGService) Corpora() []Corpus {
	out := make([]Corpus, len(s.corpora))
	copy(out, s.corpora)
	return out
}

// Handle returns the loaded corpus called name.
func (s *RAGService) Handle(name string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCorpusNotFound, name)
	}
	return h, nil
}

// Retrieve returns the chunk of the named corpus most similar to question.
func (s *RAGService) Retrieve(ctx context.Context, name, question string) (*search.Match, error) {
	h, err := s.Handle(name)
	if err != nil {
		return nil, err
	}
	m, err := search.SearchBestDocument(ctx, s.loader.Embedder(), question, h.Index)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: corpus %s is empty", domain.ErrNoMatch, name)
	}
	logger.Debugw("retrieved", "corpus", name, "document", m.Document.ID, "score", m.Score)
	return m, nil
}

// Search returns the k chunks of the named corpus most similar to question.
func (s *RAGService) Search(ctx context.Context, name, question string, k int) ([]search.Match, error) {
	h, err := s.Handle(name)
	if err != nil {
		return nil, err
	}
	return search.Search(ctx, s.loader.Embedder(), question, h.Index, k)
}

// Ask retrieves the best chunk for question and generates an answer from it.
// Answers are served from and stored in the answer cache when one is configured.
func (s *RAGService) Ask(ctx context.Context, name, question string) (*Answer, error) {
	h, err := s.Handle(name)
	if err != nil {
		return nil, err
	}
	m, err := s.Retrieve(ctx, name, question)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Corpus: name, Question: question, Match: *m}
	key := answer.Key{
		Corpus:      name,
		Fingerprint: h.Index.Meta().Fingerprint,
		DocumentID:  m.Document.ID,
		Question:    question,
	}
	if text, ok := s.cache.Get(ctx, key); ok {
		ans.Text, ans.Cached = text, true
		return ans, nil
	}

	text, err := s.generatorFor(h.Generator).Generate(ctx, answer.Prompt{
		System:      h.SystemPrompt,
		Context:     m.Document.Text,
		Question:    question,
		Model:       h.Model,
		Temperature: h.Temperature,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}
		return nil, err
	}
	ans.Text = text
	s.cache.Set(ctx, key, text)
	return ans, nil
}

// Complete renders input into the named prompt route and returns the
// generated text, trimmed.
func (s *RAGService) Complete(ctx context.Context, name, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: empty input", domain.ErrInvalidInput)
	}
	var route *PromptRoute
	for i := range s.prompts {
		if s.prompts[i].Name == name {
			route = &s.prompts[i]
			break
		}
	}
	if route == nil {
		return "", fmt.Errorf("%w: prompt route %s", domain.ErrCorpusNotFound, name)
	}
	text, err := s.generatorFor(route.Generator).Generate(ctx, answer.Prompt{
		System:      route.SystemPrompt,
		User:        route.Render(input),
		Model:       route.Model,
		Temperature: route.Temperature,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *RAGService) generatorFor(g answer.Generator) answer.Generator {
	if g != nil {
		return g
	}
	return s.generator
}
