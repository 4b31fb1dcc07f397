package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/logger"
)

// Source names a source artifact and the cache entry that mirrors it.
type Source struct {
	Path      string
	CachePath string
	Kind      domain.Kind
}

func (s Source) key() string { return s.Path + "\x00" + s.CachePath }

// Options tunes cache validation.
type Options struct {
	// VerifyFingerprint rejects cache entries whose fingerprint no longer
	// matches the source file. When false an existing entry is served as is.
	VerifyFingerprint bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{VerifyFingerprint: true}
}

// Indexer loads corpus indexes from their cache or builds them from source.
type Indexer struct {
	extractor domain.Extractor
	chunker   domain.Chunker
	embedder  domain.Embedder
	opts      Options
	group     singleflight.Group
	locks     sync.Map // source key -> *sync.Mutex
	now       func() time.Time
}

// NewIndexer wires the pipeline stages used for cold builds.
func NewIndexer(extractor domain.Extractor, chunker domain.Chunker, embedder domain.Embedder, opts Options) *Indexer {
	return &Indexer{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		opts:      opts,
		now:       time.Now,
	}
}

// Embedder returns the embedder vectors in this indexer's corpora come from.
func (ix *Indexer) Embedder() domain.Embedder { return ix.embedder }

// LoadOrBuild returns the index for src, decoding its cache entry when it is
// usable and building it from the source otherwise. Concurrent calls for the
// same source share one build. The build is not cancelled when ctx ends; the
// caller gets ctx.Err() and the build still completes and writes the cache.
func (ix *Indexer) LoadOrBuild(ctx context.Context, src Source) (*CorpusIndex, error) {
	return ix.do(ctx, src, false)
}

// Rebuild discards the cache entry for src and builds it again. It waits for
// any load or build of the same source already in progress.
func (ix *Indexer) Rebuild(ctx context.Context, src Source) (*CorpusIndex, error) {
	return ix.do(ctx, src, true)
}

func (ix *Indexer) do(ctx context.Context, src Source, force bool) (*CorpusIndex, error) {
	key := src.key()
	if force {
		key += "\x00rebuild"
	}
	detached := context.WithoutCancel(ctx)
	ch := ix.group.DoChan(key, func() (any, error) {
		mu := ix.lock(src)
		mu.Lock()
		defer mu.Unlock()
		if force {
			return ix.build(detached, src)
		}
		return ix.loadOrBuild(detached, src)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CorpusIndex), nil
	}
}

// lock returns the mutex serialising builds of src. Loads and rebuilds use
// separate singleflight keys, so they only exclude each other here.
func (ix *Indexer) lock(src Source) *sync.Mutex {
	mu, _ := ix.locks.LoadOrStore(src.key(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (ix *Indexer) loadOrBuild(ctx context.Context, src Source) (*CorpusIndex, error) {
	idx, err := ix.loadCached(src)
	if err == nil {
		logger.Infof("index %s: loaded %d documents from %s", src.Kind, idx.Len(), src.CachePath)
		return idx, nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Infof("index %s: no cache at %s, building", src.Kind, src.CachePath)
	case errors.Is(err, domain.ErrCacheStale):
		logger.Infof("index %s: cache is stale, rebuilding: %v", src.Kind, err)
	default:
		logger.Warnf("index %s: cache unusable, rebuilding: %v", src.Kind, err)
	}
	return ix.build(ctx, src)
}

// loadCached returns the cached index for src when it may be served.
func (ix *Indexer) loadCached(src Source) (*CorpusIndex, error) {
	idx, err := Load(src.CachePath)
	if err != nil {
		return nil, err
	}
	meta := idx.Meta()
	if meta.Kind != src.Kind {
		return nil, fmt.Errorf("%w: cache holds %s, want %s", domain.ErrCacheIncompatible, meta.Kind, src.Kind)
	}
	if meta.Model != ix.embedder.Name() {
		return nil, fmt.Errorf("%w: cache built with %q, embedder is %q", domain.ErrCacheIncompatible, meta.Model, ix.embedder.Name())
	}
	if d := ix.embedder.Dimension(); d > 0 && idx.Len() > 0 && idx.Dimension() != d {
		return nil, fmt.Errorf("%w: cache dimension %d, embedder %d", domain.ErrCacheIncompatible, idx.Dimension(), d)
	}
	if !ix.opts.VerifyFingerprint {
		return idx, nil
	}
	fp, err := Fingerprint(src.Path, src.Kind, ix.chunker.MaxChunkSize(), meta.Model, meta.Dimension)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debugf("index %s: source %s missing, trusting cache", src.Kind, src.Path)
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", src.Path, err)
	}
	if fp != meta.Fingerprint {
		return nil, fmt.Errorf("%w: %s changed since %s", domain.ErrCacheStale, src.Path, meta.CreatedAt.Format(time.RFC3339))
	}
	return idx, nil
}

// build runs extraction, chunking and embedding, then writes the cache entry.
func (ix *Indexer) build(ctx context.Context, src Source) (*CorpusIndex, error) {
	start := ix.now()
	if _, err := os.Stat(src.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, src.Path)
	}
	text, err := ix.extractor.Extract(ctx, src.Path, src.Kind)
	if err != nil {
		return nil, err
	}
	chunks := ix.chunker.Chunk(text)

	docs := make([]domain.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = domain.Document{ID: domain.DocumentID(src.Kind, i), Text: c}
	}
	embeddings := make(map[string]domain.Vector, len(docs))
	dimension := ix.embedder.Dimension()
	if len(chunks) > 0 {
		vecs, err := ix.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", src.Path, err)
		}
		if len(vecs) != len(docs) {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbedding, len(vecs), len(docs))
		}
		for i, v := range vecs {
			unit, err := embedding.Normalize(v)
			if err != nil {
				return nil, fmt.Errorf("embed %s: %w", docs[i].ID, err)
			}
			embeddings[docs[i].ID] = unit
		}
		dimension = len(vecs[0])
	}

	model := ix.embedder.Name()
	fp, err := Fingerprint(src.Path, src.Kind, ix.chunker.MaxChunkSize(), model, dimension)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", src.Path, err)
	}
	idx, err := New(Metadata{
		Kind:        src.Kind,
		Model:       model,
		Dimension:   dimension,
		ChunkSize:   ix.chunker.MaxChunkSize(),
		Fingerprint: fp,
		CreatedAt:   start,
	}, docs, embeddings)
	if err != nil {
		return nil, err
	}

	if src.CachePath != "" {
		if err := Save(src.CachePath, idx); err != nil {
			logger.Warnf("index %s: cache not written: %v", src.Kind, err)
		}
	}
	logger.Infow("index built",
		"kind", src.Kind,
		"source", src.Path,
		"documents", idx.Len(),
		"dimension", dimension,
		"elapsed", ix.now().Sub(start).String(),
	)
	return idx, nil
}
