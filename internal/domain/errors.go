package domain

import "errors"

// Errors returned by the retrieval pipeline. Callers match them with errors.Is;
// producers wrap them with the offending path or name.
var (
	// ErrSourceNotFound indicates a source artifact is missing when a cold build is required.
	ErrSourceNotFound = errors.New("source not found")

	// ErrUnsupportedKind indicates an extraction request for an unknown kind.
	ErrUnsupportedKind = errors.New("unsupported source kind")

	// ErrExtraction indicates the source exists but its text could not be read.
	ErrExtraction = errors.New("text extraction failed")

	// ErrCacheIncompatible indicates a cache entry written by another schema or model.
	ErrCacheIncompatible = errors.New("cache entry incompatible")

	// ErrCacheStale indicates the cache fingerprint no longer matches the source.
	ErrCacheStale = errors.New("cache entry stale")

	// ErrIndexCorrupt indicates a corpus index violates its integrity invariant.
	ErrIndexCorrupt = errors.New("corpus index corrupt")

	// ErrInvalidInput indicates blank or malformed input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrZeroVector indicates an embedding that cannot be normalised.
	ErrZeroVector = errors.New("zero vector")

	// ErrDimensionMismatch indicates vectors of different sizes were compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbedding wraps failures of the embedding service.
	ErrEmbedding = errors.New("embedding failed")

	// ErrCorpusNotFound indicates a query named a corpus the service does not hold.
	ErrCorpusNotFound = errors.New("corpus not found")

	// ErrNoMatch indicates the corpus is empty.
	ErrNoMatch = errors.New("no relevant document found")

	// ErrGeneration wraps failures of the answer generator.
	ErrGeneration = errors.New("answer generation failed")
)
