package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"docqa/internal/domain"
)

// SchemaVersion is the cache entry layout written by Save.
const SchemaVersion = 1

type cacheEntry struct {
	SchemaVersion int                  `cbor:"schema_version"`
	Fingerprint   string               `cbor:"fingerprint"`
	Kind          string               `cbor:"kind"`
	Model         string               `cbor:"model"`
	Dimension     int                  `cbor:"dimension"`
	ChunkSize     int                  `cbor:"chunk_size"`
	CreatedAt     time.Time            `cbor:"created_at"`
	Documents     []domain.Document    `cbor:"documents"`
	Embeddings    map[string][]float64 `cbor:"embeddings"`
}

// schemaProbe decodes only the version so older layouts are rejected before
// the rest of the entry is interpreted.
type schemaProbe struct {
	SchemaVersion int `cbor:"schema_version"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	var err error
	if encMode, err = eo.EncMode(); err != nil {
		panic(err)
	}
	do := cbor.DecOptions{
		MaxArrayElements: 1 << 24,
		MaxMapPairs:      1 << 24,
	}
	if decMode, err = do.DecMode(); err != nil {
		panic(err)
	}
}

// Save writes idx to path atomically: the entry is encoded in memory, written
// to a temporary file in the same directory and renamed over path.
func Save(path string, idx *CorpusIndex) error {
	meta := idx.Meta()
	entry := cacheEntry{
		SchemaVersion: SchemaVersion,
		Fingerprint:   meta.Fingerprint,
		Kind:          string(meta.Kind),
		Model:         meta.Model,
		Dimension:     idx.Dimension(),
		ChunkSize:     meta.ChunkSize,
		CreatedAt:     meta.CreatedAt.UTC(),
		Documents:     idx.Documents(),
		Embeddings:    make(map[string][]float64, idx.Len()),
	}
	for i := 0; i < idx.Len(); i++ {
		entry.Embeddings[idx.Document(i).ID] = idx.Vector(i)
	}
	data, err := encMode.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	ok = true
	return nil
}

// Load decodes the cache entry at path. A missing file is returned as the
// underlying fs error; other schema versions yield ErrCacheIncompatible and
// undecodable or inconsistent entries ErrIndexCorrupt.
func Load(path string) (*CorpusIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var probe schemaProbe
	if err := decMode.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, path, err)
	}
	if probe.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema version %d, want %d", domain.ErrCacheIncompatible, path, probe.SchemaVersion, SchemaVersion)
	}
	var entry cacheEntry
	if err := decMode.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, path, err)
	}
	kind, err := domain.ParseKind(entry.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCacheIncompatible, path, err)
	}
	embeddings := make(map[string]domain.Vector, len(entry.Embeddings))
	for id, v := range entry.Embeddings {
		embeddings[id] = domain.Vector(v)
	}
	idx, err := New(Metadata{
		Kind:        kind,
		Model:       entry.Model,
		Dimension:   entry.Dimension,
		ChunkSize:   entry.ChunkSize,
		Fingerprint: entry.Fingerprint,
		CreatedAt:   entry.CreatedAt,
	}, entry.Documents, embeddings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

// Fingerprint hashes the build inputs that determine an index: the schema,
// kind, chunk size, model, dimension and the source bytes.
func Fingerprint(sourcePath string, kind domain.Kind, chunkSize int, model string, dimension int) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	var num [8]byte
	writeInt := func(n int) {
		binary.BigEndian.PutUint64(num[:], uint64(n))
		h.Write(num[:])
	}
	writeStr := func(s string) {
		writeInt(len(s))
		io.WriteString(h, s)
	}
	writeInt(SchemaVersion)
	writeStr(string(kind))
	writeInt(chunkSize)
	writeStr(model)
	writeInt(dimension)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
