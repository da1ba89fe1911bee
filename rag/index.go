package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/itsneelabh/fraudmind/core"
)

// Document is one indexed policy rule with its retrieval metadata.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type indexEntry struct {
	Document Document  `json:"document"`
	Vector   []float64 `json:"vector"`
}

// Index is a persistent cosine-similarity vector index. Vectors live in
// memory; every mutation is flushed to a JSON snapshot guarded by a
// cross-process file lock, so the collection survives restarts and the
// rebuild path (clear then bulk upsert).
//
// Reads may run concurrently; writers hold exclusive semantics.
type Index struct {
	mu       sync.RWMutex
	path     string
	lock     *flock.Flock
	embedder Embedder
	entries  map[string]indexEntry
	logger   core.Logger
}

// NewIndex opens (or creates) the collection stored under dir.
func NewIndex(dir, collection string, embedder Embedder, logger core.Logger) (*Index, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("engine/rag")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewEngineError("rag.NewIndex", "vector", err)
	}

	path := filepath.Join(dir, collection+".json")
	idx := &Index{
		path:     path,
		lock:     flock.New(path + ".lock"),
		embedder: embedder,
		entries:  make(map[string]indexEntry),
		logger:   logger,
	}

	if err := idx.load(); err != nil {
		return nil, err
	}

	logger.Info("Initialized vector index", map[string]interface{}{
		"path":      path,
		"documents": len(idx.entries),
	})

	return idx, nil
}

func (i *Index) load() error {
	if err := i.lock.Lock(); err != nil {
		return core.NewEngineError("rag.load", "vector", err)
	}
	defer func() { _ = i.lock.Unlock() }()

	data, err := os.ReadFile(i.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return core.NewEngineError("rag.load", "vector", err)
	}

	var entries map[string]indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return core.NewEngineError("rag.load", "vector",
			fmt.Errorf("%w: corrupt index snapshot: %v", core.ErrVectorStore, err))
	}

	i.entries = entries
	return nil
}

// persist writes the current snapshot. Callers must hold i.mu.
func (i *Index) persist() error {
	data, err := json.Marshal(i.entries)
	if err != nil {
		return core.NewEngineError("rag.persist", "vector", err)
	}

	if err := i.lock.Lock(); err != nil {
		return core.NewEngineError("rag.persist", "vector", err)
	}
	defer func() { _ = i.lock.Unlock() }()

	tmp := i.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewEngineError("rag.persist", "vector", err)
	}
	if err := os.Rename(tmp, i.path); err != nil {
		return core.NewEngineError("rag.persist", "vector", err)
	}
	return nil
}

// Upsert embeds and stores the documents, replacing any entries with the
// same id.
func (i *Index) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	contents := make([]string, len(docs))
	for j, d := range docs {
		contents[j] = d.Content
	}

	vectors, err := i.embedder.EmbedTexts(ctx, contents)
	if err != nil {
		return core.NewEngineError("rag.Upsert", "vector",
			fmt.Errorf("%w: %v", core.ErrVectorStore, err))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for j, d := range docs {
		i.entries[d.ID] = indexEntry{Document: d, Vector: vectors[j]}
	}

	if err := i.persist(); err != nil {
		return err
	}

	i.logger.Info("Upserted documents to vector index", map[string]interface{}{
		"count": len(docs),
		"total": len(i.entries),
	})
	return nil
}

// Query embeds the text and returns the topK most similar documents by
// cosine similarity, most similar first.
func (i *Index) Query(ctx context.Context, text string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 3
	}

	queryVec, err := i.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, core.NewEngineError("rag.Query", "vector",
			fmt.Errorf("%w: %v", core.ErrVectorStore, err))
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	type scored struct {
		doc   Document
		score float64
	}

	results := make([]scored, 0, len(i.entries))
	for _, entry := range i.entries {
		results = append(results, scored{
			doc:   entry.Document,
			score: cosineSimilarity(queryVec, entry.Vector),
		})
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].score != results[b].score {
			return results[a].score > results[b].score
		}
		return results[a].doc.ID < results[b].doc.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	docs := make([]Document, len(results))
	for j, r := range results {
		docs[j] = r.doc
	}
	return docs, nil
}

// Clear discards all vectors in the collection. Administrative operation
// used by the ingest rebuild path.
func (i *Index) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = make(map[string]indexEntry)
	if err := i.persist(); err != nil {
		return err
	}

	i.logger.Info("Cleared vector index", nil)
	return nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for j := 0; j < n; j++ {
		dot += a[j] * b[j]
		normA += a[j] * a[j]
		normB += b[j] * b[j]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
