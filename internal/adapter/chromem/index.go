// Package chromem is an embedded vector index for local runs and tests.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"mercora/backend/internal/vector"
)

const (
	documentsCollection = "catalog_documents"
	metaCollection      = "catalog_documents_meta"
	dimensionDocID      = "dimension"
)

var errNoEmbedder = errors.New("chromem index stores precomputed embeddings only")

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// Index implements vector.Index on a chromem-go collection. chromem has no
// list call, so the vector dimension is kept in a side collection and used
// to scan every document with a full-size query.
type Index struct {
	docs        *chromem.Collection
	meta        *chromem.Collection
	concurrency int

	mu  sync.RWMutex
	dim int
}

// Open creates an in-memory index when path is empty, otherwise a
// persistent one stored below path.
func Open(path string, concurrency int) (*Index, error) {
	if path == "" {
		return New(chromem.NewDB(), concurrency)
	}
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return New(db, concurrency)
}

func New(db *chromem.DB, concurrency int) (*Index, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	docs, err := db.GetOrCreateCollection(documentsCollection, nil, noEmbed)
	if err != nil {
		return nil, err
	}
	meta, err := db.GetOrCreateCollection(metaCollection, nil, noEmbed)
	if err != nil {
		return nil, err
	}

	idx := &Index{docs: docs, meta: meta, concurrency: concurrency}
	if d, err := meta.GetByID(context.Background(), dimensionDocID); err == nil {
		idx.dim, _ = strconv.Atoi(d.Metadata["dimension"])
	}
	return idx, nil
}

func (i *Index) ListIDs(ctx context.Context) ([]string, error) {
	n := i.docs.Count()
	if n == 0 {
		return nil, nil
	}

	i.mu.RLock()
	dim := i.dim
	i.mu.RUnlock()
	if dim == 0 {
		return nil, fmt.Errorf("%w: unknown vector dimension for %d entries", vector.ErrIndexUnavailable, n)
	}

	unit := make([]float32, dim)
	unit[0] = 1
	res, err := i.docs.QueryEmbedding(ctx, unit, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", vector.ErrIndexUnavailable, err)
	}
	ids := make([]string, 0, len(res))
	for _, r := range res {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.docs.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("%w: delete: %v", vector.ErrIndexUnavailable, err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim := len(entries[0].Values)
	if dim == 0 {
		return fmt.Errorf("entry %s has no vector", entries[0].ID)
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if len(e.Values) != dim {
			return fmt.Errorf("entry %s has dimension %d, batch has %d", e.ID, len(e.Values), dim)
		}
		docs = append(docs, chromem.Document{
			ID:        e.ID,
			Embedding: e.Values,
			Content:   e.Metadata.Summary,
			Metadata: map[string]string{
				"sourceType": e.Metadata.SourceType,
				"sourceId":   e.Metadata.SourceID,
				"title":      e.Metadata.Title,
				"summary":    e.Metadata.Summary,
				"model":      e.Metadata.Model,
			},
		})
	}

	if err := i.setDimension(ctx, dim); err != nil {
		return err
	}
	if err := i.docs.AddDocuments(ctx, docs, i.concurrency); err != nil {
		return fmt.Errorf("%w: upsert: %v", vector.ErrIndexUnavailable, err)
	}
	return nil
}

// setDimension fixes the dimension for a new generation. Entries of another
// dimension are rejected until the index has been emptied.
func (i *Index) setDimension(ctx context.Context, dim int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.dim == dim {
		return nil
	}
	if i.dim != 0 && i.docs.Count() > 0 {
		return fmt.Errorf("index holds %d-dimensional vectors, got %d", i.dim, dim)
	}

	err := i.meta.AddDocument(ctx, chromem.Document{
		ID:        dimensionDocID,
		Embedding: []float32{1},
		Metadata:  map[string]string{"dimension": strconv.Itoa(dim)},
	})
	if err != nil {
		return fmt.Errorf("%w: record dimension: %v", vector.ErrIndexUnavailable, err)
	}
	i.dim = dim
	return nil
}

func (i *Index) Query(ctx context.Context, values []float32, topK int) ([]vector.Match, error) {
	n := min(topK, i.docs.Count())
	if n <= 0 {
		return nil, nil
	}

	res, err := i.docs.QueryEmbedding(ctx, values, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", vector.ErrIndexUnavailable, err)
	}

	matches := make([]vector.Match, 0, len(res))
	for _, r := range res {
		matches = append(matches, vector.Match{
			ID:    r.ID,
			Score: r.Similarity,
			Metadata: vector.Metadata{
				SourceType: r.Metadata["sourceType"],
				SourceID:   r.Metadata["sourceId"],
				Title:      r.Metadata["title"],
				Summary:    r.Metadata["summary"],
				Model:      r.Metadata["model"],
			},
		})
	}
	return matches, nil
}

func (i *Index) Count(context.Context) (int, error) {
	return i.docs.Count(), nil
}
