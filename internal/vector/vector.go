// Package vector defines the vector index contract shared by the indexer and
// the retrieval path, independent of the backing store.
package vector

import (
	"context"
	"errors"
)

var ErrIndexUnavailable = errors.New("vector index unavailable")

type Metadata struct {
	SourceType string `json:"sourceType"`
	SourceID   string `json:"sourceId"`
	Title      string `json:"title,omitempty"`
	Summary    string `json:"summary"`
	Model      string `json:"model,omitempty"`
}

type Entry struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

type Match struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Index is a nearest-neighbour store keyed by document id. Upsert replaces
// any existing entry with the same id.
type Index interface {
	ListIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, values []float32, topK int) ([]Match, error)
	Count(ctx context.Context) (int, error)
}

// Batches splits items into consecutive chunks of at most size elements.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
