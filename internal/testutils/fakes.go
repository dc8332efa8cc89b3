package testutils

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder: every lowercased
// word is hashed into one of Dim buckets. Texts sharing words score higher.
type HashEmbedder struct {
	Dim       int
	ModelName string
	// FailFor, when set, returns an error for texts it rejects.
	FailFor func(text string) error

	mu    sync.Mutex
	calls []string
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim, ModelName: "hash-embedding"}
}

func (h *HashEmbedder) Model() string {
	return h.ModelName
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.calls = append(h.calls, text)
	h.mu.Unlock()

	if h.FailFor != nil {
		if err := h.FailFor(text); err != nil {
			return nil, err
		}
	}

	vec := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.Dim)]++
	}
	// keep empty texts off the zero vector
	vec[0] += 0.01
	return vec, nil
}

func (h *HashEmbedder) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}
