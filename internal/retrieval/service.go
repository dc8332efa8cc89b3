// Package retrieval turns a question into the context block that grounds
// an assistant answer.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"mercora/backend/internal/catalog"
	"mercora/backend/internal/settings"
	"mercora/backend/internal/vector"
)

// NoContextSentinel replaces the context text when nothing was retrieved.
const NoContextSentinel = "No specific product information available for this query."

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Item struct {
	ID         string  `json:"id"`
	SourceType string  `json:"sourceType"`
	SourceID   string  `json:"sourceId"`
	Title      string  `json:"title,omitempty"`
	Summary    string  `json:"summary"`
	Score      float32 `json:"score"`
}

// ContextBlock is the query-scoped retrieval result. Text is the sentinel
// whenever Items is empty.
type ContextBlock struct {
	Items    []Item `json:"items"`
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

func (c *ContextBlock) Grounded() bool {
	return len(c.Items) > 0
}

// ProductIDs lists the source ids of every product item, in rank order.
func (c *ContextBlock) ProductIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, it := range c.Items {
		if it.SourceType != string(catalog.SourceTypeProduct) || seen[it.SourceID] {
			continue
		}
		seen[it.SourceID] = true
		ids = append(ids, it.SourceID)
	}
	return ids
}

type Config struct {
	TopK            int
	MaxContextChars int
}

type Service struct {
	embedder Embedder
	index    vector.Index
	settings *settings.Service
	logger   *QueryLogger
	cfg      Config
}

func NewService(e Embedder, idx vector.Index, set *settings.Service, l *QueryLogger, cfg Config) *Service {
	return &Service{embedder: e, index: idx, settings: set, logger: l, cfg: cfg}
}

// Retrieve never fails: embedding or index errors produce an ungrounded
// block flagged as degraded.
func (s *Service) Retrieve(ctx context.Context, question string) *ContextBlock {
	start := time.Now()
	block := &ContextBlock{}
	var retrieveErr error

	defer func() {
		if s.logger != nil {
			s.logger.Record(ctx, question, block, time.Since(start), retrieveErr)
		}
	}()

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		retrieveErr = err
		slog.WarnContext(ctx, "question embedding failed, answering without context", "error", err)
		block.Degraded = true
		block.Text = NoContextSentinel
		return block
	}

	matches, err := s.index.Query(ctx, vec, s.topK(ctx))
	if err != nil {
		retrieveErr = err
		slog.WarnContext(ctx, "vector query failed, answering without context", "error", err)
		block.Degraded = true
		block.Text = NoContextSentinel
		return block
	}

	model := s.embedder.Model()
	for _, m := range matches {
		if m.Metadata.Model != "" && m.Metadata.Model != model {
			slog.DebugContext(ctx, "skipping match from another embedding model", "id", m.ID, "model", m.Metadata.Model)
			continue
		}
		if strings.TrimSpace(m.Metadata.Summary) == "" {
			continue
		}
		block.Items = append(block.Items, Item{
			ID:         m.ID,
			SourceType: m.Metadata.SourceType,
			SourceID:   m.Metadata.SourceID,
			Title:      m.Metadata.Title,
			Summary:    m.Metadata.Summary,
			Score:      m.Score,
		})
	}

	block.Text = ContextText(block.Items, s.cfg.MaxContextChars)
	return block
}

func (s *Service) topK(ctx context.Context) int {
	k := s.cfg.TopK
	if s.settings != nil {
		if set, err := s.settings.Get(ctx); err == nil && set.SearchTopK > 0 {
			k = set.SearchTopK
		}
	}
	if k <= 0 {
		k = 5
	}
	return k
}

// ContextText joins summaries with blank lines, stopping before maxChars
// runes would be exceeded. A first summary longer than the budget is cut.
func ContextText(items []Item, maxChars int) string {
	if len(items) == 0 {
		return NoContextSentinel
	}

	var b strings.Builder
	used := 0
	for i, it := range items {
		sep := ""
		if i > 0 {
			sep = "\n\n"
		}
		n := utf8.RuneCountInString(sep) + utf8.RuneCountInString(it.Summary)
		if maxChars > 0 && used+n > maxChars {
			if i == 0 {
				b.WriteString(truncateRunes(it.Summary, maxChars))
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(it.Summary)
		used += n
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
