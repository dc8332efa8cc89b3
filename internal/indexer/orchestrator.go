// Package indexer rebuilds the document store and vector index from the
// catalog. A rebuild is best effort: record failures are reported, never
// returned.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mercora/backend/internal/catalog"
	"mercora/backend/internal/docstore"
	"mercora/backend/internal/document"
	"mercora/backend/internal/middleware"
	"mercora/backend/internal/vector"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Config struct {
	BatchSize   int
	Concurrency int
}

// Orchestrator is not safe for overlapping runs against the same index;
// callers serialize ReindexAll.
type Orchestrator struct {
	source   catalog.Reader
	renderer *document.Renderer
	docs     docstore.Store
	embedder Embedder
	index    vector.Index
	cfg      Config
}

func New(src catalog.Reader, r *document.Renderer, docs docstore.Store, e Embedder, idx vector.Index, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{source: src, renderer: r, docs: docs, embedder: e, index: idx, cfg: cfg}
}

// result is the per-record outcome of the render/store/embed stage. src is
// nil for records rejected while listing.
type result struct {
	src     catalog.Source
	detail  Detail
	key     string
	written bool
	entry   *vector.Entry
}

var sourceTypes = []catalog.SourceType{catalog.SourceTypeProduct, catalog.SourceTypeArticle}

func (o *Orchestrator) ReindexAll(ctx context.Context) *Report {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	ctx = middleware.WithRunID(ctx, report.RunID)
	slog.InfoContext(ctx, "reindex started", "model", o.embedder.Model())

	results, unlisted := o.listSources(ctx, report)
	report.Cleared = o.clear(ctx, unlisted, report)
	o.process(ctx, results)

	written := make(map[string]bool)
	var entries []*vector.Entry
	dim := 0
	for i := range results {
		r := &results[i]
		if r.written {
			written[r.key] = true
		}
		if r.entry == nil {
			continue
		}
		switch {
		case dim == 0:
			dim = len(r.entry.Values)
		case len(r.entry.Values) != dim:
			r.fail(fmt.Errorf("embedding dimension %d differs from %d", len(r.entry.Values), dim))
			continue
		}
		entries = append(entries, r.entry)
	}

	o.upsert(ctx, entries, results)
	report.Pruned = o.prune(ctx, written, unlisted, report)

	for _, r := range results {
		report.Details = append(report.Details, r.detail)
	}
	report.finish()

	slog.InfoContext(ctx, "reindex finished",
		"considered", report.TotalConsidered,
		"indexed", report.TotalIndexed,
		"skipped", report.TotalSkipped,
		"errors", report.TotalErrors,
		"duration_ms", report.ExecutionTimeMs)
	return report
}

func (r *result) fail(err error) {
	r.detail.Status = StatusError
	r.detail.Error = err.Error()
	r.entry = nil
}

// clear removes every existing vector so no entry from an earlier
// generation survives. Vectors of a type whose listing failed are kept.
// Failure here is logged and reported, not fatal.
func (o *Orchestrator) clear(ctx context.Context, unlisted map[catalog.SourceType]bool, report *Report) int {
	ids, err := o.index.ListIDs(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list vector ids, stale entries may remain", "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("clear: %v", err))
		return 0
	}

	if len(unlisted) > 0 {
		ids = slices.DeleteFunc(ids, func(id string) bool {
			for t := range unlisted {
				if strings.HasPrefix(id, document.IDPrefix(t)) {
					return true
				}
			}
			return false
		})
	}

	cleared := 0
	for _, batch := range vector.Batches(ids, o.cfg.BatchSize) {
		if err := o.index.Delete(ctx, batch); err != nil {
			slog.ErrorContext(ctx, "failed to delete vector batch, stale entries may remain", "size", len(batch), "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("clear: %v", err))
			continue
		}
		cleared += len(batch)
	}
	return cleared
}

// listSources enumerates products then articles in catalog order. Unreadable
// rows and records whose document id is already taken come back as failed
// results that are never stored or embedded. The returned set names the
// source types whose listing failed outright.
func (o *Orchestrator) listSources(ctx context.Context, report *Report) ([]result, map[catalog.SourceType]bool) {
	var results []result
	unlisted := make(map[catalog.SourceType]bool)
	owners := make(map[string]string)

	add := func(src catalog.Source) {
		res := result{src: src, detail: Detail{
			ID:         document.ID(src.SourceType(), src.SourceID()),
			SourceType: string(src.SourceType()),
			SourceID:   src.SourceID(),
		}}
		if owner, taken := owners[res.detail.ID]; taken {
			slog.WarnContext(ctx, "skipping record with duplicate document id", "id", res.detail.ID, "source_id", src.SourceID(), "kept_source_id", owner)
			res.src = nil
			res.fail(fmt.Errorf("duplicate document id %s, already used by source id %q", res.detail.ID, owner))
		} else {
			owners[res.detail.ID] = src.SourceID()
		}
		results = append(results, res)
	}
	reject := func(rowErrs []catalog.RowError) {
		for _, rowErr := range rowErrs {
			slog.WarnContext(ctx, "skipping unreadable catalog row", "source_type", rowErr.Type, "row", rowErr.Row, "error", rowErr.Err)
			res := result{detail: Detail{SourceType: string(rowErr.Type), SourceID: rowErr.SourceID}}
			if rowErr.SourceID != "" {
				res.detail.ID = document.ID(rowErr.Type, rowErr.SourceID)
			}
			res.fail(rowErr)
			results = append(results, res)
		}
	}
	listFailed := func(t catalog.SourceType, err error) {
		slog.ErrorContext(ctx, "failed to list catalog records, keeping their previous documents and vectors", "source_type", t, "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("list %ss: %v", t, err))
		report.listFailures++
		unlisted[t] = true
	}

	products, productErrs, err := o.source.ListProducts(ctx)
	if err != nil {
		listFailed(catalog.SourceTypeProduct, err)
	}
	for i := range products {
		add(&products[i])
	}
	reject(productErrs)

	articles, articleErrs, err := o.source.ListArticles(ctx)
	if err != nil {
		listFailed(catalog.SourceTypeArticle, err)
	}
	for i := range articles {
		add(&articles[i])
	}
	reject(articleErrs)

	return results, unlisted
}

// process runs the render/store/embed stage on every listed record.
func (o *Orchestrator) process(ctx context.Context, results []result) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i := range results {
		if results[i].src == nil {
			continue
		}
		g.Go(func() error {
			results[i] = o.processOne(ctx, results[i].src)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) processOne(ctx context.Context, src catalog.Source) result {
	res := result{detail: Detail{
		ID:         document.ID(src.SourceType(), src.SourceID()),
		SourceType: string(src.SourceType()),
		SourceID:   src.SourceID(),
	}}

	doc, err := o.renderer.Render(src)
	if errors.Is(err, document.ErrInsufficientContent) {
		slog.WarnContext(ctx, "skipping record with insufficient content", "id", res.detail.ID)
		res.detail.Status = StatusSkipped
		res.detail.Error = err.Error()
		return res
	}
	if err != nil {
		res.fail(fmt.Errorf("render: %w", err))
		return res
	}

	if err := o.docs.Put(ctx, doc.Key, []byte(doc.Body)); err != nil {
		slog.ErrorContext(ctx, "failed to store document", "key", doc.Key, "error", err)
		res.fail(fmt.Errorf("store: %w", err))
		return res
	}
	res.key = doc.Key
	res.written = true

	vec, err := o.embedder.Embed(ctx, doc.Body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to embed document", "id", doc.ID, "error", err)
		res.fail(fmt.Errorf("embed: %w", err))
		return res
	}

	res.detail.Status = StatusIndexed
	res.entry = &vector.Entry{
		ID:     doc.ID,
		Values: vec,
		Metadata: vector.Metadata{
			SourceType: string(doc.SourceType),
			SourceID:   doc.SourceID,
			Title:      doc.Title,
			Summary:    doc.Summary,
			Model:      o.embedder.Model(),
		},
	}
	return res
}

func (o *Orchestrator) upsert(ctx context.Context, entries []*vector.Entry, results []result) {
	if len(entries) == 0 {
		return
	}
	byID := make(map[string]*result, len(results))
	for i := range results {
		if results[i].entry != nil {
			byID[results[i].entry.ID] = &results[i]
		}
	}

	for _, batch := range vector.Batches(entries, o.cfg.BatchSize) {
		vals := make([]vector.Entry, 0, len(batch))
		for _, e := range batch {
			vals = append(vals, *e)
		}
		if err := o.index.Upsert(ctx, vals); err != nil {
			slog.ErrorContext(ctx, "failed to upsert vector batch", "size", len(batch), "error", err)
			for _, e := range batch {
				if r, ok := byID[e.ID]; ok {
					r.fail(fmt.Errorf("upsert: %w", err))
				}
			}
		}
	}
}

// prune deletes stored documents under managed prefixes that this run did
// not write. Prefixes of a type whose listing failed are left alone.
func (o *Orchestrator) prune(ctx context.Context, written map[string]bool, unlisted map[catalog.SourceType]bool, report *Report) int {
	pruned := 0
	for _, t := range sourceTypes {
		if unlisted[t] {
			continue
		}
		prefix := document.Prefix(t)
		keys, err := o.docs.List(ctx, prefix)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("prune %s: %v", prefix, err))
			continue
		}
		for _, k := range keys {
			if written[k] {
				continue
			}
			if err := o.docs.Delete(ctx, k); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("prune %s: %v", k, err))
				continue
			}
			pruned++
		}
	}
	return pruned
}
