package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const productColumns = `id, slug, name, brand, price_cents, sale_price_cents, on_sale, categories, tags, use_cases, rating, review_count, short_description, long_description, attributes, media, ai_notes, created_at, updated_at`

func (r *PostgresRepo) ListProducts(ctx context.Context) ([]Product, []RowError, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE active = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var products []Product
	var rowErrs []RowError
	for n := 1; rows.Next(); n++ {
		p, err := scanProduct(rows)
		if err != nil {
			rowErrs = append(rowErrs, productRowError(n, p, err))
			continue
		}
		products = append(products, *p)
	}
	return products, rowErrs, rows.Err()
}

func (r *PostgresRepo) GetProductSummaries(ctx context.Context, ids []string) ([]ProductSummary, error) {
	if len(ids) == 0 {
		return []ProductSummary{}, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE active = TRUE AND id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]ProductSummary, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable product", "error", err)
			continue
		}
		byID[p.ID] = p.Summary()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Keep retrieval order; ids that no longer resolve are dropped.
	summaries := make([]ProductSummary, 0, len(byID))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			summaries = append(summaries, s)
			delete(byID, id)
		}
	}
	return summaries, nil
}

func (r *PostgresRepo) ListArticles(ctx context.Context) ([]Article, []RowError, error) {
	query := `SELECT id, slug, title, category, tags, author, excerpt, body, ai_notes, published_at, updated_at FROM articles WHERE published = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var articles []Article
	var rowErrs []RowError
	for n := 1; rows.Next(); n++ {
		var a Article
		var publishedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Slug, &a.Title, &a.Category, pq.Array(&a.Tags), &a.Author, &a.Excerpt, &a.Body, &a.AINotes, &publishedAt, &a.UpdatedAt); err != nil {
			rowErrs = append(rowErrs, RowError{Type: SourceTypeArticle, Row: n, SourceID: a.ID, Err: err})
			continue
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			a.PublishedAt = &t
		}
		articles = append(articles, a)
	}
	return articles, rowErrs, rows.Err()
}

func (r *PostgresRepo) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE active = TRUE`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountArticles(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE published = TRUE`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

// scanProduct returns the partly read product alongside the error when only
// its attributes fail to decode, so callers can still name it.
func scanProduct(s scanner) (*Product, error) {
	var p Product
	var salePrice sql.NullInt64
	var rating sql.NullFloat64
	var attrs []byte

	err := s.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Brand, &p.PriceCents, &salePrice, &p.OnSale,
		pq.Array(&p.Categories), pq.Array(&p.Tags), pq.Array(&p.UseCases),
		&rating, &p.ReviewCount, &p.ShortDescription, &p.LongDescription,
		&attrs, pq.Array(&p.Media), &p.AINotes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if salePrice.Valid {
		v := salePrice.Int64
		p.SalePriceCents = &v
	}
	if rating.Valid {
		v := rating.Float64
		p.Rating = &v
	}

	p.Attributes, err = decodeAttributes(attrs)
	if err != nil {
		return &p, fmt.Errorf("product %s: %w", p.ID, err)
	}
	return &p, nil
}

func productRowError(n int, p *Product, err error) RowError {
	re := RowError{Type: SourceTypeProduct, Row: n, Err: err}
	if p != nil {
		re.SourceID = p.ID
	}
	return re
}

// decodeAttributes turns the JSONB attribute object into a key-sorted list so
// rendering is stable regardless of how Postgres orders object keys.
func decodeAttributes(raw []byte) ([]Attribute, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]Attribute, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, Attribute{Key: k, Value: attributeValue(m[k])})
	}
	return attrs, nil
}

func attributeValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
