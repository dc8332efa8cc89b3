// Package catalog reads the storefront's source-of-truth records: products and
// knowledge articles. The RAG pipeline only ever reads from it.
package catalog

import (
	"context"
	"fmt"
	"time"
)

type SourceType string

const (
	SourceTypeProduct SourceType = "product"
	SourceTypeArticle SourceType = "article"
)

// Source is a catalog record the renderer can turn into a document.
// It is implemented by *Product and *Article only.
type Source interface {
	SourceID() string
	SourceType() SourceType
	isSource()
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Product struct {
	ID               string      `json:"id"`
	Slug             string      `json:"slug"`
	Name             string      `json:"name"`
	Brand            string      `json:"brand,omitempty"`
	PriceCents       int64       `json:"price_cents"`
	SalePriceCents   *int64      `json:"sale_price_cents,omitempty"`
	OnSale           bool        `json:"on_sale"`
	Categories       []string    `json:"categories,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
	UseCases         []string    `json:"use_cases,omitempty"`
	Rating           *float64    `json:"rating,omitempty"`
	ReviewCount      int         `json:"review_count,omitempty"`
	ShortDescription string      `json:"short_description,omitempty"`
	LongDescription  string      `json:"long_description,omitempty"`
	Attributes       []Attribute `json:"attributes,omitempty"`
	Media            []string    `json:"media,omitempty"`
	AINotes          string      `json:"ai_notes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (p *Product) SourceID() string       { return p.ID }
func (p *Product) SourceType() SourceType { return SourceTypeProduct }
func (p *Product) isSource()              {}

// EffectivePriceCents is the price a shopper pays today.
func (p *Product) EffectivePriceCents() int64 {
	if p.OnSale && p.SalePriceCents != nil {
		return *p.SalePriceCents
	}
	return p.PriceCents
}

type Article struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Author      string     `json:"author,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Body        string     `json:"body,omitempty"`
	AINotes     string     `json:"ai_notes,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a *Article) SourceID() string       { return a.ID }
func (a *Article) SourceType() SourceType { return SourceTypeArticle }
func (a *Article) isSource()              {}

// ProductSummary is the card-sized view the chat UI shows next to an answer.
type ProductSummary struct {
	ID               string  `json:"id"`
	Slug             string  `json:"slug"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	RegularPrice     float64 `json:"regular_price"`
	OnSale           bool    `json:"on_sale"`
	ImageURL         string  `json:"image_url,omitempty"`
	ShortDescription string  `json:"short_description,omitempty"`
}

func (p *Product) Summary() ProductSummary {
	s := ProductSummary{
		ID:               p.ID,
		Slug:             p.Slug,
		Name:             p.Name,
		Price:            float64(p.EffectivePriceCents()) / 100,
		RegularPrice:     float64(p.PriceCents) / 100,
		OnSale:           p.OnSale && p.SalePriceCents != nil,
		ShortDescription: p.ShortDescription,
	}
	if len(p.Media) > 0 {
		s.ImageURL = p.Media[0]
	}
	return s
}

// RowError is one catalog row that could not be read. The rows around it
// are still listed.
type RowError struct {
	Type     SourceType
	Row      int    // 1-based line in a CSV file, position in a query result otherwise
	SourceID string // empty when the id itself is missing
	Err      error
}

func (e RowError) Error() string {
	if e.SourceID != "" {
		return fmt.Sprintf("%s %s (row %d): %v", e.Type, e.SourceID, e.Row, e.Err)
	}
	return fmt.Sprintf("%s row %d: %v", e.Type, e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Reader is what the indexing orchestrator enumerates. A non-nil error means
// the listing as a whole failed; unreadable rows come back as RowErrors next
// to the rows that were read.
type Reader interface {
	ListProducts(ctx context.Context) ([]Product, []RowError, error)
	ListArticles(ctx context.Context) ([]Article, []RowError, error)
}

// Repository is the full read surface used by the server.
type Repository interface {
	Reader
	GetProductSummaries(ctx context.Context, ids []string) ([]ProductSummary, error)
	CountProducts(ctx context.Context) (int, error)
	CountArticles(ctx context.Context) (int, error)
}
