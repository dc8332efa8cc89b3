package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CSVSource serves the catalog from the merchandising team's CSV exports.
// Products use the products.csv layout (id, name, slug, categories, price,
// sale_price, on_sale, short_description, long_description, tags, use_cases,
// attributes, ai_notes); articles use (id, slug, title, category, tags, author,
// excerpt, body, ai_notes, published_at). Prices are in cents.
type CSVSource struct {
	productsPath string
	articlesPath string
}

func NewCSVSource(productsPath, articlesPath string) *CSVSource {
	return &CSVSource{productsPath: productsPath, articlesPath: articlesPath}
}

func (s *CSVSource) ListProducts(ctx context.Context) ([]Product, []RowError, error) {
	if s.productsPath == "" {
		return nil, nil, nil
	}
	f, err := os.Open(s.productsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open products csv: %w", err)
	}
	defer f.Close()
	return ReadProductsCSV(f)
}

func (s *CSVSource) ListArticles(ctx context.Context) ([]Article, []RowError, error) {
	if s.articlesPath == "" {
		return nil, nil, nil
	}
	f, err := os.Open(s.articlesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open articles csv: %w", err)
	}
	defer f.Close()
	return ReadArticlesCSV(f)
}

func (s *CSVSource) GetProductSummaries(ctx context.Context, ids []string) ([]ProductSummary, error) {
	products, _, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	summaries := make([]ProductSummary, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			summaries = append(summaries, p.Summary())
		}
	}
	return summaries, nil
}

func (s *CSVSource) CountProducts(ctx context.Context) (int, error) {
	products, _, err := s.ListProducts(ctx)
	return len(products), err
}

func (s *CSVSource) CountArticles(ctx context.Context) (int, error) {
	articles, _, err := s.ListArticles(ctx)
	return len(articles), err
}

var errMissingID = errors.New("missing id")

// ReadProductsCSV parses a products export. Rows with a missing id or an
// unparsable number are returned as RowErrors and left out of the products.
func ReadProductsCSV(r io.Reader) ([]Product, []RowError, error) {
	rows, err := readRecords(r, "id", "name", "price")
	if err != nil {
		return nil, nil, err
	}

	products := make([]Product, 0, len(rows))
	var rowErrs []RowError
	for i, row := range rows {
		p, err := parseProductRow(row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Type: SourceTypeProduct, Row: i + 2, SourceID: row["id"], Err: err})
			continue
		}
		products = append(products, p)
	}
	return products, rowErrs, nil
}

func parseProductRow(row map[string]string) (Product, error) {
	if row["id"] == "" {
		return Product{}, errMissingID
	}
	price, err := parseCents(row["price"])
	if err != nil {
		return Product{}, fmt.Errorf("price: %w", err)
	}
	p := Product{
		ID:               row["id"],
		Slug:             row["slug"],
		Name:             row["name"],
		Brand:            row["brand"],
		PriceCents:       price,
		OnSale:           isOnSale(row["on_sale"]),
		Categories:       splitList(row["categories"]),
		Tags:             splitList(row["tags"]),
		UseCases:         splitList(row["use_cases"]),
		ShortDescription: row["short_description"],
		LongDescription:  row["long_description"],
		Attributes:       parseAttributes(row["attributes"]),
		Media:            splitList(row["media"]),
		AINotes:          row["ai_notes"],
	}
	if v := row["sale_price"]; v != "" {
		sale, err := parseCents(v)
		if err != nil {
			return Product{}, fmt.Errorf("sale_price: %w", err)
		}
		p.SalePriceCents = &sale
	}
	if v := row["rating"]; v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Product{}, fmt.Errorf("rating: %w", err)
		}
		p.Rating = &rating
	}
	if v := row["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.UpdatedAt = t
		}
	}
	return p, nil
}

func ReadArticlesCSV(r io.Reader) ([]Article, []RowError, error) {
	rows, err := readRecords(r, "id", "title")
	if err != nil {
		return nil, nil, err
	}

	articles := make([]Article, 0, len(rows))
	var rowErrs []RowError
	for i, row := range rows {
		if row["id"] == "" {
			rowErrs = append(rowErrs, RowError{Type: SourceTypeArticle, Row: i + 2, Err: errMissingID})
			continue
		}
		a := Article{
			ID:       row["id"],
			Slug:     row["slug"],
			Title:    row["title"],
			Category: row["category"],
			Tags:     splitList(row["tags"]),
			Author:   row["author"],
			Excerpt:  row["excerpt"],
			Body:     row["body"],
			AINotes:  row["ai_notes"],
		}
		if v := row["published_at"]; v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				a.PublishedAt = &t
			}
		}
		articles = append(articles, a)
	}
	return articles, rowErrs, nil
}

func readRecords(r io.Reader, required ...string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("csv missing required column %q", col)
		}
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseCents(v string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
}

func isOnSale(flag string) bool {
	switch flag {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAttributes reads "key:value,key:value"; entries without a colon are ignored.
func parseAttributes(v string) []Attribute {
	var attrs []Attribute
	for _, part := range strings.Split(v, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		attrs = append(attrs, Attribute{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	return attrs
}
