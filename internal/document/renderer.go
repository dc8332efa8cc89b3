package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"mercora/backend/internal/catalog"
)

type Renderer struct {
	summaryChars int
}

func NewRenderer(summaryChars int) *Renderer {
	if summaryChars <= 0 {
		summaryChars = DefaultSummaryChars
	}
	return &Renderer{summaryChars: summaryChars}
}

// Render turns a catalog record into its canonical document. Output is
// byte-identical for identical input; optional fields that are empty are
// left out. Records with too little free text yield ErrInsufficientContent.
func (r *Renderer) Render(src catalog.Source) (*Document, error) {
	var header, content string
	var title string

	switch rec := src.(type) {
	case *catalog.Product:
		header, content = renderProduct(rec)
		title = rec.Name
	case *catalog.Article:
		header, content = renderArticle(rec)
		title = rec.Title
	default:
		return nil, fmt.Errorf("unsupported source %T", src)
	}

	if utf8.RuneCountInString(strings.TrimSpace(content)) < MinContentChars {
		return nil, fmt.Errorf("%s %s: %w", src.SourceType(), src.SourceID(), ErrInsufficientContent)
	}

	body := header + content
	return &Document{
		ID:         ID(src.SourceType(), src.SourceID()),
		SourceType: src.SourceType(),
		SourceID:   src.SourceID(),
		Title:      title,
		Key:        Key(src.SourceType(), src.SourceID()),
		Body:       body,
		Summary:    Summarize(body, r.summaryChars),
	}, nil
}

func renderProduct(p *catalog.Product) (string, string) {
	var h frontmatter
	h.field("id", p.ID)
	h.field("type", string(catalog.SourceTypeProduct))
	h.field("title", p.Name)
	h.field("slug", p.Slug)
	h.field("brand", p.Brand)
	h.field("price", money(p.EffectivePriceCents()))
	h.field("regular_price", money(p.PriceCents))
	h.field("on_sale", strconv.FormatBool(p.OnSale && p.SalePriceCents != nil))
	h.list("categories", p.Categories)
	h.list("tags", p.Tags)
	h.list("use_cases", p.UseCases)
	if p.Rating != nil {
		h.field("rating", strconv.FormatFloat(*p.Rating, 'f', 1, 64))
		h.field("review_count", strconv.Itoa(p.ReviewCount))
	}
	h.time("created_at", p.CreatedAt)
	h.time("updated_at", p.UpdatedAt)

	var c sections
	c.paragraph(p.ShortDescription)
	c.section("Description", p.LongDescription)

	var specs []string
	for _, a := range p.Attributes {
		if a.Key == "" {
			continue
		}
		specs = append(specs, fmt.Sprintf("- %s: %s", a.Key, a.Value))
	}
	c.section("Specifications", strings.Join(specs, "\n"))
	c.section("Media", bullets(p.Media))
	c.section("AI Notes", p.AINotes)

	return h.String() + titleLine(p.Name), c.String()
}

func renderArticle(a *catalog.Article) (string, string) {
	var h frontmatter
	h.field("id", a.ID)
	h.field("type", string(catalog.SourceTypeArticle))
	h.field("title", a.Title)
	h.field("slug", a.Slug)
	h.field("category", a.Category)
	h.list("tags", a.Tags)
	h.field("author", a.Author)
	if a.PublishedAt != nil {
		h.time("published_at", *a.PublishedAt)
	}
	h.time("updated_at", a.UpdatedAt)

	var c sections
	c.paragraph(a.Excerpt)
	c.section("Content", a.Body)
	c.section("AI Notes", a.AINotes)

	return h.String() + titleLine(a.Title), c.String()
}

type frontmatter struct {
	lines []string
}

func (f *frontmatter) field(name, value string) {
	value = oneLine(value)
	if value == "" {
		return
	}
	f.lines = append(f.lines, name+": "+value)
}

func (f *frontmatter) list(name string, values []string) {
	var clean []string
	for _, v := range values {
		if v = oneLine(v); v != "" {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return
	}
	f.lines = append(f.lines, name+": ["+strings.Join(clean, ", ")+"]")
}

func (f *frontmatter) time(name string, t time.Time) {
	if t.IsZero() {
		return
	}
	f.field(name, t.UTC().Format(time.RFC3339))
}

func (f *frontmatter) String() string {
	return "---\n" + strings.Join(f.lines, "\n") + "\n---\n\n"
}

type sections struct {
	b strings.Builder
}

func (s *sections) paragraph(text string) {
	if text = strings.TrimSpace(text); text == "" {
		return
	}
	s.b.WriteString(text)
	s.b.WriteString("\n\n")
}

func (s *sections) section(heading, text string) {
	if text = strings.TrimSpace(text); text == "" {
		return
	}
	s.b.WriteString("## ")
	s.b.WriteString(heading)
	s.b.WriteString("\n\n")
	s.b.WriteString(text)
	s.b.WriteString("\n\n")
}

func (s *sections) String() string {
	return s.b.String()
}

func titleLine(title string) string {
	if title = oneLine(title); title == "" {
		return ""
	}
	return "# " + title + "\n\n"
}

func bullets(items []string) string {
	var lines []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, "- "+it)
		}
	}
	return strings.Join(lines, "\n")
}

// money formats minor units as major units, e.g. 2999 -> "$29.99".
func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
