package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mercora/backend/internal/catalog"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"101", "101"},
		{"Arctic Pulse Tool", "arctic-pulse-tool"},
		{"  --SKU/42__b  ", "sku-42-b"},
		{"Café Crème", "café-crème"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), tt.in)
	}

	fallback := Slug("///")
	assert.Len(t, fallback, 12)
	assert.Equal(t, fallback, Slug("///"))
	assert.NotEqual(t, fallback, Slug("***"))
}

func TestIDAndKey(t *testing.T) {
	assert.Equal(t, "product_abc-1", ID(catalog.SourceTypeProduct, "ABC 1"))
	assert.Equal(t, "article_md/abc-1.md", Key(catalog.SourceTypeArticle, "ABC 1"))
	assert.Equal(t, []string{"product_md/", "article_md/"}, ManagedPrefixes())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "short", Summarize("short", 10))
	assert.Equal(t, "abc", Summarize("abcdef", 3))
	assert.Equal(t, "abcdef", Summarize("abcdef", 0))

	body := strings.Repeat("é", 5)
	got := Summarize(body, 2)
	assert.Equal(t, "éé", got)
	assert.True(t, strings.HasPrefix(body, got))
}
