package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "product_md/101.md", []byte("first")))
	require.NoError(t, s.Put(ctx, "product_md/101.md", []byte("second")))
	require.NoError(t, s.Put(ctx, "article_md/guide.md", []byte("guide")))

	got, err := s.Get(ctx, "product_md/101.md")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	keys, err := s.List(ctx, "product_md/")
	require.NoError(t, err)
	assert.Equal(t, []string{"product_md/101.md"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"article_md/guide.md", "product_md/101.md"}, all)

	require.NoError(t, s.Delete(ctx, "product_md/101.md"))
	require.NoError(t, s.Delete(ctx, "product_md/101.md"))
	_, err = s.Get(ctx, "product_md/101.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside.md", "/etc/passwd"} {
		assert.Error(t, s.Put(context.Background(), key, []byte("x")), key)
	}
}
