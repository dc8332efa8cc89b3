// Package document renders catalog records into the canonical markdown
// documents that are stored, embedded and retrieved.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"mercora/backend/internal/catalog"
)

var ErrInsufficientContent = errors.New("insufficient content")

const (
	DefaultSummaryChars = 1000
	MinContentChars     = 10
)

type Document struct {
	ID         string             `json:"id"`
	SourceType catalog.SourceType `json:"source_type"`
	SourceID   string             `json:"source_id"`
	Title      string             `json:"title"`
	Key        string             `json:"key"`
	Body       string             `json:"body"`
	Summary    string             `json:"summary"`
}

// Slug lowercases id and collapses every run of non-alphanumeric characters
// into a single hyphen. Ids with no usable characters fall back to a hash.
func Slug(id string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(id) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		sum := sha256.Sum256([]byte(id))
		return hex.EncodeToString(sum[:6])
	}
	return b.String()
}

// ID is the document and vector id for a record. It depends only on the
// source type and source id.
func ID(t catalog.SourceType, sourceID string) string {
	return IDPrefix(t) + Slug(sourceID)
}

// IDPrefix is shared by every document id of type t.
func IDPrefix(t catalog.SourceType) string {
	return string(t) + "_"
}

// Prefix is the document store prefix that holds documents of type t.
func Prefix(t catalog.SourceType) string {
	return fmt.Sprintf("%s_md/", t)
}

// Key is the document store key for a record: {sourceType}_md/{slug}.md.
func Key(t catalog.SourceType, sourceID string) string {
	return Prefix(t) + Slug(sourceID) + ".md"
}

// ManagedPrefixes lists every prefix the indexer owns in the document store.
func ManagedPrefixes() []string {
	return []string{Prefix(catalog.SourceTypeProduct), Prefix(catalog.SourceTypeArticle)}
}

// Summarize returns the first n runes of body. The result is always a prefix of body.
func Summarize(body string, n int) string {
	if n <= 0 || utf8.RuneCountInString(body) <= n {
		return body
	}
	i := 0
	for pos := range body {
		if i == n {
			return body[:pos]
		}
		i++
	}
	return body
}
