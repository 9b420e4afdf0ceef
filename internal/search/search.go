// Package search implements the query side of the article index: building
// full-text expressions and choosing between the ranked index and the
// substring scan.
package search

import (
	"context"
	"strings"
	"unicode"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

// DefaultLimit caps result sets when callers pass a non-positive limit.
const DefaultLimit = 100

// Backend labels reported to metrics.
const (
	BackendFullText = "fulltext"
	BackendScan     = "scan"
)

// Backend answers a query with articles in backend-specific order.
type Backend interface {
	Search(ctx context.Context, query string, limit int) ([]crawler.Article, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, query string, limit int) ([]crawler.Article, error)

// Search calls f.
func (f BackendFunc) Search(ctx context.Context, query string, limit int) ([]crawler.Article, error) {
	return f(ctx, query, limit)
}

// Limit applies DefaultLimit to non-positive values.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Terms splits q on whitespace.
func Terms(q string) []string {
	return strings.Fields(q)
}

// MatchExpression builds an FTS5 MATCH expression that ranks the whole query
// as a phrase or any of its whitespace-separated terms as a prefix:
//
//	"<phrase>" OR ("t1"* OR "t2"*)
//
// Double quotes inside the query are doubled. Every term is quoted, so FTS5
// operators and punctuation typed by users are matched literally.
func MatchExpression(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	safe := strings.ReplaceAll(q, `"`, `""`)
	terms := Terms(safe)
	prefixed := make([]string, 0, len(terms))
	for _, t := range terms {
		prefixed = append(prefixed, `"`+t+`"*`)
	}
	return `"` + strings.Join(terms, " ") + `" OR (` + strings.Join(prefixed, " OR ") + `)`
}

// PrefixTSQuery builds a to_tsquery argument OR-ing every term as a prefix
// match ('t1':* | 't2':*). Characters other than letters and digits are
// dropped; an empty string means no usable terms remain.
func PrefixTSQuery(q string) string {
	var parts []string
	for _, t := range Terms(q) {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, t)
		if cleaned == "" {
			continue
		}
		parts = append(parts, "'"+cleaned+"':*")
	}
	return strings.Join(parts, " | ")
}

// LikePattern wraps q in % wildcards, escaping the LIKE metacharacters with
// a backslash. Use with ESCAPE '\'.
func LikePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
