package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

const paragraph = "Go makes concurrency a first class citizen through goroutines and channels. " +
	"Programs can spawn thousands of goroutines cheaply and coordinate them with explicit message passing. "

func articleHTML(paragraphs int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Go Concurrency Patterns</title></head><body>`)
	b.WriteString(`<nav><a href="/">Home</a> <a href="/about#team">About</a> <a href="/about">About again</a></nav>`)
	b.WriteString(`<article><h1>Go Concurrency Patterns</h1>`)
	for i := 0; i < paragraphs; i++ {
		b.WriteString("<p>")
		b.WriteString(paragraph)
		b.WriteString("</p>")
	}
	b.WriteString(`<p>See <a href="https://github.com/golang/go">the repo</a>, `)
	b.WriteString(`<a href="mailto:gopher@example.com">mail</a> or <a href="javascript:void(0)">nothing</a>.</p>`)
	b.WriteString(`</article></body></html>`)
	return b.String()
}

func TestExtractArticle(t *testing.T) {
	t.Parallel()

	page := Extract([]byte(articleHTML(6)), "https://blog.example.com/posts/go")

	require.Contains(t, page.Title, "Concurrency")
	require.Contains(t, page.Text, "first class citizen")
	require.NotContains(t, page.Text, "  ")
	require.NotEmpty(t, page.Snippet)
	require.LessOrEqual(t, utf8.RuneCountInString(page.Snippet), MaxSnippet)
	require.True(t, Accept(page))
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	page := Extract([]byte(articleHTML(1)), "https://blog.example.com/posts/go")
	require.Equal(t, []string{
		"https://blog.example.com",
		"https://blog.example.com/about",
		"https://github.com/golang/go",
	}, page.Links)
}

func TestExtractHonoursBaseHref(t *testing.T) {
	t.Parallel()

	html := `<html><head><base href="https://cdn.example.org/docs/"></head>` +
		`<body><a href="intro.html">Intro</a></body></html>`
	page := Extract([]byte(html), "https://example.com/index.html")
	require.Equal(t, []string{"https://cdn.example.org/docs/intro.html"}, page.Links)
}

func TestExtractTruncatesContent(t *testing.T) {
	t.Parallel()

	page := Extract([]byte(articleHTML(200)), "https://example.com/long")
	require.Equal(t, MaxContent, utf8.RuneCountInString(page.Text))
}

func TestExtractFallbackUsesTitle(t *testing.T) {
	t.Parallel()

	page := Extract([]byte(`<html><head><title> Only   Title </title></head><body></body></html>`), "https://example.com/")
	require.Equal(t, "Only Title", page.Title)
	require.Empty(t, page.Text)
	require.False(t, Accept(page))
}

func TestExtractMalformedMarkupDoesNotPanic(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		nil,
		[]byte("<<<>>>"),
		[]byte("<html><body><div><p>unclosed <b>tags <i>everywhere"),
		{0xff, 0xfe, 0x00, 0x3c},
	}
	for _, in := range inputs {
		require.NotPanics(t, func() {
			_ = Extract(in, "https://example.com/")
		})
	}
}

func TestAccept(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", MinContent+1)
	exact := strings.Repeat("a", MinContent)
	tests := []struct {
		name string
		page crawler.Page
		want bool
	}{
		{name: "accepted", page: crawler.Page{Title: "T", Text: long}, want: true},
		{name: "exactly the minimum is rejected", page: crawler.Page{Title: "T", Text: exact}},
		{name: "missing title", page: crawler.Page{Text: long}},
		{name: "multibyte counted as runes", page: crawler.Page{Title: "T", Text: strings.Repeat("é", MinContent)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Accept(tc.page))
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "héll", truncate("héllo", 4))
	require.Equal(t, "hi", truncate("hi", 4))
}
