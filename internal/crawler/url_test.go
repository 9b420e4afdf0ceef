package crawler

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com", CleanURL("example.com"))
	assert.Equal(t, "https://example.com", CleanURL("  example.com "))
	assert.Equal(t, "http://example.com", CleanURL("http://example.com"))
	assert.Equal(t, "https://example.com/x", CleanURL("https://example.com/x"))
}

func TestParseStartURL(t *testing.T) {
	t.Parallel()

	u, err := ParseStartURL("news.example.com/world")
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "news.example.com", u.Host)

	for _, raw := range []string{"http://", "https://%zz", "https://"} {
		_, err := ParseStartURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTP://Example.COM:80/path":       "http://example.com/path",
		"https://example.com:443/a#frag":   "https://example.com/a",
		"https://example.com/?b=2&a=1":     "https://example.com?a=1&b=2",
		"https://Example.com/":             "https://example.com",
		"https://example.com":              "https://example.com",
		"https://example.com/a/":           "https://example.com/a/",
		"https://example.com:8443/x":       "https://example.com:8443/x",
		"https://example.com/search?q=a+b": "https://example.com/search?q=a+b",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeURL("http://[::1")
	assert.Error(t, err)
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/news/today.html")
	require.NoError(t, err)

	got, ok := ResolveLink(base, "../world/story?id=3#comments")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/world/story?id=3", got)

	got, ok = ResolveLink(base, "//cdn.example.org/a")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.org/a", got)

	for _, href := range []string{"", "   ", "mailto:desk@example.com", "javascript:void(0)", "ftp://example.com/f"} {
		_, ok := ResolveLink(base, href)
		assert.False(t, ok, href)
	}
	got, ok = ResolveLink(base, "/")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", got, "root link shares the seed key")

	_, ok = ResolveLink(nil, "/a")
	assert.False(t, ok)
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "www.youtube.com", HostOf("https://WWW.YouTube.com:443/watch"))
	assert.Equal(t, "", HostOf("http://[::1"))
}

func TestSourceDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := Source{IntervalMinutes: 60}
	assert.True(t, fresh.Due(now), "never crawled")

	last := now.Add(-30 * time.Minute)
	recent := Source{IntervalMinutes: 60, LastCrawledAt: &last}
	assert.False(t, recent.Due(now))
	assert.True(t, recent.Due(now.Add(30*time.Minute)), "exactly one interval later")
}

func TestPageIndexable(t *testing.T) {
	t.Parallel()

	body := make([]rune, MinContentRunes)
	for i := range body {
		body[i] = 'é'
	}
	assert.False(t, Page{Title: "T", Text: string(body)}.Indexable(), "length must exceed the minimum")
	assert.True(t, Page{Title: "T", Text: string(body) + "!"}.Indexable())
	assert.False(t, Page{Text: string(body) + "!"}.Indexable())
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultMaxPages, cfg.MaxPages)
	assert.Equal(t, DefaultMaxQueue, cfg.MaxQueue)
	assert.Equal(t, DefaultDepth, cfg.DefaultDepth)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeout)

	assert.Error(t, Config{MaxPages: -1}.Validate())
	assert.NoError(t, Config{}.Validate())
}

func TestNewSourceNormalize(t *testing.T) {
	t.Parallel()

	n, err := NewSource{URL: " News.Example.com/#top "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com", n.URL)
	assert.Equal(t, "news.example.com", n.Name)
	assert.Equal(t, DefaultIntervalMinutes, n.IntervalMinutes)
	assert.Equal(t, DefaultSourceDepth, n.Depth)

	n, err = NewSource{URL: "http://blog.test", Name: "Blog", IntervalMinutes: 5, Depth: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "Blog", n.Name)
	assert.Equal(t, 5, n.IntervalMinutes)
	assert.Equal(t, 2, n.Depth)

	_, err = NewSource{URL: "http://"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestLimitOr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, LimitOr(0, 10))
	assert.Equal(t, 3, LimitOr(3, 10))
}
