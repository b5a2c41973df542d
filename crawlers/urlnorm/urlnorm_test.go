package urlnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		href      string
		keepQuery bool
		want      string
		ok        bool
	}{
		{"empty", "https://acme.example/careers", "", false, "", false},
		{"whitespace", "https://acme.example/careers", "   ", false, "", false},
		{"mailto passes through", "https://acme.example", "mailto:jobs@acme.example", false, "mailto:jobs@acme.example", true},
		{"tel passes through", "https://acme.example", "tel:+123", false, "tel:+123", true},
		{"javascript passes through", "https://acme.example", "javascript:void(0)", false, "javascript:void(0)", true},
		{"absolute path", "https://acme.example/careers", "/careers/jobs", false, "https://acme.example/careers/jobs", true},
		{"relative to directory form", "https://acme.example/careers", "jobs", false, "https://acme.example/careers/jobs", true},
		{"duplicated spa prefix", "https://acme.example/careers", "careers/jobs", false, "https://acme.example/careers/jobs", true},
		{"duplicated nested suffix", "https://acme.example/en/careers", "careers/jobs/1", false, "https://acme.example/en/careers/jobs/1", true},
		{"scheme relative", "https://acme.example/careers", "//cdn.example/x/", false, "https://cdn.example/x", true},
		{"dot slash", "https://acme.example/careers/", "./open", false, "https://acme.example/careers/open", true},
		{"file base keeps directory", "https://acme.example/careers/index.html", "jobs.html", false, "https://acme.example/careers/jobs.html", true},
		{"query only", "https://acme.example/careers", "?page=2", false, "https://acme.example/careers/?page=2", true},
		{"trailing slash stripped", "https://acme.example", "/jobs/", false, "https://acme.example/jobs", true},
		{"keeps base query", "https://acme.example/jobs?lang=en", "/list", true, "https://acme.example/list?lang=en", true},
		{"appends base query", "https://acme.example/jobs?lang=en", "/list?page=2", true, "https://acme.example/list?page=2&lang=en", true},
		{"absolute href", "https://acme.example/careers", "https://jobs.other.example/acme/", false, "https://jobs.other.example/acme", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.base, tt.href, tt.keepQuery)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	urls := []string{
		"https://acme.example/careers",
		"https://acme.example/careers/",
		"https://www.acme.example/en/jobs/123/",
		"https://acme.example/jobs?page=2",
		"https://acme.example/",
		"https://acme.example/careers/index.html",
		"https://acme.example/a/b/c/",
	}

	for _, u := range urls {
		first, ok := Normalize(u, u, false)
		require.True(t, ok, u)
		second, ok := Normalize(u, first, false)
		require.True(t, ok, u)
		assert.Equal(t, first, second, "normalize must be idempotent for %s", u)

		if first != "/" {
			assert.False(t, strings.HasSuffix(first, "/"), "dangling slash in %s", first)
		}
	}
}

func TestSameDomain(t *testing.T) {
	assert.True(t, SameDomain("https://www.Acme.example/a", "http://acme.example/b"))
	assert.False(t, SameDomain("https://acme.example", "https://jobs.acme.example"))
	assert.False(t, SameDomain("::", "::"))
}

func TestDeduplicateByBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "query variants collapse to shortest",
			in:   []string{"https://acme.example/jobs?page=2", "https://acme.example/jobs"},
			want: []string{"https://acme.example/jobs"},
		},
		{
			name: "fragment variants",
			in:   []string{"https://acme.example/jobs#top", "https://acme.example/jobs?q=1#x"},
			want: []string{"https://acme.example/jobs#top"},
		},
		{
			name: "different paths are kept in order",
			in:   []string{"https://acme.example/b", "https://acme.example/a/", "https://acme.example/b?x=1"},
			want: []string{"https://acme.example/b", "https://acme.example/a/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeduplicateByBaseURL(tt.in))
		})
	}
}

func TestKeepOnlyRoots(t *testing.T) {
	got := KeepOnlyRoots([]string{
		"https://jobs.example/acme/engineering",
		"https://jobs.example/acme/",
		"https://jobs.example/acme-labs",
		"https://boards.example/acme",
	})
	assert.ElementsMatch(t, []string{
		"https://jobs.example/acme",
		"https://jobs.example/acme-labs",
		"https://boards.example/acme",
	}, got)
}

func TestShareBaseAndPathLevel(t *testing.T) {
	tests := []struct {
		candidate string
		base      string
		want      bool
	}{
		{"https://acme.example/jobs?page=2", "https://acme.example/jobs", true},
		{"https://acme.example/jobs/page/2", "https://acme.example/jobs", false},
		{"https://acme.example/jobs/2", "https://acme.example/jobs", true},
		{"https://www.acme.example/jobs/2", "https://acme.example/jobs", true},
		{"https://acme.example/blog/2", "https://acme.example/jobs", false},
		{"https://other.example/jobs/2", "https://acme.example/jobs", false},
		{"https://acme.example/", "https://acme.example/jobs", false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			assert.Equal(t, tt.want, ShareBaseAndPathLevel(tt.candidate, tt.base))
		})
	}
}

func TestPatternKeys(t *testing.T) {
	tests := []struct {
		url  string
		want []string
	}{
		{"https://acme.example/", nil},
		{"https://acme.example/jobs", []string{"https://acme.example/jobs/"}},
		{"https://acme.example/en/jobs/engineering/42", []string{"https://acme.example/jobs/engineering/", "https://acme.example/jobs/"}},
		{"https://acme.example/fr-FR/blog/2024/05", []string{"https://acme.example/blog/"}},
		{"https://acme.example/news/a/b/c", []string{"https://acme.example/news/a/", "https://acme.example/news/"}},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, PatternKeys(tt.url, 2))
		})
	}
}

func TestRelativePathAndJoin(t *testing.T) {
	rel, ok := RelativePath("https://acme.example/fr", "https://acme.example/fr/carrieres/")
	require.True(t, ok)
	assert.Equal(t, "/carrieres", rel)

	rel, ok = RelativePath("https://acme.example/fr", "https://acme.example/fr")
	require.True(t, ok)
	assert.Equal(t, "/", rel)

	_, ok = RelativePath("https://acme.example/fr", "https://other.example/fr/x")
	assert.False(t, ok)

	assert.Equal(t, "https://acme.example/fr/carrieres", Join("https://acme.example/fr", "/carrieres"))
	assert.Equal(t, "https://x.example/jobs", Join("https://acme.example/fr", "https://x.example/jobs/"))
}
