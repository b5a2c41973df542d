// Package urlnorm canonicalizes the URLs met while crawling career sites.
package urlnorm

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	leadingRelative = regexp.MustCompile(`^(\./|//)+`)
	langSegment     = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)
	numericSegment  = regexp.MustCompile(`^\d+$`)

	passThroughSchemes = []string{"mailto:", "tel:", "javascript:", "data:"}
)

// Normalize resolves href against base and returns its canonical form.
// The boolean is false when href is empty or cannot be resolved.
func Normalize(base, href string, keepQuery bool) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	for _, scheme := range passThroughSchemes {
		if strings.HasPrefix(href, scheme) {
			return href, true
		}
	}

	parsedBase, err := url.Parse(base)
	if err != nil {
		return "", false
	}

	basePath := parsedBase.Path
	if basePath == "" {
		basePath = "/"
	}
	segments := strings.Split(basePath, "/")
	if !strings.HasSuffix(basePath, "/") && !strings.Contains(segments[len(segments)-1], ".") {
		basePath += "/"
	}
	cleanBase := &url.URL{Scheme: parsedBase.Scheme, Host: parsedBase.Host, Path: basePath}

	if strings.HasPrefix(href, "//") {
		href = parsedBase.Scheme + ":" + href
	}
	href = leadingRelative.ReplaceAllString(href, "")

	// single-page apps sometimes repeat the current path inside relative hrefs
	baseParts := splitPath(parsedBase.Path)
	for i := range baseParts {
		subpath := strings.Join(baseParts[i:], "/")
		if strings.HasPrefix(href, subpath+"/") || href == subpath {
			href = strings.TrimLeft(href[len(subpath):], "/")
			break
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	full := cleanBase.ResolveReference(ref).String()

	if keepQuery && parsedBase.RawQuery != "" {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + parsedBase.RawQuery
	}

	if full != "/" {
		full = strings.TrimRight(full, "/")
	}
	return full, true
}

// Resolve joins href onto base the way a browser would, without any of the
// canonicalization done by Normalize.
func Resolve(base, href string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return b.ResolveReference(ref).String(), true
}

// Host returns the lower-cased host of raw with any leading "www." removed.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// SameDomain reports whether a and b live on the same host, ignoring case and "www.".
func SameDomain(a, b string) bool {
	ha, hb := Host(a), Host(b)
	return ha != "" && ha == hb
}

// StripFragment drops everything from the first "#".
func StripFragment(raw string) string {
	if i := strings.Index(raw, "#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// BaseURL returns raw without query string, fragment and trailing slash.
func BaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(StripFragment(raw), "/")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return strings.TrimRight(u.String(), "/")
}

// DeduplicateByBaseURL keeps one URL per base URL, preferring the shortest literal.
// Output order follows the first appearance of each base URL.
func DeduplicateByBaseURL(urls []string) []string {
	best := make(map[string]string, len(urls))
	var order []string
	for _, u := range urls {
		key := BaseURL(u)
		current, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = u
			continue
		}
		if len(u) < len(current) {
			best[key] = u
		}
	}

	out := make([]string, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// KeepOnlyRoots drops every URL nested under another URL of the same host.
func KeepOnlyRoots(urls []string) []string {
	type entry struct {
		raw  string
		host string
		path string
	}

	seen := make(map[string]struct{}, len(urls))
	entries := make([]entry, 0, len(urls))
	for _, u := range urls {
		trimmed := strings.TrimRight(u, "/")
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		parsed, err := url.Parse(trimmed)
		if err != nil {
			continue
		}
		entries = append(entries, entry{raw: trimmed, host: parsed.Host, path: parsed.Path})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].host != entries[j].host {
			return entries[i].host < entries[j].host
		}
		if len(entries[i].path) != len(entries[j].path) {
			return len(entries[i].path) < len(entries[j].path)
		}
		return entries[i].raw < entries[j].raw
	})

	var roots []entry
	for _, e := range entries {
		nested := false
		for _, r := range roots {
			if r.host == e.host && strings.HasPrefix(e.raw+"/", r.raw+"/") {
				nested = true
				break
			}
		}
		if !nested {
			roots = append(roots, e)
		}
	}

	out := make([]string, len(roots))
	for i, r := range roots {
		out[i] = r.raw
	}
	return out
}

// ShareBaseAndPathLevel reports whether candidate stays within the scope of base:
// same domain, base path as a prefix, and at most one extra path segment.
func ShareBaseAndPathLevel(candidate, base string) bool {
	if !SameDomain(candidate, base) {
		return false
	}
	cu, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	bu, err := url.Parse(base)
	if err != nil {
		return false
	}

	cp, bp := splitPath(cu.Path), splitPath(bu.Path)
	if len(cp) < len(bp) {
		return false
	}
	for i := range bp {
		if cp[i] != bp[i] {
			return false
		}
	}
	return len(cp) <= len(bp)+1
}

// PatternKeys returns the hierarchical rate-limit keys of raw, most specific first.
// A leading language code and trailing numeric segments are ignored.
func PatternKeys(raw string, depth int) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}

	parts := splitPath(u.Path)
	if len(parts) > 0 && langSegment.MatchString(parts[0]) {
		parts = parts[1:]
	}
	for len(parts) > 0 && numericSegment.MatchString(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}

	prefix := u.Scheme + "://" + u.Host + "/"
	var keys []string
	for d := min(len(parts), depth); d > 0; d-- {
		keys = append(keys, prefix+strings.Join(parts[:d], "/")+"/")
	}
	return keys
}

// RelativePath returns the path of raw relative to root's path, or "/" for the root
// itself. The boolean is false when raw is on another host or outside root's path.
func RelativePath(root, raw string) (string, bool) {
	ru, err := url.Parse(root)
	if err != nil {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Host != ru.Host {
		return "", false
	}

	prefix := strings.TrimRight(ru.Path, "/")
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	rel := strings.TrimRight(u.Path[len(prefix):], "/")
	if rel == "" {
		rel = "/"
	}
	return rel, true
}

// Join turns a path returned for root back into an absolute URL. Absolute
// inputs are returned without their trailing slash.
func Join(root, pathOrURL string) string {
	pathOrURL = strings.TrimSpace(pathOrURL)
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return strings.TrimRight(pathOrURL, "/")
	}
	joined, ok := Resolve(strings.TrimRight(root, "/")+"/", strings.TrimLeft(pathOrURL, "/"))
	if !ok {
		return root
	}
	return joined
}

// IsHTTP reports whether raw is an absolute http(s) URL.
func IsHTTP(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
