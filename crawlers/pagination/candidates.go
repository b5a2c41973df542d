package pagination

import (
	"slices"
	"strconv"
	"strings"
	"unicode"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/net/html"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
)

const maxRankedCandidates = 15

var (
	clickableInputTypes = []string{"submit", "button", "image", "radio", "checkbox"}
	clickableRoles      = []string{"button", "link"}
	containerRoles      = []string{"navigation", "radiogroup"}
)

// candidates narrows the page's nav, div and ul elements down to the ones
// that look like pagination controls, most likely first.
func candidates(doc *gq.Document, baseURL string, h config.Heuristics) []*gq.Selection {
	all := doc.Find("body").Find("nav, div, ul")

	var filtered []*gq.Selection
	for i := all.Length() - 1; i >= 0; i-- {
		s := all.Eq(i)
		if !matchesKeywords(s, h.PaginationKeywords) {
			continue
		}
		if !containsTextKeyword(s, h) {
			continue
		}
		if !hasClickable(s) {
			continue
		}
		filtered = append(filtered, s)
	}

	window := filtered[:min(len(filtered), maxRankedCandidates)]
	inWindow := make(map[*html.Node]struct{}, len(window))
	for _, s := range window {
		inWindow[s.Get(0)] = struct{}{}
	}
	outer := lo.Filter(window, func(s *gq.Selection, _ int) bool {
		for p := s.Get(0).Parent; p != nil; p = p.Parent {
			if _, ok := inWindow[p]; ok {
				return false
			}
		}
		return true
	})

	slices.SortStableFunc(outer, func(a, b *gq.Selection) int {
		return baseLinks(b, baseURL) - baseLinks(a, baseURL)
	})
	return outer
}

func attrLower(s *gq.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.ToLower(v)
}

// selfAndDescendants yields s followed by every element below it.
func selfAndDescendants(s *gq.Selection) []*gq.Selection {
	out := []*gq.Selection{s}
	s.Find("*").Each(func(_ int, d *gq.Selection) {
		out = append(out, d)
	})
	return out
}

func matchesKeywords(s *gq.Selection, keywords []string) bool {
	return lo.SomeBy(selfAndDescendants(s), func(el *gq.Selection) bool {
		for _, attr := range []string{"id", "class", "aria-label"} {
			v := attrLower(el, attr)
			if v != "" && lo.SomeBy(keywords, func(k string) bool { return strings.Contains(v, k) }) {
				return true
			}
		}
		return false
	})
}

func containsTextKeyword(s *gq.Selection, h config.Heuristics) bool {
	var b strings.Builder
	for _, n := range s.Nodes {
		b.WriteString(strings.ToLower(extract.NodeText(n)))
	}
	for _, el := range selfAndDescendants(s) {
		b.WriteString(" ")
		b.WriteString(attrLower(el, "aria-label"))
		b.WriteString(" ")
		b.WriteString(attrLower(el, "title"))
	}
	combined := b.String()

	if lo.SomeBy(h.TextKeywords, func(k string) bool { return strings.Contains(combined, k) }) {
		return true
	}
	tokens := strings.FieldsFunc(combined, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return lo.SomeBy(tokens, func(tok string) bool {
		n, err := strconv.Atoi(tok)
		return err == nil && n >= 0 && n <= h.MaxPageNumber
	})
}

func hasClickable(s *gq.Selection) bool {
	if lo.Contains(containerRoles, attrLower(s, "role")) || strings.Contains(attrLower(s, "aria-label"), "page") {
		return true
	}
	return lo.SomeBy(selfAndDescendants(s), isClickable)
}

func isClickable(el *gq.Selection) bool {
	switch gq.NodeName(el) {
	case "a", "button":
		return true
	case "input":
		if lo.Contains(clickableInputTypes, attrLower(el, "type")) {
			return true
		}
	}
	if _, ok := el.Attr("onclick"); ok {
		return true
	}
	if lo.Contains(clickableRoles, attrLower(el, "role")) || lo.Contains(clickableRoles, attrLower(el, "aria-roledescription")) {
		return true
	}
	if tab, ok := el.Attr("tabindex"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(tab)); err == nil && n >= 0 {
			return true
		}
	}
	return false
}

// baseLinks counts the anchors whose href mentions baseURL.
func baseLinks(s *gq.Selection, baseURL string) int {
	if baseURL == "" {
		return 0
	}
	return s.Find("a[href]").FilterFunction(func(_ int, a *gq.Selection) bool {
		href, _ := a.Attr("href")
		return strings.Contains(href, baseURL)
	}).Length()
}
