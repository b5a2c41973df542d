// Package extract turns rendered career pages into text the LLM can read.
package extract

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	mdp "github.com/JohannesKaufmann/html-to-markdown/plugin"
	gq "github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NoiseTags never carry readable content.
var NoiseTags = []string{"script", "style", "meta", "noscript", "svg"}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	imageExtensions = map[string]struct{}{
		"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}, "bmp": {}, "svg": {}, "tiff": {},
	}
)

// Parse parses a rendered page.
func Parse(rawHTML string) (*gq.Document, error) {
	doc, err := gq.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

// StripNoise removes script-like elements in place.
func StripNoise(doc *gq.Document) *gq.Document {
	doc.Find(strings.Join(NoiseTags, ",")).Remove()
	return doc
}

// ParseClean parses a page and strips its noise elements.
func ParseClean(rawHTML string) (*gq.Document, error) {
	doc, err := Parse(rawHTML)
	if err != nil {
		return nil, err
	}
	return StripNoise(doc), nil
}

// VisibleText returns every text node of the page joined by single spaces.
func VisibleText(doc *gq.Document) string {
	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

// NodeText is the text of n's subtree with single spaces between text nodes.
func NodeText(n *html.Node) string {
	var parts []string
	collectText(n, &parts)
	return strings.Join(parts, " ")
}

// VisibleTextFromHTML is VisibleText on a raw page.
func VisibleTextFromHTML(rawHTML string) (string, error) {
	doc, err := ParseClean(rawHTML)
	if err != nil {
		return "", err
	}
	return VisibleText(doc), nil
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// Emails returns the sorted distinct email addresses in text. Matches whose
// top-level domain is an image extension are dropped.
func Emails(text string) []string {
	seen := make(map[string]struct{})
	for _, m := range emailRegex.FindAllString(text, -1) {
		tld := strings.ToLower(m[strings.LastIndex(m, ".")+1:])
		if _, image := imageExtensions[tld]; image {
			continue
		}
		seen[m] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Hash is the content fingerprint used to detect repeated pages.
func Hash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Markdown converts a page body into GitHub-flavored markdown.
func Markdown(rawHTML, pageURL string) (string, error) {
	converter := md.NewConverter(md.DomainFromURL(pageURL), true, nil)
	converter.Use(mdp.GitHubFlavored())
	converter.Remove(NoiseTags...)
	converter.Remove("nav", "footer", "iframe", "form")

	out, err := converter.ConvertString(rawHTML)
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// XPath returns the absolute location path of an element. A position
// predicate is added only when same-name siblings exist.
func XPath(n *html.Node) string {
	var steps []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		step := cur.Data
		total, position := 0, 0
		if cur.Parent != nil {
			for sib := cur.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
				if sib.Type != html.ElementNode || sib.Data != cur.Data {
					continue
				}
				total++
				if sib == cur {
					position = total
				}
			}
		}
		if total > 1 {
			step = fmt.Sprintf("%s[%d]", step, position)
		}
		steps = append(steps, step)
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return "/" + strings.Join(steps, "/")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// TruncateTail keeps the last n runes of s.
func TruncateTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func elementText(s *gq.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
