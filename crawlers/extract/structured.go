package extract

import (
	"strings"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/LexiconIndonesia/career-crawler-service/crawlers/urlnorm"
)

const (
	// MaxStructuredChars caps the single-document form.
	MaxStructuredChars = 128000
	// MaxItemsPerBlock caps the items batched together in one chunk block.
	MaxItemsPerBlock = 15
	// MaxChunkChars is the packing budget of one chunk.
	MaxChunkChars = 2000

	headingSelector = "h1, h2, h3, h4, h5, h6"
	orphanParents   = "h1, h2, h3, h4, h5, h6, p, ul, li, table"
	linksHeader     = "\n### Links ###\n"
)

type structuredWalker struct {
	pageURL   string
	known     map[string]struct{}
	skipKnown bool
	seen      map[string]struct{}
}

func newWalker(pageURL string, known map[string]struct{}, skipKnown bool) *structuredWalker {
	if known == nil {
		known = map[string]struct{}{}
	}
	return &structuredWalker{
		pageURL:   pageURL,
		known:     known,
		skipKnown: skipKnown,
		seen:      make(map[string]struct{}),
	}
}

// linkOf resolves the first descendant anchor carrying an href.
func (w *structuredWalker) linkOf(s *gq.Selection) string {
	a := s.Find("a[href]").First()
	if a.Length() == 0 {
		return ""
	}
	href, _ := a.Attr("href")
	return w.resolve(href)
}

func (w *structuredWalker) resolve(href string) string {
	link, ok := urlnorm.Normalize(w.pageURL, href, false)
	if !ok {
		return ""
	}
	w.seen[link] = struct{}{}
	return link
}

func (w *structuredWalker) isKnown(link string) bool {
	_, ok := w.known[link]
	return ok
}

// keep decides whether a linked entry survives. Entries without a link are
// dropped in the single-document form.
func (w *structuredWalker) keep(link string) bool {
	if link == "" {
		return false
	}
	return !(w.skipKnown && w.isKnown(link))
}

func (w *structuredWalker) listItems(doc *gq.Document) [][]string {
	var lists [][]string
	doc.Find("ul").Each(func(_ int, ul *gq.Selection) {
		var items []string
		ul.Find("li").Each(func(_ int, li *gq.Selection) {
			link := w.linkOf(li)
			if link == "" {
				return
			}
			if w.skipKnown && w.isKnown(link) {
				return
			}
			items = append(items, "  • "+elementText(li)+" ("+link+")")
		})
		lists = append(lists, items)
	})
	return lists
}

func (w *structuredWalker) tableRows(doc *gq.Document) [][]string {
	var tables [][]string
	doc.Find("table").Each(func(_ int, table *gq.Selection) {
		var rows []string
		table.Find("tr").Each(func(_ int, tr *gq.Selection) {
			var cells []string
			tr.Find("td, th").Each(func(_ int, cell *gq.Selection) {
				link := w.linkOf(cell)
				if link == "" {
					return
				}
				if w.skipKnown && w.isKnown(link) {
					return
				}
				cells = append(cells, elementText(cell)+" ("+link+")")
			})
			if len(cells) > 0 {
				rows = append(rows, strings.Join(cells, " | "))
			}
		})
		tables = append(tables, rows)
	})
	return tables
}

// orphanLinks runs last so that links already emitted by a block are skipped.
func (w *structuredWalker) orphanLinks(doc *gq.Document) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *gq.Selection) {
		href, _ := a.Attr("href")
		if strings.HasPrefix(strings.TrimSpace(href), "mailto:") {
			return
		}
		if a.ParentsFiltered(orphanParents).Length() > 0 {
			return
		}
		link, ok := urlnorm.Normalize(w.pageURL, href, false)
		if !ok {
			return
		}
		if _, seen := w.seen[link]; seen {
			return
		}
		if w.skipKnown && w.isKnown(link) {
			return
		}
		links = append(links, "- ["+elementText(a)+"]("+link+")")
	})
	return links
}

// StructuredText renders headings, paragraphs, lists, tables and orphan links
// with their resolved hyperlinks, one category at a time in source order.
// With skipKnown set, entries pointing at a known job URL are left out.
func StructuredText(doc *gq.Document, pageURL string, known map[string]struct{}, skipKnown bool) string {
	w := newWalker(pageURL, known, skipKnown)
	var blocks []string

	doc.Find(headingSelector).Each(func(_ int, h *gq.Selection) {
		if link := w.linkOf(h); w.keep(link) {
			blocks = append(blocks, "\n### "+elementText(h)+" ("+link+") ###")
		}
	})
	doc.Find("p").Each(func(_ int, p *gq.Selection) {
		if link := w.linkOf(p); w.keep(link) {
			blocks = append(blocks, "- "+elementText(p)+" ("+link+")")
		}
	})
	for _, items := range w.listItems(doc) {
		if len(items) > 0 {
			blocks = append(blocks, strings.Join(items, "\n"))
		}
	}
	for _, rows := range w.tableRows(doc) {
		if len(rows) > 0 {
			blocks = append(blocks, strings.Join(rows, "\n"))
		}
	}
	if links := w.orphanLinks(doc); len(links) > 0 {
		blocks = append(blocks, linksHeader+strings.Join(links, "\n"))
	}

	return Truncate(strings.Join(blocks, "\n"), MaxStructuredChars)
}

// StructuredChunks is the chunked form used for single-page listings. Known
// job URLs are always skipped and unlinked headings and paragraphs are kept.
func StructuredChunks(doc *gq.Document, pageURL string, known map[string]struct{}) []string {
	w := newWalker(pageURL, known, true)
	var blocks []string

	var headings []string
	doc.Find(headingSelector).Each(func(_ int, h *gq.Selection) {
		link := w.linkOf(h)
		if link != "" && w.isKnown(link) {
			return
		}
		headings = append(headings, "### "+elementText(h)+linkSuffix(link)+" ###")
	})
	blocks = append(blocks, batch(headings, "")...)

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *gq.Selection) {
		link := w.linkOf(p)
		if link != "" && w.isKnown(link) {
			return
		}
		paragraphs = append(paragraphs, "- "+elementText(p)+linkSuffix(link))
	})
	blocks = append(blocks, batch(paragraphs, "")...)

	for _, items := range w.listItems(doc) {
		blocks = append(blocks, batch(items, "")...)
	}
	blocks = append(blocks, batch(lo.Flatten(w.tableRows(doc)), "")...)
	blocks = append(blocks, batch(w.orphanLinks(doc), linksHeader)...)

	return Pack(blocks, MaxChunkChars)
}

// Pack groups blocks into chunks of at most budget characters. A block is
// never split; one that alone exceeds the budget becomes its own chunk.
func Pack(blocks []string, budget int) []string {
	var (
		chunks  []string
		current []string
		size    int
	)
	for _, block := range blocks {
		n := len([]rune(block)) + 1
		if size+n > budget && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current, size = nil, 0
		}
		current = append(current, block)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

func batch(items []string, prefix string) []string {
	return lo.Map(lo.Chunk(items, MaxItemsPerBlock), func(group []string, _ int) string {
		return prefix + strings.Join(group, "\n")
	})
}

func linkSuffix(link string) string {
	if link == "" {
		return ""
	}
	return " (" + link + ")"
}
