// Package browsertest provides an in-memory browser.Page that serves static
// HTML and evaluates locators with htmlquery.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"

	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
)

// ClickFunc mutates the page when a locator is clicked.
type ClickFunc func(p *Page, xpath string) error

type Page struct {
	mu sync.Mutex

	// Site maps URLs to the HTML served for them.
	Site map[string]string
	// Redirects maps a requested URL to the URL it lands on.
	Redirects map[string]string
	// Timeouts holds how many more times a URL times out before loading.
	Timeouts map[string]int
	// Failures makes navigation to a URL fail with a non-timeout error.
	Failures map[string]error
	OnClick  ClickFunc

	current string
	html    string

	visits    []string
	clicks    []string
	restarts  int
	htmlReads int
	closed    bool
}

var _ browser.Page = (*Page)(nil)

func New(site map[string]string) *Page {
	return &Page{
		Site:      site,
		Redirects: map[string]string{},
		Timeouts:  map[string]int{},
		Failures:  map[string]error{},
	}
}

// SetHTML replaces the current document, as a script would.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// SetURL changes the current address without loading anything.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = url
}

// Visits returns every URL passed to Goto that loaded.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *Page) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

// HTMLReads counts calls to HTML.
func (p *Page) HTMLReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.htmlReads
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.Timeouts[url]; n > 0 {
		p.Timeouts[url] = n - 1
		return fmt.Errorf("navigating to %s: %w", url, browser.ErrTimeout)
	}
	if err := p.Failures[url]; err != nil {
		return err
	}
	target := url
	if to, ok := p.Redirects[url]; ok {
		target = to
	}
	html, ok := p.Site[target]
	if !ok {
		return fmt.Errorf("navigating to %s: net::ERR_NAME_NOT_RESOLVED", url)
	}
	p.current, p.html = target, html
	p.visits = append(p.visits, url)
	return nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.htmlReads++
	return p.html, nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Page) ScrollToBottom(context.Context) error { return nil }

func (p *Page) Count(_ context.Context, xpath string) (int, error) {
	p.mu.Lock()
	html := p.html
	p.mu.Unlock()
	return count(html, xpath)
}

func count(html, xpath string) (int, error) {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return 0, err
	}
	nodes, err := htmlquery.QueryAll(doc, xpath)
	if err != nil {
		return 0, fmt.Errorf("evaluating %s: %w", xpath, err)
	}
	return len(nodes), nil
}

func (p *Page) Click(ctx context.Context, xpath string) error {
	n, err := p.Count(ctx, xpath)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", browser.ErrNoElement, xpath)
	}

	p.mu.Lock()
	html := p.html
	p.mu.Unlock()
	if hidden(html, xpath) {
		return fmt.Errorf("%w: %s", browser.ErrNotVisible, xpath)
	}

	p.mu.Lock()
	p.clicks = append(p.clicks, xpath)
	onClick := p.OnClick
	p.mu.Unlock()

	if onClick != nil {
		return onClick(p, xpath)
	}
	return nil
}

// hidden reports whether the first match of xpath, or one of its ancestors,
// carries the hidden attribute or an inline style that hides it.
func hidden(html, xpath string) bool {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return false
	}
	n, err := htmlquery.Query(doc, xpath)
	if err != nil {
		return false
	}
	for ; n != nil; n = n.Parent {
		for _, a := range n.Attr {
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			switch {
			case a.Key == "hidden":
				return true
			case a.Key == "style" && (strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")):
				return true
			}
		}
	}
	return false
}

func (p *Page) WaitIdle(ctx context.Context) error { return ctx.Err() }

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (p *Page) Restart(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	p.current, p.html = "", ""
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
