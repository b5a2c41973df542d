package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
)

// Browser owns the Chrome process shared by all sessions of a worker.
// Every session gets its own incognito context through NewPage.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
}

// Launch starts Chrome, or connects to BROWSER_CONTROL_URL when set.
func Launch(cfg config.BrowserConfig) (*Browser, error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	log.Info().Str("controlURL", controlURL).Msg("Browser connected")
	return &Browser{browser: b, launcher: l, cfg: cfg}, nil
}

// NewPage opens a page in a fresh incognito context.
func (b *Browser) NewPage(ctx context.Context) (*RodPage, error) {
	p := &RodPage{root: b.browser, cfg: b.cfg}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	return err
}

// RodPage implements Page on a Chrome tab.
type RodPage struct {
	root      *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	cfg       config.BrowserConfig
}

func (p *RodPage) open() error {
	incognito, err := p.root.Incognito()
	if err != nil {
		return fmt.Errorf("creating incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return fmt.Errorf("opening page: %w", err)
	}
	if p.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: p.cfg.UserAgent}); err != nil {
			log.Warn().Err(err).Msg("Failed to set user agent")
		}
	}
	p.incognito, p.page = incognito, page
	return nil
}

// bounded returns the page bound to ctx with the navigation timeout applied.
// The returned func releases the timeout and must be called once the page is
// no longer used.
func (p *RodPage) bounded(ctx context.Context) (*rod.Page, context.CancelFunc) {
	if p.cfg.NavTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.NavTimeout)
		return p.page.Context(ctx), cancel
	}
	return p.page.Context(ctx), func() {}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func (p *RodPage) Goto(ctx context.Context, url string) error {
	page, done := p.bounded(ctx)
	defer done()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, mapErr(err))
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, mapErr(err))
	}
	return nil
}

func (p *RodPage) HTML(ctx context.Context) (string, error) {
	page, done := p.bounded(ctx)
	defer done()
	html, err := page.HTML()
	return html, mapErr(err)
}

func (p *RodPage) URL(ctx context.Context) (string, error) {
	page, done := p.bounded(ctx)
	defer done()
	info, err := page.Info()
	if err != nil {
		return "", mapErr(err)
	}
	return info.URL, nil
}

func (p *RodPage) ScrollToBottom(ctx context.Context) error {
	page, done := p.bounded(ctx)
	defer done()
	_, err := page.Eval(`() => window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`)
	return mapErr(err)
}

func (p *RodPage) Count(ctx context.Context, xpath string) (int, error) {
	page, done := p.bounded(ctx)
	defer done()
	els, err := page.ElementsX(xpath)
	if err != nil {
		return 0, mapErr(err)
	}
	return len(els), nil
}

func (p *RodPage) Click(ctx context.Context, xpath string) error {
	n, err := p.Count(ctx, xpath)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, xpath)
	}

	page, done := p.bounded(ctx)
	defer done()
	el, err := page.ElementX(xpath)
	if err != nil {
		return fmt.Errorf("locating %s: %w", xpath, mapErr(err))
	}
	visible, err := el.Visible()
	if err != nil {
		return fmt.Errorf("checking %s visibility: %w", xpath, mapErr(err))
	}
	if !visible {
		return fmt.Errorf("%w: %s", ErrNotVisible, xpath)
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scrolling to %s: %w", xpath, mapErr(err))
	}
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("clicking %s: %w", xpath, mapErr(err))
	}
	return nil
}

func (p *RodPage) WaitIdle(ctx context.Context) error {
	idle := p.cfg.IdleTime
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}
	page, done := p.bounded(ctx)
	defer done()
	wait := page.WaitRequestIdle(idle, nil, nil, nil)
	wait()
	if err := page.GetContext().Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	page, done := p.bounded(ctx)
	defer done()
	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	return shot, mapErr(err)
}

func (p *RodPage) Restart(ctx context.Context) error {
	if err := p.Close(); err != nil {
		log.Debug().Err(err).Msg("Closing previous browser context")
	}
	return p.open()
}

func (p *RodPage) Close() error {
	if p.incognito == nil {
		return nil
	}
	err := p.incognito.Close()
	p.incognito, p.page = nil, nil
	return err
}
