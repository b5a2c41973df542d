// Package browser is the rendering capability the crawlers drive: one Page
// per crawl session, navigated and clicked strictly in sequence.
package browser

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrTimeout marks a navigation or element wait that ran out of time.
	// Callers restart the page and retry the same URL once.
	ErrTimeout = errors.New("browser: timed out")
	// ErrNoElement is returned when a locator matches nothing in the live page.
	ErrNoElement = errors.New("browser: no element matches locator")
	// ErrNotVisible is returned by Click when the element is attached but hidden.
	ErrNotVisible = errors.New("browser: element is not visible")
)

// Page is a single rendering context. Locators are XPath expressions.
type Page interface {
	Goto(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	// URL is the address after redirects and in-page navigation.
	URL(ctx context.Context) (string, error)
	ScrollToBottom(ctx context.Context) error
	Count(ctx context.Context, xpath string) (int, error)
	// Click scrolls the element into view and dispatches a JS click on its
	// handle. Hidden elements fail at once with ErrNotVisible.
	Click(ctx context.Context, xpath string) error
	// WaitIdle blocks until the network has been quiet for a moment.
	WaitIdle(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Restart replaces the browsing context with a fresh one (new cookies and storage).
	Restart(ctx context.Context) error
	Close() error
}

// Capturer stores what a page looked like when a step failed.
type Capturer interface {
	Capture(ctx context.Context, label string, screenshot []byte, html string) error
}

// Delay is the random pause inserted after navigations.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Pause sleeps for a random duration in [min, max], or until ctx is done.
func Pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d Delay) Pause(ctx context.Context) error {
	return Pause(ctx, d.Min, d.Max)
}

// Render navigates to url, waits, scrolls to the bottom so lazy content
// loads and returns the rendered HTML. With navigate false the current
// document is read as is.
func Render(ctx context.Context, page Page, url string, navigate bool, delay Delay) (string, error) {
	if navigate {
		if err := page.Goto(ctx, url); err != nil {
			return "", err
		}
	}
	if err := delay.Pause(ctx); err != nil {
		return "", err
	}
	if err := page.ScrollToBottom(ctx); err != nil {
		return "", err
	}
	return page.HTML(ctx)
}

// CaptureFailure records the page state through capturer. Failures to
// capture are only logged.
func CaptureFailure(ctx context.Context, page Page, capturer Capturer, label string, logger zerolog.Logger) {
	if capturer == nil || page == nil {
		return
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		logger.Debug().Err(err).Str("label", label).Msg("Screenshot failed")
	}
	html, _ := page.HTML(ctx)
	if err := capturer.Capture(ctx, label, shot, html); err != nil {
		logger.Warn().Err(err).Str("label", label).Msg("Failed to store failure capture")
	}
}

// Retry runs fn and, when it times out, restarts the page and runs it once
// more. Any other error is returned immediately.
func Retry[T any](ctx context.Context, page Page, logger zerolog.Logger, what string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if !errors.Is(err, ErrTimeout) {
		return v, err
	}
	logger.Warn().Err(err).Str("target", what).Msg("Timed out, restarting browser context and retrying")
	if rerr := page.Restart(ctx); rerr != nil {
		var zero T
		return zero, errors.Join(err, rerr)
	}
	return fn()
}
