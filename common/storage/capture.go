package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Capturer uploads the screenshot and HTML of a page that failed during a
// session, under <prefix>/<session>/<time>-<label>.
type Capturer struct {
	storage StorageService
	bucket  string
	prefix  string
	session string
	now     func() time.Time
}

func NewCapturer(s StorageService, bucket, prefix, session string) *Capturer {
	return &Capturer{storage: s, bucket: bucket, prefix: prefix, session: session, now: time.Now}
}

func (c *Capturer) Capture(ctx context.Context, label string, screenshot []byte, html string) error {
	base := c.objectBase(label)
	var errs []error
	if len(screenshot) > 0 {
		if _, err := c.storage.Upload(ctx, c.bucket, base+".png", screenshot, "image/png"); err != nil {
			errs = append(errs, fmt.Errorf("uploading screenshot: %w", err))
		}
	}
	if html != "" {
		if _, err := c.storage.StreamUpload(ctx, c.bucket, base+".html", strings.NewReader(html), "text/html; charset=utf-8"); err != nil {
			errs = append(errs, fmt.Errorf("uploading html: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Capturer) objectBase(label string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(label, "_"), "_")
	if name == "" {
		name = "capture"
	}
	stamp := c.now().UTC().Format("20060102T150405.000")
	return path.Join(c.prefix, unsafeChars.ReplaceAllString(c.session, "_"), stamp+"-"+name)
}
