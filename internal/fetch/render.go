package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// annotateScript stamps every element with its layout rectangle and
// viewport visibility before the DOM is snapshotted. The detector reads
// these attributes back since goquery has no layout engine.
const annotateScript = `
(() => {
	const vh = window.innerHeight, vw = window.innerWidth;
	for (const el of document.querySelectorAll('body *')) {
		const r = el.getBoundingClientRect();
		if (r.width === 0 && r.height === 0) continue;
		el.setAttribute('data-sg-rect',
			[r.left, r.top, r.width, r.height].map(v => Math.round(v)).join(','));
		const visible = r.top < vh && r.bottom > 0 && r.left < vw && r.right > 0;
		el.setAttribute('data-sg-visible', visible ? 'true' : 'false');
	}
	return true;
})()`

// Renderer fetches pages through a headless browser for sites that build
// their product grids client-side.
type Renderer struct {
	// Timeout bounds the whole navigate-render-snapshot cycle.
	Timeout time.Duration
	// SettleDelay waits for late-loading grids after navigation.
	SettleDelay time.Duration
}

// NewRenderer returns a Renderer with 30s timeout and a 2s settle delay.
func NewRenderer() *Renderer {
	return &Renderer{Timeout: 30 * time.Second, SettleDelay: 2 * time.Second}
}

// Document renders pageURL, annotates element geometry, and returns the
// resulting DOM parsed for goquery.
func (r *Renderer) Document(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, r.Timeout)
	defer cancelRun()

	var annotated bool
	var outerHTML string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(r.SettleDelay),
		chromedp.Evaluate(annotateScript, &annotated),
		chromedp.OuterHTML("html", &outerHTML),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, nil, fmt.Errorf("parse rendered page: %w", err)
	}
	return doc, parsed, nil
}
