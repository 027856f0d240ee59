// Package fetch acquires page documents for scanning. Static pages go
// through a configured colly collector; JavaScript-heavy storefronts go
// through a headless browser that also annotates every element with its
// layout rectangle, since a parsed HTML tree carries no geometry of its own.
package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
)

// configuredCollector builds a collector that behaves like a browser: sane
// timeout, randomized per-domain delays, rotating user agent and referer,
// and a realistic header set. Some storefronts serve bot traffic an empty
// shell, so the camouflage matters.
func configuredCollector(timeout time.Duration) *colly.Collector {
	collector := colly.NewCollector()
	collector.SetRequestTimeout(timeout)

	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		RandomDelay: 2 * time.Second,
	})

	extensions.RandomUserAgent(collector)
	extensions.Referer(collector)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})

	return collector
}

// Document fetches pageURL and parses it into a goquery document. The
// returned URL is the parsed page address for resolving relative links.
func Document(pageURL string, timeout time.Duration) (*goquery.Document, *url.URL, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	collector := configuredCollector(timeout)

	var doc *goquery.Document
	var fetchErr error
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		doc, fetchErr = goquery.NewDocumentFromReader(strings.NewReader(string(e.Response.Body)))
	})
	collector.OnError(func(r *colly.Response, e error) {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("request to %s failed with status %d: %w", r.Request.URL, r.StatusCode, e)
		}
	})

	visitErr := collector.Visit(pageURL)
	collector.Wait()

	if fetchErr == nil && visitErr != nil {
		fetchErr = fmt.Errorf("visit %s: %w", pageURL, visitErr)
	}
	if fetchErr != nil {
		return nil, nil, fetchErr
	}
	if doc == nil {
		return nil, nil, errors.New("response was not HTML")
	}
	return doc, parsed, nil
}
