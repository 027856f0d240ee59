// Package extractor normalizes a detected candidate element into a
// ProductRecord. Every field has a fallback chain and defaults to its zero
// value on a miss, so a partially readable element still yields a usable,
// lower-scoring record. Extraction never fails.
package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/stylescout/stylescout-backend/internal/detector"
	"github.com/stylescout/stylescout-backend/internal/vocab"
)

// Attributes are the vocabulary-matched properties of a product.
type Attributes struct {
	Colors    []string
	Materials []string
	Sizes     []string
}

// ProductRecord is the normalized data extracted from one candidate.
type ProductRecord struct {
	ImageURL    string
	TextContent string
	Price       *float64
	Title       string
	Brand       string
	Category    string
	Attributes  Attributes
}

var (
	titleSelectors = []string{
		".product-title", ".product-name", "h1", "h2", "h3",
		"[class*=title]", "[class*=name]", "a[title]", "[data-testid*=title]",
	}
	priceSelectors = []string{
		".price", "[class*=price]", ".cost", "[class*=cost]",
		"[data-testid*=price]", ".amount", "[class*=amount]",
	}
	lazyAttrs = []string{"data-src", "data-lazy-src", "data-original"}

	priceRe     = regexp.MustCompile(`\$([\d,]+\.?\d*)`)
	siteTitleRe = regexp.MustCompile(`\s*[|\x{2013}-].*$`)
)

// Extractor derives ProductRecords relative to the page it was built for.
// The page URL anchors relative image links; the page title is the last
// resort for product titles.
type Extractor struct {
	pageURL   *url.URL
	pageTitle string
}

// New returns an Extractor for a page. pageURL may be nil, in which case
// relative image URLs are kept as-is.
func New(pageURL *url.URL, pageTitle string) *Extractor {
	return &Extractor{pageURL: pageURL, pageTitle: pageTitle}
}

// Extract builds the ProductRecord for one candidate.
func (e *Extractor) Extract(c detector.Candidate) ProductRecord {
	sel := c.Selection
	text := cleanText(sel)
	combined := strings.ToLower(text + " " + linkText(sel))

	return ProductRecord{
		ImageURL:    e.extractImage(sel),
		TextContent: text,
		Price:       extractPrice(sel, text),
		Title:       e.extractTitle(sel),
		Brand:       firstOrEmpty(vocab.MatchBrands(combined)),
		Category:    vocab.MatchCategory(combined),
		Attributes: Attributes{
			Colors:    vocab.MatchColors(combined),
			Materials: vocab.MatchMaterials(combined),
			Sizes:     vocab.MatchSizes(combined),
		},
	}
}

// extractImage prefers lazy-load attributes, then src, then the largest
// image in the element by declared area. Data URIs are skipped. The result
// is resolved against the page URL.
func (e *Extractor) extractImage(sel *goquery.Selection) string {
	imgs := sel.Find("img")
	if imgs.Length() == 0 {
		return ""
	}

	first := imgs.First()
	for _, attr := range lazyAttrs {
		if v, ok := first.Attr(attr); ok && usableImageURL(v) {
			return e.absolute(v)
		}
	}
	if v, ok := first.Attr("src"); ok && usableImageURL(v) {
		return e.absolute(v)
	}

	// Fall back to the biggest declared image anywhere in the element.
	var best string
	var bestArea float64
	imgs.Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || !usableImageURL(src) {
			return
		}
		area := declaredArea(img)
		if area > bestArea || best == "" {
			best = src
			bestArea = area
		}
	})
	if best == "" {
		return ""
	}
	return e.absolute(best)
}

func declaredArea(img *goquery.Selection) float64 {
	w := attrFloat(img, "width")
	h := attrFloat(img, "height")
	return w * h
}

func attrFloat(sel *goquery.Selection, name string) float64 {
	raw, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func usableImageURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw != "" && !strings.HasPrefix(raw, "data:")
}

func (e *Extractor) absolute(raw string) string {
	if e.pageURL == nil {
		return raw
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return e.pageURL.ResolveReference(ref).String()
}

// extractTitle walks structured data, meta tags, then heading selectors with
// a 10-200 character plausibility filter, and finally the page title with
// any site-name suffix stripped.
func (e *Extractor) extractTitle(sel *goquery.Selection) string {
	if v := strings.TrimSpace(sel.Find("[itemprop=name]").First().Text()); v != "" {
		return v
	}
	if v, ok := sel.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}

	for _, selector := range titleSelectors {
		var found string
		sel.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			t := strings.TrimSpace(el.Text())
			if t == "" {
				if v, ok := el.Attr("title"); ok {
					t = strings.TrimSpace(v)
				}
			}
			if len(t) >= 10 && len(t) <= 200 {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	if e.pageTitle != "" {
		return strings.TrimSpace(siteTitleRe.ReplaceAllString(e.pageTitle, ""))
	}
	return ""
}

// extractPrice walks structured data, meta tags, price-class selectors, and
// finally any plausible price-like substring in the element text. Plausible
// means between $1 and $10,000.
func extractPrice(sel *goquery.Selection, text string) *float64 {
	if v, ok := sel.Find("[itemprop=price]").First().Attr("content"); ok {
		if p := parsePrice(v); p != nil {
			return p
		}
	}
	if v := sel.Find("[itemprop=price]").First().Text(); v != "" {
		if p := parsePrice(v); p != nil {
			return p
		}
	}
	if v, ok := sel.Find(`meta[property="product:price:amount"]`).First().Attr("content"); ok {
		if p := parsePrice(v); p != nil {
			return p
		}
	}

	for _, selector := range priceSelectors {
		var found *float64
		sel.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if m := priceRe.FindStringSubmatch(el.Text()); m != nil {
				if p := parsePrice(m[1]); p != nil {
					found = p
					return false
				}
			}
			return true
		})
		if found != nil {
			return found
		}
	}

	if m := priceRe.FindStringSubmatch(text); m != nil {
		return parsePrice(m[1])
	}
	return nil
}

func parsePrice(raw string) *float64 {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 1 || v > 10000 {
		return nil
	}
	return &v
}

// cleanText gathers the element's text while skipping script and style tags
// and sub-elements carrying a price or rating class, then collapses
// whitespace. Price text is extracted separately and would otherwise pollute
// keyword matching.
func cleanText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		walkText(node, &b)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func walkText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
		if hasClassToken(n, "price") || hasClassToken(n, "rating") {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
}

func hasClassToken(n *html.Node, token string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, cls := range strings.Fields(attr.Val) {
			if cls == token {
				return true
			}
		}
	}
	return false
}

// linkText collects href and image URLs inside the element; category and
// brand words often live in the URL path rather than the visible text.
func linkText(sel *goquery.Selection) string {
	var parts []string
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			parts = append(parts, href)
		}
	})
	sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			parts = append(parts, src)
		}
	})
	return strings.Join(parts, " ")
}

func firstOrEmpty(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
