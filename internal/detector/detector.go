// Package detector scans an HTML document for elements that look like
// product listings. Three independent strategies run over the document and
// their results are unioned, deduplicated by node identity, and pushed
// through a validation gate. Detection never fails: a bad selector or an
// unreadable element is skipped, not fatal.
package detector

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// productSelectors is the ordered static selector list. Generic markers
// first, then known-retailer markers, then layout-class markers and data
// attributes. Each selector is tried independently.
var productSelectors = []string{
	".product", ".product-item", ".product-card", ".product-tile",
	"[data-testid*=product]", "[class*=product]",

	".s-result-item", "[data-component-type=s-product-card]",
	".ProductItem",
	".c-product-tile", ".m-product-tile",
	".product-summary", ".productSummary",
	".product-wrap", ".product-wrapper",

	"article", "li[class*=grid]", "li[class*=item]",
	"[class*=tile]", "[class*=card]",

	"[data-product-id]", "[data-sku]", "[data-item-id]",
}

// excludeSelectors reject obvious non-product chrome.
var excludeSelectors = []string{
	".advertisement", ".ad", ".sponsored", ".nav", ".footer", ".header",
}

var (
	pricePattern   = regexp.MustCompile(`\$\d+|\d+\.\d{2}|USD|EUR|GBP`)
	commerceWords  = []string{"$", "price", "buy", "add to cart", "shop"}
	layoutSelector = "[class*=grid], [class*=row], [class*=flex]"
)

// Config bounds what the validation gate accepts.
type Config struct {
	MinWidth  float64
	MinHeight float64
	MaxWidth  float64
	MaxHeight float64
}

// DefaultConfig mirrors the reference heuristics: 100x100 minimum,
// 2000x2000 maximum.
func DefaultConfig() Config {
	return Config{MinWidth: 100, MinHeight: 100, MaxWidth: 2000, MaxHeight: 2000}
}

// Candidate is one element provisionally identified as a product listing.
// The Selection is a non-owning reference into the caller's document.
type Candidate struct {
	Selection *goquery.Selection
	Box       Box
	HasBox    bool
	Visible   bool
	// Order is the position in which the candidate was discovered; the
	// ranker uses it to break score ties deterministically.
	Order int
}

// Priority estimates how much attention the candidate deserves before
// scoring: bigger elements first, boosted when an image or price is present.
func (c Candidate) Priority() float64 {
	area := c.Box.Width * c.Box.Height
	if !c.HasBox {
		area = 1
	}
	p := area
	if c.Selection.Find("img").Length() > 0 {
		p *= 1.5
	}
	if pricePattern.MatchString(c.Selection.Text()) {
		p *= 1.3
	}
	return p
}

// Detector finds product candidates in goquery documents.
type Detector struct {
	cfg Config
}

// New returns a Detector using cfg for its size gate.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs all three strategies over the full document and returns the
// validated union in discovery order.
func (d *Detector) Detect(doc *goquery.Document) []Candidate {
	return d.collect(doc.Selection)
}

// DetectWithin scans only the given subtree. It is the entry point for
// incremental re-detection when the page mutates after the initial scan.
func (d *Detector) DetectWithin(root *goquery.Selection) []Candidate {
	return d.collect(root)
}

func (d *Detector) collect(root *goquery.Selection) []Candidate {
	seen := make(map[*html.Node]bool)
	var out []Candidate

	add := func(sel *goquery.Selection) {
		if sel.Length() == 0 {
			return
		}
		node := sel.Get(0)
		if seen[node] {
			return
		}
		seen[node] = true
		if !d.validate(sel) {
			return
		}
		box, hasBox := boxOf(sel)
		out = append(out, Candidate{
			Selection: sel,
			Box:       box,
			HasBox:    hasBox,
			Visible:   visibleOf(sel),
			Order:     len(out),
		})
	}

	for _, sel := range d.bySelectors(root) {
		add(sel)
	}
	for _, sel := range d.byHeuristics(root) {
		add(sel)
	}
	for _, sel := range d.byLayout(root) {
		add(sel)
	}
	return out
}

// bySelectors tries each static selector independently. A selector that
// cascadia rejects panics inside goquery on some versions, so every pass is
// isolated behind a recover.
func (d *Detector) bySelectors(root *goquery.Selection) []*goquery.Selection {
	var found []*goquery.Selection
	for _, selector := range productSelectors {
		found = append(found, safeFind(root, selector)...)
	}
	return found
}

func safeFind(root *goquery.Selection, selector string) (found []*goquery.Selection) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
		}
	}()
	root.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		found = append(found, sel)
	})
	return found
}

// byHeuristics qualifies any element with a measurable box of at least the
// minimum size, an image child, and either a price-like pattern or a
// commerce-intent word in its text. Elements without layout geometry are
// left to the other strategies.
func (d *Detector) byHeuristics(root *goquery.Selection) []*goquery.Selection {
	var found []*goquery.Selection
	root.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		box, ok := boxOf(sel)
		if !ok || box.Width < d.cfg.MinWidth || box.Height < d.cfg.MinHeight {
			return
		}
		if sel.Find("img").Length() == 0 {
			return
		}
		text := strings.ToLower(sel.Text())
		if pricePattern.MatchString(text) || containsAny(text, commerceWords) {
			found = append(found, sel)
		}
	})
	return found
}

// byLayout treats grid-like containers as product rows: when a container has
// at least three direct children and 70% or more of them carry an image,
// every image-bearing child is a candidate.
func (d *Detector) byLayout(root *goquery.Selection) []*goquery.Selection {
	var found []*goquery.Selection
	root.Find(layoutSelector).Each(func(_ int, container *goquery.Selection) {
		children := container.Children()
		total := children.Length()
		if total < 3 {
			return
		}
		var withImages []*goquery.Selection
		children.Each(func(_ int, child *goquery.Selection) {
			if child.Find("img").Length() > 0 {
				withImages = append(withImages, child)
			}
		})
		if float64(len(withImages)) >= float64(total)*0.7 {
			found = append(found, withImages...)
		}
	})
	return found
}

// validate applies the exclusion list, the size bounds, and the
// required-image rule. Size bounds only apply when the element has
// measurable geometry; a server-side DOM often has none, and rejecting
// everything unmeasurable would defeat the scan.
func (d *Detector) validate(sel *goquery.Selection) bool {
	for _, ex := range excludeSelectors {
		if matchesSafely(sel, ex) {
			return false
		}
	}
	if box, ok := boxOf(sel); ok {
		if box.Width < d.cfg.MinWidth || box.Height < d.cfg.MinHeight ||
			box.Width > d.cfg.MaxWidth || box.Height > d.cfg.MaxHeight {
			return false
		}
	}
	return sel.Find("img").Length() > 0
}

func matchesSafely(sel *goquery.Selection, selector string) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
	}()
	return sel.Is(selector)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
