package detector_test

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/stylescout/stylescout-backend/internal/detector"
)

func makeDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc
}

func newDetector() *detector.Detector {
	return detector.New(detector.DefaultConfig())
}

func TestDetectBySelectors(t *testing.T) {
	doc := makeDoc(t, `
		<div class="product-card"><img src="a.jpg"><span>Linen Shirt $29.99</span></div>
		<div class="sidebar"><span>About us</span></div>`)

	got := newDetector().Detect(doc)
	if len(got) != 1 {
		t.Fatalf("want 1 candidate, got %d", len(got))
	}
	if !strings.Contains(got[0].Selection.Text(), "Linen Shirt") {
		t.Errorf("candidate text = %q, want the product card", got[0].Selection.Text())
	}
}

func TestDetectDeduplicatesAcrossSelectors(t *testing.T) {
	// Matches .product, [class*=product] and [class*=card] at once.
	doc := makeDoc(t, `<div class="product product-card"><img src="a.jpg">Tee $9.99</div>`)

	got := newDetector().Detect(doc)
	if len(got) != 1 {
		t.Fatalf("want 1 deduplicated candidate, got %d", len(got))
	}
}

func TestDetectByHeuristics(t *testing.T) {
	testCases := []struct {
		description string
		body        string
		want        int
	}{
		{
			description: "measured box with image and price qualifies",
			body:        `<div class="listing" data-sg-rect="0,0,240,320"><img src="a.jpg">Wool Coat $120.00</div>`,
			want:        1,
		},
		{
			description: "commerce words qualify without a price pattern",
			body:        `<div class="listing" data-sg-rect="0,0,240,320"><img src="a.jpg">Add to cart</div>`,
			want:        1,
		},
		{
			description: "unmeasured elements are left to other strategies",
			body:        `<div class="listing"><img src="a.jpg">Wool Coat $120.00</div>`,
			want:        0,
		},
		{
			description: "below minimum size is rejected",
			body:        `<div class="listing" data-sg-rect="0,0,80,80"><img src="a.jpg">Coat $120.00</div>`,
			want:        0,
		},
		{
			description: "no image never qualifies",
			body:        `<div class="listing" data-sg-rect="0,0,240,320">Wool Coat $120.00</div>`,
			want:        0,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			got := newDetector().Detect(makeDoc(t, testCase.body))
			if len(got) != testCase.want {
				t.Errorf("want %d candidates, got %d", testCase.want, len(got))
			}
		})
	}
}

func TestDetectByLayout(t *testing.T) {
	doc := makeDoc(t, `
		<div class="results-grid">
			<div><img src="1.jpg">Dress One</div>
			<div><img src="2.jpg">Dress Two</div>
			<div><img src="3.jpg">Dress Three</div>
			<div>Load more</div>
		</div>`)

	got := newDetector().Detect(doc)
	if len(got) != 3 {
		t.Fatalf("want 3 grid children, got %d", len(got))
	}
}

func TestDetectByLayoutNeedsImageMajority(t *testing.T) {
	// Only 1 of 3 children carries an image; below the 70% bar.
	doc := makeDoc(t, `
		<div class="results-grid">
			<div><img src="1.jpg">Dress One</div>
			<div>Text only</div>
			<div>Text only</div>
		</div>`)

	if got := newDetector().Detect(doc); len(got) != 0 {
		t.Fatalf("want 0 candidates, got %d", len(got))
	}
}

func TestValidationGate(t *testing.T) {
	testCases := []struct {
		description string
		body        string
		want        int
	}{
		{
			description: "excluded class rejected",
			body:        `<div class="product-card sponsored"><img src="a.jpg">Shoes $10</div>`,
			want:        0,
		},
		{
			description: "oversized element rejected",
			body:        `<div class="product-card" data-sg-rect="0,0,2500,400"><img src="a.jpg">Shoes $10</div>`,
			want:        0,
		},
		{
			description: "in-bounds element accepted",
			body:        `<div class="product-card" data-sg-rect="0,0,300,300"><img src="a.jpg">Shoes $10</div>`,
			want:        1,
		},
		{
			description: "missing image rejected",
			body:        `<div class="product-card">Shoes $10</div>`,
			want:        0,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			got := newDetector().Detect(makeDoc(t, testCase.body))
			if len(got) != testCase.want {
				t.Errorf("want %d candidates, got %d", testCase.want, len(got))
			}
		})
	}
}

// Every surfaced candidate with measurable geometry must sit inside the
// configured size bounds.
func TestCandidatesRespectSizeBounds(t *testing.T) {
	doc := makeDoc(t, `
		<div class="product-card" data-sg-rect="0,0,50,50"><img src="s.jpg">Tiny $5</div>
		<div class="product-card" data-sg-rect="0,0,300,400"><img src="m.jpg">Fits $25</div>
		<div class="product-card" data-sg-rect="0,0,2400,2400"><img src="l.jpg">Huge $99</div>`)

	cfg := detector.DefaultConfig()
	got := detector.New(cfg).Detect(doc)
	for _, cand := range got {
		if !cand.HasBox {
			continue
		}
		if cand.Box.Width < cfg.MinWidth || cand.Box.Width > cfg.MaxWidth ||
			cand.Box.Height < cfg.MinHeight || cand.Box.Height > cfg.MaxHeight {
			t.Errorf("candidate box %+v escaped the size gate", cand.Box)
		}
	}
	if len(got) != 1 {
		t.Errorf("want only the in-bounds card, got %d candidates", len(got))
	}
}

func TestDetectWithinScansSubtreeOnly(t *testing.T) {
	doc := makeDoc(t, `
		<div id="old"><div class="product-card"><img src="a.jpg">Old $10</div></div>
		<div id="new"><div class="product-card"><img src="b.jpg">New $20</div></div>`)

	got := newDetector().DetectWithin(doc.Find("#new"))
	if len(got) != 1 {
		t.Fatalf("want 1 candidate in subtree, got %d", len(got))
	}
	if !strings.Contains(got[0].Selection.Text(), "New") {
		t.Errorf("candidate text = %q, want the new subtree's card", got[0].Selection.Text())
	}
}

func TestVisibilityAnnotation(t *testing.T) {
	doc := makeDoc(t, `
		<div class="product-card" data-sg-visible="false"><img src="a.jpg">Hidden $10</div>
		<div class="product-card"><img src="b.jpg">Shown $20</div>`)

	got := newDetector().Detect(doc)
	if len(got) != 2 {
		t.Fatalf("want 2 candidates, got %d", len(got))
	}
	for _, cand := range got {
		text := cand.Selection.Text()
		if strings.Contains(text, "Hidden") && cand.Visible {
			t.Error("annotated-hidden candidate reported visible")
		}
		if strings.Contains(text, "Shown") && !cand.Visible {
			t.Error("unannotated candidate should default to visible")
		}
	}
}
