package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylescout/stylescout-backend/internal/detector"
	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/query"
	"github.com/stylescout/stylescout-backend/internal/scoring"
	"github.com/stylescout/stylescout-backend/internal/session"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func productPage() string {
	return `<html><head><title>Shop | Example</title></head><body>
		<div class="product-card"><img src="/jacket.jpg">Black Leather Jacket $149.99</div>
		<div class="product-card"><img src="/vase.jpg">Ceramic Flower Vase $20.00</div>
	</body></html>`
}

func newSession(strategy scoring.Strategy, opts session.Options) *session.Session {
	return session.New(detector.New(detector.DefaultConfig()), strategy, opts, nil)
}

// stubStrategy scores by looking the record text up in a table. Safe for
// concurrent use; the table is read-only after construction.
type stubStrategy struct {
	scores map[string]float64
	calls  atomic.Int64
	fn     func(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) (scoring.Breakdown, error)
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Score(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) (scoring.Breakdown, error) {
	s.calls.Add(1)
	if s.fn != nil {
		return s.fn(ctx, rec, q)
	}
	for name, final := range s.scores {
		if strings.Contains(rec.TextContent, name) {
			return scoring.Breakdown{Final: final, Confidence: final}, nil
		}
	}
	return scoring.Breakdown{}, nil
}

func TestSearchRanksAndFilters(t *testing.T) {
	doc := parseDoc(t, productPage())
	s := newSession(scoring.NewLexical(), session.Options{})

	var stages []string
	results, err := s.Search(context.Background(), session.Input{Query: "black leather jacket"}, doc, nil, func(stage string) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	// The vase card scores below the 0.25 threshold and is dropped.
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Record.TextContent, "Black Leather Jacket")
	assert.Greater(t, results[0].Score.Final, 0.25)
	assert.NotEmpty(t, results[0].ID)
	assert.NotEmpty(t, results[0].Score.Reasoning)

	// Every scored element is tagged with its handle, dropped ones included.
	assert.Equal(t, 2, doc.Find("[data-sg-id]").Length())
	tagged, _ := doc.Find("[data-sg-id]").First().Attr(session.IDAttr)
	assert.NotEmpty(t, tagged)

	require.NotEmpty(t, stages)
	assert.Equal(t, "Detecting products...", stages[0])
	assert.Contains(t, stages[len(stages)-1], "Search complete")
}

func TestSearchEmptyPageIsNotAnError(t *testing.T) {
	doc := parseDoc(t, `<html><body><p>Nothing for sale here.</p></body></html>`)
	s := newSession(scoring.NewLexical(), session.Options{})

	results, err := s.Search(context.Background(), session.Input{Query: "black jacket"}, doc, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRejectsBlankInput(t *testing.T) {
	doc := parseDoc(t, productPage())
	s := newSession(scoring.NewLexical(), session.Options{})

	for _, in := range []session.Input{{}, {Query: "   "}, {Query: "\t", ImageURL: " "}} {
		_, err := s.Search(context.Background(), in, doc, nil, nil)
		assert.ErrorIs(t, err, session.ErrInvalidInput)
	}
}

func TestSearchRejectsConcurrentScan(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	var once atomic.Bool
	strategy := &stubStrategy{fn: func(context.Context, extractor.ProductRecord, *query.ParsedQuery) (scoring.Breakdown, error) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-gate
		return scoring.Breakdown{}, nil
	}}
	s := newSession(strategy, session.Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), session.Input{Query: "jacket"}, parseDoc(t, productPage()), nil, nil)
		errCh <- err
	}()

	<-started
	_, err := s.Search(context.Background(), session.Input{Query: "jacket"}, parseDoc(t, productPage()), nil, nil)
	assert.ErrorIs(t, err, session.ErrScanInProgress)

	close(gate)
	require.NoError(t, <-errCh)

	// The slot frees up once the first search finishes.
	_, err = s.Search(context.Background(), session.Input{Query: "jacket"}, parseDoc(t, productPage()), nil, nil)
	assert.NoError(t, err)
}

func TestSearchTimesOut(t *testing.T) {
	strategy := &stubStrategy{fn: func(ctx context.Context, _ extractor.ProductRecord, _ *query.ParsedQuery) (scoring.Breakdown, error) {
		<-ctx.Done()
		return scoring.Breakdown{}, ctx.Err()
	}}
	s := newSession(strategy, session.Options{Timeout: 30 * time.Millisecond})

	_, err := s.Search(context.Background(), session.Input{Query: "jacket"}, parseDoc(t, productPage()), nil, nil)
	assert.ErrorIs(t, err, session.ErrTimeout)
}

// Candidates nest when the selector and layout strategies both fire, so ID
// stamping must finish before the concurrent scoring fan-out starts reading
// the same nodes.
func TestSearchTagsNestedCandidates(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, `<article><div class="product-card"><img src="/%d.jpg">Wool Coat %d $10</div></article>`, i, i)
	}
	b.WriteString("</body></html>")
	doc := parseDoc(t, b.String())

	strategy := &stubStrategy{fn: func(context.Context, extractor.ProductRecord, *query.ParsedQuery) (scoring.Breakdown, error) {
		return scoring.Breakdown{Final: 0.8}, nil
	}}
	s := newSession(strategy, session.Options{MaxResults: 50})

	results, err := s.Search(context.Background(), session.Input{Query: "coat"}, doc, nil, nil)
	require.NoError(t, err)
	// Each article and each inner card is its own candidate.
	require.Len(t, results, 16)
	assert.Equal(t, 16, doc.Find("[data-sg-id]").Length())

	seen := make(map[string]bool)
	for _, r := range results {
		require.NotEmpty(t, r.ID)
		assert.False(t, seen[r.ID], "duplicate ID %s", r.ID)
		seen[r.ID] = true
		assert.Equal(t, 1, doc.Find(`[data-sg-id="`+r.ID+`"]`).Length())
	}
}

func TestSearchImageInputBuildsVisualQuery(t *testing.T) {
	var gotOriginal atomic.Value
	var gotIntent atomic.Value
	strategy := &stubStrategy{fn: func(_ context.Context, _ extractor.ProductRecord, q *query.ParsedQuery) (scoring.Breakdown, error) {
		gotOriginal.Store(q.Original)
		gotIntent.Store(q.Intent)
		return scoring.Breakdown{Final: 0.9}, nil
	}}
	s := newSession(strategy, session.Options{})

	results, err := s.Search(context.Background(), session.Input{
		ImageURL: "https://user.example/ref.jpg",
	}, parseDoc(t, productPage()), nil, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "https://user.example/ref.jpg", gotOriginal.Load())
	assert.Equal(t, query.IntentVisual, gotIntent.Load())
}

// nullEmbedder stands in for an unreachable embedding backend.
type nullEmbedder struct{}

func (nullEmbedder) EmbedText(context.Context, string) ([]float64, error) {
	return nil, errors.New("embedding backend unavailable")
}

func (nullEmbedder) EmbedImage(context.Context, string) ([]float64, error) {
	return nil, errors.New("embedding backend unavailable")
}

func TestSearchTextQueryRejectedByImageStrategy(t *testing.T) {
	s := newSession(scoring.NewImageOnly(nullEmbedder{}, nil), session.Options{})

	// Free text gives the image strategy nothing to fetch as a reference.
	_, err := s.Search(context.Background(), session.Input{Query: "black jacket"}, parseDoc(t, productPage()), nil, nil)
	assert.ErrorIs(t, err, session.ErrInvalidInput)

	// An actual image reference passes validation; the dead backend then
	// degrades every item instead of failing the scan.
	results, err := s.Search(context.Background(), session.Input{
		ImageURL: "https://user.example/ref.jpg",
	}, parseDoc(t, productPage()), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchMissingReferenceImageIsInvalidInput(t *testing.T) {
	strategy := &stubStrategy{fn: func(context.Context, extractor.ProductRecord, *query.ParsedQuery) (scoring.Breakdown, error) {
		return scoring.Breakdown{}, scoring.ErrNoQueryImage
	}}
	s := newSession(strategy, session.Options{})

	_, err := s.Search(context.Background(), session.Input{Query: "jacket"}, parseDoc(t, productPage()), nil, nil)
	assert.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestSearchDegradesFailedItems(t *testing.T) {
	strategy := &stubStrategy{fn: func(context.Context, extractor.ProductRecord, *query.ParsedQuery) (scoring.Breakdown, error) {
		return scoring.Breakdown{}, errors.New("backend exploded")
	}}
	s := newSession(strategy, session.Options{})

	// Failed items degrade to zero scores and fall under the threshold;
	// the search itself succeeds.
	results, err := s.Search(context.Background(), session.Input{Query: "jacket"}, parseDoc(t, productPage()), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchCachesIdenticalCandidates(t *testing.T) {
	// Two byte-identical cards share a fingerprint, so the second one must
	// hit the score cache. Sequential batches make the miss order
	// deterministic.
	doc := parseDoc(t, `<html><body>
		<div class="product-card"><img src="/a.jpg">Black Leather Jacket $149.99</div>
		<div class="product-card"><img src="/a.jpg">Black Leather Jacket $149.99</div>
	</body></html>`)
	strategy := &stubStrategy{scores: map[string]float64{"Jacket": 0.8}}
	s := newSession(strategy, session.Options{BatchSize: 1, MaxConcurrent: 1, YieldInterval: time.Millisecond})

	results, err := s.Search(context.Background(), session.Input{Query: "jacket"}, doc, nil, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, 1, strategy.calls.Load())
	// Cached or not, both elements get distinct handles.
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestSearchOrderSurvivesBatching(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<div class="product-card"><img src="/1.jpg">Alpha Coat</div>
		<div class="product-card"><img src="/2.jpg">Beta Coat</div>
		<div class="product-card"><img src="/3.jpg">Gamma Coat</div>
		<div class="product-card"><img src="/4.jpg">Delta Coat</div>
		<div class="product-card"><img src="/5.jpg">Omega Coat</div>
	</body></html>`)
	strategy := &stubStrategy{scores: map[string]float64{
		"Alpha": 0.50, "Beta": 0.90, "Gamma": 0.70, "Delta": 0.60, "Omega": 0.80,
	}}
	s := newSession(strategy, session.Options{BatchSize: 2, MaxConcurrent: 2, YieldInterval: time.Millisecond})

	results, err := s.Search(context.Background(), session.Input{Query: "coat"}, doc, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 5)

	var names []string
	for _, r := range results {
		names = append(names, strings.Fields(r.Record.TextContent)[0])
	}
	assert.Equal(t, []string{"Beta", "Omega", "Gamma", "Delta", "Alpha"}, names)
}

func TestSearchCapsResults(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 15; i++ {
		b.WriteString(`<div class="product-card"><img src="/c.jpg">Wool Coat Item</div>`)
	}
	b.WriteString("</body></html>")

	strategy := &stubStrategy{scores: map[string]float64{"Coat": 0.8}}
	s := newSession(strategy, session.Options{})

	results, err := s.Search(context.Background(), session.Input{Query: "coat"}, parseDoc(t, b.String()), nil, nil)
	require.NoError(t, err)
	assert.Len(t, results, 10)
}
