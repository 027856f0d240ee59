// Package scoring computes multi-signal similarity between a parsed query
// and a product record. Three strategies implement the same interface: a
// cheap lexical matcher, a semantic matcher backed by an embedding model,
// and an image-only matcher for reference-image queries. Each produces five
// component scores in [0,1], a weighted final score, and a confidence
// estimate.
package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/query"
	"github.com/stylescout/stylescout-backend/internal/vocab"
)

// Breakdown holds the component scores for one (record, query) pair.
type Breakdown struct {
	Text       float64 `json:"text"`
	Image      float64 `json:"image"`
	Heuristic  float64 `json:"heuristic"`
	Category   float64 `json:"category"`
	Style      float64 `json:"style"`
	Final      float64 `json:"final"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Strategy scores a product record against a parsed query. Implementations
// must be safe for concurrent use within a scan.
type Strategy interface {
	Name() string
	Score(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) (Breakdown, error)
}

// weights are the default convex combination coefficients.
type weights struct {
	text, image, heuristic, category, style float64
}

func defaultWeights() weights {
	return weights{text: 0.35, image: 0.25, heuristic: 0.20, category: 0.10, style: 0.10}
}

// shiftForIntent perturbs the weights by query intent. The result is not
// renormalized; the slight drift from 1.0 is intentional and matches the
// reference behavior.
func (w weights) shiftForIntent(intent query.Intent) weights {
	switch intent {
	case query.IntentVisual:
		w.image += 0.15
		w.text -= 0.10
	case query.IntentSpecific:
		w.heuristic += 0.15
		w.text -= 0.10
	}
	return w
}

// combine applies the intent-shifted weights to the component scores.
func combine(b Breakdown, intent query.Intent) float64 {
	w := defaultWeights().shiftForIntent(intent)
	return b.Text*w.text + b.Image*w.image + b.Heuristic*w.heuristic +
		b.Category*w.category + b.Style*w.style
}

// confidence grows with the mean component score, the number of non-zero
// components, and the agreement between them:
//
//	mean * (nonZero/5) * (1 - stddev)
//
// clamped to [lo, hi]. The lexical strategy clamps to [0.1, 0.95], the
// semantic one to [0, 1].
func confidence(b Breakdown, lo, hi float64) float64 {
	scores := []float64{b.Text, b.Image, b.Heuristic, b.Category, b.Style}
	var sum float64
	nonZero := 0
	for _, s := range scores {
		sum += s
		if s > 0 {
			nonZero++
		}
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	c := mean * (float64(nonZero) / float64(len(scores))) * (1 - math.Sqrt(variance))
	return clamp(c, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// scoreHeuristic awards bonuses for matching price range, brand, size, and
// material. outOfRangePenalty is 0 for the lexical strategy and negative for
// the semantic one; the asymmetry is a preserved per-strategy difference,
// not an oversight.
func scoreHeuristic(rec extractor.ProductRecord, q *query.ParsedQuery, outOfRangePenalty, materialBonus float64) float64 {
	score := 0.0
	textLower := strings.ToLower(rec.TextContent)

	if q.PriceRange.Min != nil || q.PriceRange.Max != nil {
		if rec.Price != nil {
			if priceInRange(*rec.Price, q.PriceRange) {
				score += 0.3
			} else {
				score += outOfRangePenalty
			}
		}
	}
	if len(q.Brands) > 0 && containsAnyFold(textLower, q.Brands) {
		score += 0.2
	}
	if len(q.Sizes) > 0 && matchesAny(q.Sizes, rec.Attributes.Sizes) {
		score += 0.1
	}
	if len(q.Materials) > 0 && containsAnyFold(textLower, q.Materials) {
		score += materialBonus
	}
	return clamp(score, 0, 1)
}

func priceInRange(price float64, pr query.PriceRange) bool {
	if pr.Min != nil && price < *pr.Min {
		return false
	}
	if pr.Max != nil && price > *pr.Max {
		return false
	}
	return true
}

// scoreCategory checks the parsed category against the product text: 0.9 for
// an exact mention, 0.7 for a synonym, 0.3 for a parsed-but-absent category,
// and a neutral 0.5 when the query named no category at all.
func scoreCategory(rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	if q.Category == "" {
		return 0.5
	}
	textLower := strings.ToLower(rec.TextContent)
	if strings.Contains(textLower, q.Category) {
		return 0.9
	}
	for _, syn := range vocab.CategorySynonyms(q.Category) {
		if strings.Contains(textLower, syn) {
			return 0.7
		}
	}
	return 0.3
}

// styleFraction is the share of parsed style terms present in the text.
func styleFraction(rec extractor.ProductRecord, q *query.ParsedQuery) (float64, bool) {
	if len(q.Styles) == 0 {
		return 0.5, false
	}
	textLower := strings.ToLower(rec.TextContent)
	matched := 0
	for _, style := range q.Styles {
		if strings.Contains(textLower, style) {
			matched++
		}
	}
	return float64(matched) / float64(len(q.Styles)), matched > 0
}

// reasoning summarizes which components drove the score, in the same terms
// the breakdown reports.
func reasoning(b Breakdown) string {
	var reasons []string
	if b.Text > 0.7 {
		reasons = append(reasons, "strong text match")
	}
	if b.Image > 0.7 {
		reasons = append(reasons, "visual similarity detected")
	}
	if b.Heuristic > 0.5 {
		reasons = append(reasons, "matching attributes found")
	}
	if b.Category > 0.8 {
		reasons = append(reasons, "correct category")
	}
	if b.Style > 0.6 {
		reasons = append(reasons, "style alignment")
	}
	if len(reasons) == 0 {
		return "low confidence match"
	}
	return strings.Join(reasons, ", ")
}

func containsAnyFold(textLower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(textLower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func matchesAny(want, have []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = true
	}
	for _, w := range want {
		if set[strings.ToLower(w)] {
			return true
		}
	}
	return false
}
