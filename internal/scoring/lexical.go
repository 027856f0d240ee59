package scoring

import (
	"context"
	"strings"

	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/query"
)

// Lexical scores products with plain text matching. It needs no backend and
// is the default strategy.
type Lexical struct{}

// NewLexical returns the lexical strategy.
func NewLexical() *Lexical {
	return &Lexical{}
}

func (*Lexical) Name() string { return "lexical" }

// Score never returns an error; lexical matching has no failure mode.
func (s *Lexical) Score(_ context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) (Breakdown, error) {
	b := Breakdown{
		Text:      s.scoreText(rec, q),
		Heuristic: scoreHeuristic(rec, q, 0, 0.10),
		Category:  scoreCategory(rec, q),
		Style:     s.scoreStyle(rec, q),
	}
	if rec.ImageURL != "" {
		// Presence bonus only; the lexical strategy cannot inspect pixels.
		b.Image = 0.3
	}

	b.Final = combine(b, q.Intent)
	b.Confidence = confidence(b, 0.1, 0.95)
	b.Reasoning = reasoning(b)
	return b, nil
}

// scoreText awards an exact-substring bonus, a keyword-coverage share, and a
// small bonus per matched color, material, and style term, clamped to 1.
func (s *Lexical) scoreText(rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	textLower := strings.ToLower(rec.TextContent)
	score := 0.0

	if strings.Contains(textLower, strings.ToLower(q.Original)) {
		score += 0.8
	}

	if len(q.Keywords) > 0 {
		matched := 0
		for _, kw := range q.Keywords {
			if strings.Contains(textLower, strings.ToLower(kw)) {
				matched++
			}
		}
		score += float64(matched) / float64(len(q.Keywords)) * 0.5
	}

	for _, group := range [][]string{q.Colors, q.Materials, q.Styles} {
		for _, term := range group {
			if strings.Contains(textLower, term) {
				score += 0.1
			}
		}
	}

	return clamp(score, 0, 1)
}

// scoreStyle is presence-based here: any matched style scores 0.8, none
// scores 0.3, and a query without styles is neutral. The semantic strategy
// uses the matched fraction instead.
func (s *Lexical) scoreStyle(rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	frac, any := styleFraction(rec, q)
	if len(q.Styles) == 0 {
		return frac // neutral 0.5
	}
	if any {
		return 0.8
	}
	return 0.3
}
