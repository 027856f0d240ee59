package scoring

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/stylescout/stylescout-backend/internal/embed"
	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/query"
)

// Semantic scores products with embedding similarity from a model backend,
// blended with the same lexical signals the cheap strategy uses. A backend
// failure zeroes the affected component and the scan continues; it never
// aborts the item.
type Semantic struct {
	embedder embed.Embedder
	log      *zap.Logger

	// queryVec caches the query embedding for the scan; every product pairs
	// against the same query so one call suffices. Guarded by mu because
	// items within a batch score concurrently.
	mu         sync.Mutex
	queryVec   []float64
	queryVecOf string
}

// NewSemantic returns the semantic strategy. The logger may be nil.
func NewSemantic(embedder embed.Embedder, log *zap.Logger) *Semantic {
	if log == nil {
		log = zap.NewNop()
	}
	return &Semantic{embedder: embedder, log: log}
}

func (*Semantic) Name() string { return "semantic" }

func (s *Semantic) Score(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) (Breakdown, error) {
	b := Breakdown{
		Text:      s.scoreText(ctx, rec, q),
		Image:     s.scoreImage(ctx, rec, q),
		Heuristic: scoreHeuristic(rec, q, -0.2, 0.15),
		Category:  scoreCategory(rec, q),
	}
	b.Style, _ = styleFraction(rec, q)

	b.Final = combine(b, q.Intent)
	b.Confidence = confidence(b, 0, 1)
	b.Reasoning = reasoning(b)
	return b, nil
}

// scoreText blends embedding cosine similarity with keyword coverage and
// exact-match bonuses: 0.4 semantic, 0.3 keywords, 0.2 exact matches, 0.1
// fashion terminology overlap.
func (s *Semantic) scoreText(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	semanticScore := 0.0
	queryVec, err := s.queryEmbedding(ctx, q.Original)
	if err == nil {
		textVec, err := s.embedder.EmbedText(ctx, rec.TextContent)
		if err == nil {
			semanticScore = embed.Cosine(queryVec, textVec)
		} else {
			s.log.Debug("text embedding failed", zap.Error(err))
		}
	} else {
		s.log.Debug("query embedding failed", zap.Error(err))
	}

	keywordScore := 0.0
	if len(q.Keywords) > 0 {
		textLower := strings.ToLower(rec.TextContent)
		matched := 0
		for _, kw := range q.Keywords {
			if strings.Contains(textLower, strings.ToLower(kw)) {
				matched++
			}
		}
		keywordScore = float64(matched) / float64(len(q.Keywords))
	}

	return clamp(semanticScore*0.4+keywordScore*0.3+s.exactMatches(rec, q)*0.2+s.termOverlap(rec, q)*0.1, 0, 1)
}

func (s *Semantic) exactMatches(rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	textLower := strings.ToLower(rec.TextContent)
	score := 0.0
	if strings.Contains(textLower, strings.ToLower(q.Original)) {
		score += 0.5
	}
	for _, group := range [][]string{q.Colors, q.Styles} {
		for _, term := range group {
			if strings.Contains(textLower, term) {
				score += 0.1
			}
		}
	}
	return clamp(score, 0, 1)
}

// termOverlap gives a small bonus for each fashion term the query and the
// product text share.
func (s *Semantic) termOverlap(rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	textLower := strings.ToLower(rec.TextContent)
	queryLower := strings.ToLower(q.Original)
	score := 0.0
	for _, term := range sharedFashionTerms() {
		if strings.Contains(textLower, term) && strings.Contains(queryLower, term) {
			score += 0.05
		}
	}
	return clamp(score, 0, 1)
}

// scoreImage is embedding similarity between the query text and the product
// image, plus a flat bonus when the query named colors (visual inspection is
// assumed to confirm them).
func (s *Semantic) scoreImage(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) float64 {
	if rec.ImageURL == "" {
		return 0
	}
	queryVec, err := s.queryEmbedding(ctx, q.Original)
	if err != nil {
		return 0
	}
	imageVec, err := s.embedder.EmbedImage(ctx, rec.ImageURL)
	if err != nil {
		s.log.Debug("image embedding failed", zap.String("url", rec.ImageURL), zap.Error(err))
		return 0
	}
	score := embed.Cosine(queryVec, imageVec)
	if len(q.Colors) > 0 {
		score += 0.1
	}
	return clamp(score, 0, 1)
}

func (s *Semantic) queryEmbedding(ctx context.Context, original string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryVec != nil && s.queryVecOf == original {
		return s.queryVec, nil
	}
	vec, err := s.embedder.EmbedText(ctx, original)
	if err != nil {
		return nil, err
	}
	s.queryVec = vec
	s.queryVecOf = original
	return vec, nil
}

func sharedFashionTerms() []string {
	return []string{
		"shirt", "blouse", "tank", "tee", "sweater", "hoodie", "cardigan",
		"pants", "jeans", "trousers", "shorts", "skirt", "leggings",
		"dress", "gown", "jacket", "coat", "blazer",
		"sneakers", "boots", "heels", "sandals", "bag", "belt", "hat",
	}
}
