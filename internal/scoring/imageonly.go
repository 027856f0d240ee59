package scoring

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/stylescout/stylescout-backend/internal/embed"
	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/query"
)

// MinImageSimilarity is the floor below which an image-only match is not
// surfaced: sub-floor similarities keep a zero final score and never reach
// the ranked results.
const MinImageSimilarity = 0.7

// ErrNoQueryImage is returned when the image-only strategy is selected but
// the query carries no image reference.
var ErrNoQueryImage = errors.New("image-only scoring requires a reference image")

// ImageOnly matches products against a reference image. The query's
// Original field carries the image URL; text signals are ignored apart from
// a color bonus when the caller also supplied color hints.
type ImageOnly struct {
	embedder embed.Embedder
	log      *zap.Logger

	mu       sync.Mutex
	refVec   []float64
	refVecOf string
}

// NewImageOnly returns the image-only strategy. The logger may be nil.
func NewImageOnly(embedder embed.Embedder, log *zap.Logger) *ImageOnly {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImageOnly{embedder: embedder, log: log}
}

func (*ImageOnly) Name() string { return "image" }

func (s *ImageOnly) Score(ctx context.Context, rec extractor.ProductRecord, q *query.ParsedQuery) (Breakdown, error) {
	if q.Original == "" {
		return Breakdown{}, ErrNoQueryImage
	}
	var b Breakdown
	if rec.ImageURL == "" {
		b.Reasoning = "no product image"
		return b, nil
	}

	refVec, err := s.referenceEmbedding(ctx, q.Original)
	if err != nil {
		// Backend failure degrades this item to zero rather than failing
		// the scan.
		s.log.Debug("reference image embedding failed", zap.Error(err))
		return b, nil
	}
	prodVec, err := s.embedder.EmbedImage(ctx, rec.ImageURL)
	if err != nil {
		s.log.Debug("product image embedding failed", zap.String("url", rec.ImageURL), zap.Error(err))
		return b, nil
	}

	sim := embed.Cosine(refVec, prodVec)
	if len(q.Colors) > 0 {
		sim = clamp(sim+0.1, 0, 1)
	}

	b.Image = sim
	b.Confidence = clamp(sim, 0, 1)
	if sim >= MinImageSimilarity {
		b.Final = sim
		b.Reasoning = "visual similarity detected"
	} else {
		// Final stays zero below the floor so ranking drops the match.
		b.Reasoning = "low visual similarity"
	}
	return b, nil
}

func (s *ImageOnly) referenceEmbedding(ctx context.Context, imageURL string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refVec != nil && s.refVecOf == imageURL {
		return s.refVec, nil
	}
	vec, err := s.embedder.EmbedImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	s.refVec = vec
	s.refVecOf = imageURL
	return vec, nil
}
