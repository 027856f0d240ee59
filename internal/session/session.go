// Package session orchestrates one product search over a document: detect
// candidates, extract records, score them in bounded concurrent batches, and
// rank the survivors. A Session owns all per-search state (query cache,
// score cache, in-flight flag) so nothing leaks between searches through
// package globals.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stylescout/stylescout-backend/internal/detector"
	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/query"
	"github.com/stylescout/stylescout-backend/internal/rank"
	"github.com/stylescout/stylescout-backend/internal/scoring"
)

// IDAttr is written onto each scored element so the rendering layer can
// locate it again from the result's ID.
const IDAttr = "data-sg-id"

// Input is either a free-text query or a reference image URL. Exactly one
// should be set; when both are, the image wins.
type Input struct {
	Query    string
	ImageURL string
}

// Options tune a session's scheduling behavior.
type Options struct {
	BatchSize           int
	MaxConcurrent       int
	ConfidenceThreshold float64
	MaxResults          int
	Timeout             time.Duration
	// YieldInterval is the cooperative pause between batches.
	YieldInterval time.Duration
}

// DefaultOptions mirror the reference settings: batches of 10, fan-out of 5,
// 0.25 threshold, 50ms yields, 30 second scans.
func DefaultOptions() Options {
	return Options{
		BatchSize:           10,
		MaxConcurrent:       5,
		ConfidenceThreshold: 0.25,
		MaxResults:          rank.MaxResults,
		Timeout:             30 * time.Second,
		YieldInterval:       50 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = def.MaxConcurrent
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if o.MaxResults <= 0 {
		o.MaxResults = def.MaxResults
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.YieldInterval <= 0 {
		o.YieldInterval = def.YieldInterval
	}
	return o
}

// Progress receives coarse stage descriptions. It is observational only and
// must not block for long.
type Progress func(stage string)

// Result is one ranked match.
type Result struct {
	// ID is the handle written to the element's data attribute.
	ID     string                  `json:"id"`
	Record extractor.ProductRecord `json:"record"`
	Score  scoring.Breakdown       `json:"score"`
}

// Session runs searches. Only one search may be in flight at a time; a
// second call is rejected immediately with ErrScanInProgress.
type Session struct {
	detector *detector.Detector
	strategy scoring.Strategy
	opts     Options
	log      *zap.Logger

	queries  *query.Cache
	scores   *rank.Cache
	inFlight atomic.Bool
}

// New builds a Session. The logger may be nil.
func New(det *detector.Detector, strategy scoring.Strategy, opts Options, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		detector: det,
		strategy: strategy,
		opts:     opts.withDefaults(),
		log:      log,
		queries:  query.NewCache(),
		scores:   rank.NewCache(rank.DefaultCacheSize),
	}
}

// Search scans doc for products matching in and returns the ranked matches.
// pageURL anchors relative image links and may be nil. progress may be nil.
//
// A page with no detectable products resolves to an empty list, not an
// error. Per-candidate failures are absorbed; only invalid input, a
// concurrent scan, or an overall timeout reject the call.
func (s *Session) Search(ctx context.Context, in Input, doc *goquery.Document, pageURL *url.URL, progress Progress) ([]Result, error) {
	if strings.TrimSpace(in.Query) == "" && strings.TrimSpace(in.ImageURL) == "" {
		return nil, ErrInvalidInput
	}
	if _, imageOnly := s.strategy.(*scoring.ImageOnly); imageOnly && strings.TrimSpace(in.ImageURL) == "" {
		// The image strategy matches pictures against a reference picture;
		// a free-text query gives it nothing to fetch.
		return nil, ErrInvalidInput
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.inFlight.Store(false)

	if progress == nil {
		progress = func(string) {}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	parsed, queryKey, err := s.resolveQuery(in)
	if err != nil {
		return nil, err
	}

	progress("Detecting products...")
	candidates := s.detector.Detect(doc)
	s.log.Info("detection complete", zap.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		progress("No products found on this page.")
		return []Result{}, nil
	}

	prioritized := prioritize(candidates)
	ext := extractor.New(pageURL, strings.TrimSpace(doc.Find("title").First().Text()))

	scored, err := s.scoreAll(ctx, prioritized, ext, parsed, queryKey, progress)
	if err != nil {
		return nil, err
	}

	ranked := rank.Rank(scored, s.opts.ConfidenceThreshold, s.opts.MaxResults)
	progress(fmt.Sprintf("Search complete: %d matches.", len(ranked)))

	results := make([]Result, len(ranked))
	for i, r := range ranked {
		results[i] = Result{ID: r.ID, Record: r.Record, Score: r.Score}
	}
	return results, nil
}

// resolveQuery parses text input through the session cache, or builds the
// minimal query an image reference needs.
func (s *Session) resolveQuery(in Input) (*query.ParsedQuery, string, error) {
	if strings.TrimSpace(in.ImageURL) != "" {
		imageURL := strings.TrimSpace(in.ImageURL)
		return &query.ParsedQuery{
			Original: imageURL,
			Intent:   query.IntentVisual,
		}, imageURL, nil
	}

	parsed, err := s.queries.Parse(in.Query)
	if err != nil {
		if errors.Is(err, query.ErrEmptyQuery) {
			return nil, "", ErrInvalidInput
		}
		return nil, "", err
	}
	return parsed, in.Query, nil
}

// scoreAll processes candidates in fixed-size batches. Within a batch items
// score concurrently up to MaxConcurrent; between batches the session yields
// so a host process stays responsive. Batch boundaries never influence the
// final order: ranking depends only on scores and detection order.
func (s *Session) scoreAll(ctx context.Context, candidates []detector.Candidate, ext *extractor.Extractor, parsed *query.ParsedQuery, queryKey string, progress Progress) ([]rank.Scored, error) {
	// IDs are stamped onto the document before any goroutine starts. The
	// scoring fan-out reads the same DOM concurrently, and candidates can
	// nest, so mutating node attributes from inside the group would race
	// with sibling traversals.
	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = uuid.NewString()
		cand.Selection.SetAttr(IDAttr, ids[i])
	}

	var mu sync.Mutex
	scored := make([]rank.Scored, 0, len(candidates))
	processed := 0

	for start := 0; start < len(candidates); start += s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, s.timeoutErr(err)
		}

		end := start + s.opts.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.MaxConcurrent)
		for i, cand := range batch {
			cand := cand
			id := ids[start+i]
			g.Go(func() error {
				res, err := s.scoreOne(gctx, cand, id, ext, parsed, queryKey)
				if err != nil {
					return err
				}
				mu.Lock()
				scored = append(scored, res)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if errors.Is(err, scoring.ErrNoQueryImage) {
				return nil, ErrInvalidInput
			}
			return nil, s.timeoutErr(err)
		}

		processed += len(batch)
		progress(fmt.Sprintf("Analyzed %d/%d items...", processed, len(candidates)))

		if end < len(candidates) {
			select {
			case <-ctx.Done():
				return nil, s.timeoutErr(ctx.Err())
			case <-time.After(s.opts.YieldInterval):
			}
		}
	}
	return scored, nil
}

// scoreOne extracts, consults the score cache, and scores on a miss. A
// strategy failure degrades the item to a zero breakdown instead of
// propagating; one bad product must not abort the scan.
func (s *Session) scoreOne(ctx context.Context, cand detector.Candidate, id string, ext *extractor.Extractor, parsed *query.ParsedQuery, queryKey string) (rank.Scored, error) {
	rec := ext.Extract(cand)
	fp := rank.Fingerprint(rec.ImageURL, rec.TextContent, queryKey)

	breakdown, cached := s.scores.Get(fp)
	if !cached {
		var err error
		breakdown, err = s.strategy.Score(ctx, rec, parsed)
		if err != nil {
			if errors.Is(err, scoring.ErrNoQueryImage) || ctx.Err() != nil {
				return rank.Scored{}, err
			}
			s.log.Warn("scoring failed, item degraded to zero", zap.Error(err))
			breakdown = scoring.Breakdown{Reasoning: "scoring unavailable"}
		}
		s.scores.Put(fp, breakdown)
	}

	return rank.Scored{
		ID:     id,
		Record: rec,
		Score:  breakdown,
		Order:  cand.Order,
	}, nil
}

func (s *Session) timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("search aborted: %w", err)
}

// prioritize orders candidates for scoring: visible ones first, then by
// descending priority. Detection order is preserved on the candidates
// themselves so ranking ties are unaffected by this shuffle.
func prioritize(candidates []detector.Candidate) []detector.Candidate {
	out := make([]detector.Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Visible != out[j].Visible {
			return out[i].Visible
		}
		return out[i].Priority() > out[j].Priority()
	})
	return out
}
