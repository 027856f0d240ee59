// Package query turns a free-text search query into a structured intent the
// scoring engine can match products against. Parsing is a pure function of
// the lower-cased input: no I/O, no hidden state.
package query

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/stylescout/stylescout-backend/internal/vocab"
)

// Intent is the coarse classification of what the user cares about most.
type Intent string

const (
	IntentVisual   Intent = "visual"
	IntentPrice    Intent = "price"
	IntentSpecific Intent = "specific"
	IntentGeneral  Intent = "general"
)

// PriceRange bounds a query's acceptable price. A nil bound means
// unconstrained on that side.
type PriceRange struct {
	Min *float64
	Max *float64
}

// ParsedQuery is the structured form of one user search.
type ParsedQuery struct {
	Original   string
	Category   string
	Colors     []string
	Materials  []string
	Styles     []string
	Brands     []string
	Sizes      []string
	PriceRange PriceRange
	Keywords   []string
	Intent     Intent
}

// ErrEmptyQuery is returned when the input is empty or whitespace only.
var ErrEmptyQuery = errors.New("query is empty")

var (
	maxRe   = regexp.MustCompile(`(?:under|below|less than|<)\s*\$?(\d+(?:\.\d+)?)`)
	minRe   = regexp.MustCompile(`(?:over|above|more than|>)\s*\$?(\d+(?:\.\d+)?)`)
	rangeRe = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*(?:to|-)\s*\$?(\d+(?:\.\d+)?)`)
)

// Parse converts raw into a ParsedQuery. All vocabulary matching runs against
// a single lower-cased copy of the input; Keywords preserve original case.
func Parse(raw string) (*ParsedQuery, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyQuery
	}
	lower := strings.ToLower(raw)

	return &ParsedQuery{
		Original:   raw,
		Category:   vocab.MatchCategory(lower),
		Colors:     vocab.MatchColors(lower),
		Materials:  vocab.MatchMaterials(lower),
		Styles:     vocab.MatchStyles(lower),
		Brands:     vocab.MatchBrands(lower),
		Sizes:      vocab.MatchSizes(lower),
		PriceRange: parsePriceRange(lower),
		Keywords:   extractKeywords(raw),
		Intent:     classifyIntent(lower),
	}, nil
}

// parsePriceRange applies the three directive patterns in a fixed order.
// Each directive overwrites its own bound and an explicit range overwrites
// both, so conflicting directives resolve last-writer-wins. That matches the
// reference behavior; it is deliberately not "fixed" here.
func parsePriceRange(lower string) PriceRange {
	var pr PriceRange
	if ms := maxRe.FindAllStringSubmatch(lower, -1); ms != nil {
		pr.Max = parseAmount(ms[len(ms)-1][1])
	}
	if ms := minRe.FindAllStringSubmatch(lower, -1); ms != nil {
		pr.Min = parseAmount(ms[len(ms)-1][1])
	}
	if ms := rangeRe.FindAllStringSubmatch(lower, -1); ms != nil {
		m := ms[len(ms)-1]
		pr.Min = parseAmount(m[1])
		pr.Max = parseAmount(m[2])
	}
	return pr
}

func parseAmount(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// classifyIntent applies the rules in construction order; the first hit wins.
// The vocabularies overlap ("similar price" is visual, not price) and that
// ordering is part of the contract.
func classifyIntent(lower string) Intent {
	switch {
	case strings.Contains(lower, "like") || strings.Contains(lower, "similar"):
		return IntentVisual
	case strings.Contains(lower, "$") || strings.Contains(lower, "price") || strings.Contains(lower, "cheap"):
		return IntentPrice
	case strings.Contains(lower, "brand") || strings.Contains(lower, "size"):
		return IntentSpecific
	default:
		return IntentGeneral
	}
}

// extractKeywords tokenizes on whitespace and drops stop words and tokens of
// length two or less. Original case is preserved.
func extractKeywords(raw string) []string {
	var out []string
	for _, tok := range strings.Fields(raw) {
		if len(tok) <= 2 {
			continue
		}
		if vocab.StopWords[strings.ToLower(tok)] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
