package query_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stylescout/stylescout-backend/internal/query"
)

func f(v float64) *float64 { return &v }

func TestParse(t *testing.T) {
	testCases := []struct {
		description string
		raw         string
		want        query.ParsedQuery
	}{
		{
			description: "category, color and material",
			raw:         "black leather jacket",
			want: query.ParsedQuery{
				Original:  "black leather jacket",
				Category:  "outerwear",
				Colors:    []string{"black"},
				Materials: []string{"leather"},
				Keywords:  []string{"black", "leather", "jacket"},
				Intent:    query.IntentGeneral,
			},
		},
		{
			description: "price directive sets max and price intent",
			raw:         "red dress under $50",
			want: query.ParsedQuery{
				Original:   "red dress under $50",
				Category:   "dresses",
				Colors:     []string{"red"},
				PriceRange: query.PriceRange{Max: f(50)},
				Keywords:   []string{"red", "dress", "under", "$50"},
				Intent:     query.IntentPrice,
			},
		},
		{
			description: "explicit range sets both bounds",
			raw:         "casual shoes $30 to $60",
			want: query.ParsedQuery{
				Original:   "casual shoes $30 to $60",
				Category:   "shoes",
				Styles:     []string{"casual"},
				PriceRange: query.PriceRange{Min: f(30), Max: f(60)},
				Keywords:   []string{"casual", "shoes", "$30", "$60"},
				Intent:     query.IntentPrice,
			},
		},
		{
			description: "size token and specific intent",
			raw:         "medium blue shirt size",
			want: query.ParsedQuery{
				Original: "medium blue shirt size",
				Category: "tops",
				Colors:   []string{"blue"},
				Sizes:    []string{"m"},
				Keywords: []string{"medium", "blue", "shirt", "size"},
				Intent:   query.IntentSpecific,
			},
		},
		{
			description: "visual intent wins over price cues",
			raw:         "similar price gown",
			want: query.ParsedQuery{
				Original: "similar price gown",
				Category: "dresses",
				Keywords: []string{"similar", "price", "gown"},
				Intent:   query.IntentVisual,
			},
		},
		{
			description: "stop words and short tokens dropped from keywords",
			raw:         "a hat for the km",
			want: query.ParsedQuery{
				Original: "a hat for the km",
				Category: "accessories",
				Keywords: []string{"hat"},
				Intent:   query.IntentGeneral,
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			got, err := query.Parse(testCase.raw)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", testCase.raw, err)
			}
			if diff := cmp.Diff(&testCase.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", testCase.raw, diff)
			}
		})
	}
}

// Conflicting directives resolve last-writer-wins per bound; the parser does
// not reconcile an inverted range. This pins the accumulation policy down
// rather than leaving it implementation-defined.
func TestParseConflictingPriceDirectives(t *testing.T) {
	got, err := query.Parse("over $20 under $10")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := query.PriceRange{Min: f(20), Max: f(10)}
	if diff := cmp.Diff(want, got.PriceRange); diff != "" {
		t.Errorf("price range mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRepeatedDirectiveLastWins(t *testing.T) {
	got, err := query.Parse("under $80 shoes under $40")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got.PriceRange.Max == nil || *got.PriceRange.Max != 40 {
		t.Errorf("want max 40 from the last directive, got %+v", got.PriceRange)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	first, err := query.Parse("vintage denim jacket under $100")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	second, err := query.Parse("vintage denim jacket under $100")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated parse differs (-first +second):\n%s", diff)
	}
}

func TestParseRejectsEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n"} {
		if _, err := query.Parse(raw); !errors.Is(err, query.ErrEmptyQuery) {
			t.Errorf("Parse(%q): want ErrEmptyQuery, got %v", raw, err)
		}
	}
}

func TestCacheReturnsSameParse(t *testing.T) {
	cache := query.NewCache()
	first, err := cache.Parse("black leather jacket")
	if err != nil {
		t.Fatalf("cache parse returned error: %v", err)
	}
	second, err := cache.Parse("black leather jacket")
	if err != nil {
		t.Fatalf("cache parse returned error: %v", err)
	}
	if first != second {
		t.Error("cache returned a different ParsedQuery pointer for the same string")
	}
}
