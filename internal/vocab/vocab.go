// Package vocab holds the fixed fashion vocabularies shared by the query
// parser and the product data extractor. Both sides must agree on canonical
// terms, so the tables live here rather than in either consumer.
//
// Membership scans use Aho-Corasick matchers built once at startup; a single
// pass over the text finds every known term regardless of how large the
// vocabulary grows.
package vocab

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Categories maps a canonical category to the synonyms that imply it.
// Iteration for "first match wins" uses CategoryOrder, not map order.
var Categories = map[string][]string{
	"tops":        {"shirt", "blouse", "tank", "tee", "t-shirt", "polo", "sweater", "hoodie", "cardigan"},
	"bottoms":     {"pants", "jeans", "trousers", "shorts", "skirt", "leggings", "chinos", "slacks"},
	"dresses":     {"dress", "gown", "frock", "sundress", "maxi", "mini"},
	"outerwear":   {"jacket", "coat", "blazer", "vest", "parka", "bomber"},
	"shoes":       {"shoes", "sneakers", "boots", "heels", "flats", "sandals", "loafers"},
	"accessories": {"bag", "purse", "wallet", "belt", "scarf", "hat"},
}

// CategoryOrder fixes the precedence when a query mentions terms from more
// than one category.
var CategoryOrder = []string{"tops", "bottoms", "dresses", "outerwear", "shoes", "accessories"}

// Colors maps a canonical color to its common shade names. The canonical
// name itself is always included so "navy blue dress" and "blue dress" both
// resolve to "blue".
var Colors = map[string][]string{
	"black":  {"black", "ebony", "charcoal", "jet", "onyx"},
	"white":  {"white", "ivory", "cream", "off-white", "pearl"},
	"blue":   {"blue", "navy", "royal", "cerulean", "azure"},
	"red":    {"red", "crimson", "scarlet", "burgundy", "maroon"},
	"green":  {"green", "emerald", "forest", "olive", "sage"},
	"brown":  {"brown", "tan", "beige", "khaki", "camel"},
	"gray":   {"gray", "grey", "silver", "slate", "pewter"},
	"pink":   {"pink", "rose", "blush", "coral", "magenta"},
	"yellow": {"yellow", "gold", "amber", "mustard", "lemon"},
	"purple": {"purple", "violet", "lavender", "plum", "indigo"},
}

// Materials are matched literally; there are no synonym families.
var Materials = []string{"cotton", "wool", "silk", "denim", "leather", "polyester", "linen", "cashmere"}

// Styles maps a canonical style to the words that signal it.
var Styles = map[string][]string{
	"casual":     {"casual", "relaxed", "everyday", "comfortable"},
	"formal":     {"formal", "dressy", "elegant", "sophisticated"},
	"vintage":    {"vintage", "retro", "classic", "timeless"},
	"modern":     {"modern", "contemporary", "trendy", "current"},
	"minimalist": {"minimalist", "simple", "clean", "basic"},
	"bohemian":   {"boho", "bohemian", "hippie", "free-spirited"},
}

// Brands is a flat list of recognized labels.
var Brands = []string{"nike", "adidas", "zara", "h&m", "uniqlo", "gap", "levi", "gucci", "prada"}

// Sizes maps a canonical size code to its spelled-out aliases. Size matching
// is token-based, not substring-based: "s" as a substring would hit nearly
// every word in English.
var Sizes = map[string][]string{
	"xs":  {"xs", "extra small", "x-small", "xsmall"},
	"s":   {"s", "small"},
	"m":   {"m", "medium", "med"},
	"l":   {"l", "large"},
	"xl":  {"xl", "extra large", "x-large", "xlarge"},
	"xxl": {"xxl", "2xl", "xx-large"},
}

// StopWords are dropped during keyword extraction.
var StopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true,
}

// familyMatcher pairs an Aho-Corasick matcher over a flattened term list with
// the mapping back from term index to canonical family key.
type familyMatcher struct {
	matcher *ahocorasick.Matcher
	owner   []int
	keys    []string
}

func newFamilyMatcher(keys []string, families map[string][]string) *familyMatcher {
	var terms []string
	var owner []int
	for i, key := range keys {
		for _, term := range families[key] {
			terms = append(terms, term)
			owner = append(owner, i)
		}
	}
	return &familyMatcher{
		matcher: ahocorasick.NewStringMatcher(terms),
		owner:   owner,
		keys:    keys,
	}
}

// matchAll returns the canonical keys whose families have at least one term
// present in text, in key order.
func (fm *familyMatcher) matchAll(text string) []string {
	hits := fm.matcher.Match([]byte(text))
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		seen[fm.owner[h]] = true
	}
	var out []string
	for i, key := range fm.keys {
		if seen[i] {
			out = append(out, key)
		}
	}
	return out
}

// matchFirst returns the first canonical key (in key order) with a term
// present in text, or "".
func (fm *familyMatcher) matchFirst(text string) string {
	hits := fm.matcher.Match([]byte(text))
	best := len(fm.keys)
	for _, h := range hits {
		if fm.owner[h] < best {
			best = fm.owner[h]
		}
	}
	if best == len(fm.keys) {
		return ""
	}
	return fm.keys[best]
}

var (
	categoryMatcher = newFamilyMatcher(CategoryOrder, Categories)
	colorMatcher    = newFamilyMatcher(sortedKeys(Colors), Colors)
	styleMatcher    = newFamilyMatcher(sortedKeys(Styles), Styles)
	materialMatcher = ahocorasick.NewStringMatcher(Materials)
	brandMatcher    = ahocorasick.NewStringMatcher(Brands)
)

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Insertion sort keeps init dependency-free; the maps are tiny.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// MatchCategory returns the first category implied by text, or "".
// Text must already be lower-cased.
func MatchCategory(text string) string {
	return categoryMatcher.matchFirst(text)
}

// MatchColors returns every canonical color whose family appears in text.
func MatchColors(text string) []string {
	return colorMatcher.matchAll(text)
}

// MatchStyles returns every canonical style whose family appears in text.
func MatchStyles(text string) []string {
	return styleMatcher.matchAll(text)
}

// MatchMaterials returns every material named in text, in Materials order.
func MatchMaterials(text string) []string {
	hits := materialMatcher.Match([]byte(text))
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		seen[h] = true
	}
	var out []string
	for i, m := range Materials {
		if seen[i] {
			out = append(out, m)
		}
	}
	return out
}

// MatchBrands returns every brand named in text, in Brands order.
func MatchBrands(text string) []string {
	hits := brandMatcher.Match([]byte(text))
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		seen[h] = true
	}
	var out []string
	for i, b := range Brands {
		if seen[i] {
			out = append(out, b)
		}
	}
	return out
}

// MatchSizes returns the canonical size codes whose aliases appear in text as
// whole tokens. Multi-word aliases ("extra small") are checked as substrings
// since tokenization would split them.
func MatchSizes(text string) []string {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '/' || r == '(' || r == ')'
	}) {
		tokens[tok] = true
	}
	var out []string
	for _, code := range []string{"xs", "s", "m", "l", "xl", "xxl"} {
		for _, alias := range Sizes[code] {
			matched := false
			if strings.Contains(alias, " ") {
				matched = strings.Contains(text, alias)
			} else {
				matched = tokens[alias]
			}
			if matched {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

// CategorySynonyms returns the synonym list for a canonical category.
func CategorySynonyms(category string) []string {
	return Categories[category]
}
