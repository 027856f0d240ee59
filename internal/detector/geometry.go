package detector

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Box is an element's layout rectangle at detection time, in CSS pixels.
type Box struct {
	Width  float64
	Height float64
	Top    float64
	Left   float64
}

// RectAttr carries renderer-measured geometry as "left,top,width,height".
// The chromedp fetch path annotates every element with it before the DOM is
// snapshotted, since a parsed HTML tree has no layout engine of its own.
const RectAttr = "data-sg-rect"

// VisibleAttr marks whether the renderer found the element inside the
// viewport. Absent means unknown, which is treated as visible.
const VisibleAttr = "data-sg-visible"

var (
	styleWidthRe  = regexp.MustCompile(`(?:^|;)\s*width\s*:\s*(\d+(?:\.\d+)?)px`)
	styleHeightRe = regexp.MustCompile(`(?:^|;)\s*height\s*:\s*(\d+(?:\.\d+)?)px`)
)

// boxOf recovers an element's geometry, preferring renderer annotations,
// then explicit width/height attributes, then inline pixel styles. The
// second return is false when nothing measurable is present.
func boxOf(sel *goquery.Selection) (Box, bool) {
	if raw, ok := sel.Attr(RectAttr); ok {
		if box, ok := parseRect(raw); ok {
			return box, true
		}
	}

	w, wok := dimAttr(sel, "width")
	h, hok := dimAttr(sel, "height")
	if wok && hok {
		return Box{Width: w, Height: h}, true
	}

	if style, ok := sel.Attr("style"); ok {
		sw := styleWidthRe.FindStringSubmatch(style)
		sh := styleHeightRe.FindStringSubmatch(style)
		if sw != nil && sh != nil {
			w, werr := strconv.ParseFloat(sw[1], 64)
			h, herr := strconv.ParseFloat(sh[1], 64)
			if werr == nil && herr == nil {
				return Box{Width: w, Height: h}, true
			}
		}
	}
	return Box{}, false
}

func parseRect(raw string) (Box, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return Box{}, false
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Box{}, false
		}
		vals[i] = v
	}
	return Box{Left: vals[0], Top: vals[1], Width: vals[2], Height: vals[3]}, true
}

func dimAttr(sel *goquery.Selection, name string) (float64, bool) {
	raw, ok := sel.Attr(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "px"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func visibleOf(sel *goquery.Selection) bool {
	raw, ok := sel.Attr(VisibleAttr)
	if !ok {
		return true
	}
	return raw != "false" && raw != "0"
}
