package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
)

// RatingAttrs are attributes that carry a numeric rating directly.
var RatingAttrs = []string{"data-service-review-rating", "data-rating"}

var (
	starClassRe = regexp.MustCompile(`-star-(\d+)(?:-(\d+))?(?:$|-)`)
	outOfFiveRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s+out\s+of\s+5`)
	ratedAltRe  = regexp.MustCompile(`(?i)Rated\s+(\d+(?:\.\d+)?)\s+out\s+of\s+5`)
	starsSrcRe  = regexp.MustCompile(`stars-(\d+(?:\.\d+)?)\.`)
)

// ParseRating derives a numeric-looking rating from el using a cascade of
// markup conventions. It falls back to the element's text and returns ""
// for a nil element.
func ParseRating(tree dom.Tree, el *html.Node) string {
	if el == nil {
		return ""
	}
	for _, strategy := range []func(dom.Tree, *html.Node) string{
		ratingFromClass,
		ratingFromOutOfFive,
		ratingFromAlt,
		ratingFromAttr,
		ratingFromSrc,
	} {
		if r := strategy(tree, el); r != "" {
			return r
		}
	}
	return tree.Text(el)
}

// ratingFromClass reads tokens like a-star-4 or a-star-4-5 (4.5).
func ratingFromClass(_ dom.Tree, el *html.Node) string {
	for _, c := range dom.Classes(el) {
		m := starClassRe.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		if m[2] != "" {
			return m[1] + "." + m[2]
		}
		return m[1]
	}
	return ""
}

// ratingFromOutOfFive matches "4.0 out of 5 stars" in a nested .a-icon-alt
// or, failing that, in the element text.
func ratingFromOutOfFive(tree dom.Tree, el *html.Node) string {
	text := ""
	if alt, err := tree.QueryOne(".a-icon-alt", el); err == nil && alt != nil {
		text = tree.Text(alt)
	}
	if m := outOfFiveRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := outOfFiveRe.FindStringSubmatch(tree.Text(el)); m != nil {
		return m[1]
	}
	return ""
}

// ratingFromAlt matches "Rated 2.5 out of 5" on the element or a nested img.
func ratingFromAlt(tree dom.Tree, el *html.Node) string {
	if m := ratedAltRe.FindStringSubmatch(tree.Attr(el, "alt")); m != nil {
		return m[1]
	}
	if img, err := tree.QueryOne("img[alt]", el); err == nil && img != nil {
		if m := ratedAltRe.FindStringSubmatch(tree.Attr(img, "alt")); m != nil {
			return m[1]
		}
	}
	return ""
}

// ratingFromAttr reads a rating attribute on the element or its closest
// ancestor carrying one.
func ratingFromAttr(_ dom.Tree, el *html.Node) string {
	for cur := el; cur != nil; cur = dom.Parent(cur) {
		for _, name := range RatingAttrs {
			if v, ok := dom.AttrValue(cur, name); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// ratingFromSrc reads image names such as stars-4.5.svg.
func ratingFromSrc(tree dom.Tree, el *html.Node) string {
	if m := starsSrcRe.FindStringSubmatch(tree.Attr(el, "src")); m != nil {
		return m[1]
	}
	return ""
}

// RenderStars draws a five-star bar for a rating string, e.g.
// "★★★½☆ (3.5)". Empty ratings render as "-" and non-numeric ones verbatim.
func RenderStars(rating string) string {
	if rating == "" {
		return "-"
	}
	num, err := strconv.ParseFloat(rating, 64)
	if err != nil || math.IsNaN(num) {
		return rating
	}
	num = math.Max(0, math.Min(5, num))

	full := int(math.Floor(num))
	half := num-float64(full) >= 0.5
	empty := 5 - full
	if half {
		empty--
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("★", full))
	if half {
		b.WriteString("½")
	}
	b.WriteString(strings.Repeat("☆", empty))
	fmt.Fprintf(&b, " (%s)", rating)
	return b.String()
}
