package selector

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
)

// HookAttr is the conventional automation hook attribute.
const HookAttr = "data-hook"

// testIDAttr ranks right after the hook among data attributes.
const testIDAttr = "data-testid"

// stableAttrs are semantic attributes that tend to survive redesigns.
var stableAttrs = []string{"aria-label", "role", "itemprop", "name", "type"}

var (
	dunderSuffix = regexp.MustCompile(`__\w{4,}`)
	utilityClass = regexp.MustCompile(`^[a-z]-[a-z0-9-]+$`)
)

// hookSelector returns [data-hook="v"] when the hook attribute is set.
func hookSelector(n *html.Node) string {
	v, _ := dom.AttrValue(n, HookAttr)
	if v == "" {
		return ""
	}
	return attrSelector("", HookAttr, v)
}

// idSelector returns #id when the element has a non-empty id.
func idSelector(n *html.Node) string {
	v, _ := dom.AttrValue(n, "id")
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return "#" + escapeIdent(v)
}

// dataSelector returns a data-* attribute selector other than the hook:
// data-testid unscoped, else the first data attribute scoped by tag.
func dataSelector(n *html.Node) string {
	if v, ok := dom.AttrValue(n, testIDAttr); ok && v != "" {
		return attrSelector("", testIDAttr, v)
	}
	for _, a := range dom.Attrs(n) {
		name := strings.ToLower(a.Key)
		if name == HookAttr || name == testIDAttr || !strings.HasPrefix(name, "data-") {
			continue
		}
		return attrSelector(dom.TagName(n), name, a.Val)
	}
	return ""
}

// stableSelector returns tag[attr="v"] for the first stable attribute set.
func stableSelector(n *html.Node) string {
	for _, name := range stableAttrs {
		if v, ok := dom.AttrValue(n, name); ok && v != "" {
			return attrSelector(dom.TagName(n), name, v)
		}
	}
	return ""
}

// classSelector joins the tag with up to two meaningful class names.
func classSelector(n *html.Node) string {
	classes := meaningfulClasses(n, 0)
	if len(classes) == 0 {
		return ""
	}
	if len(classes) > 2 {
		classes = classes[:2]
	}
	return joinClasses(dom.TagName(n), classes)
}

// simpleSelector is the one-level relative selector: hook, else the first
// data attribute, else the first meaningful class longer than two chars.
func simpleSelector(n *html.Node) string {
	if sel := hookSelector(n); sel != "" {
		return sel
	}
	for _, a := range dom.Attrs(n) {
		if strings.HasPrefix(strings.ToLower(a.Key), "data-") {
			return attrSelector(dom.TagName(n), strings.ToLower(a.Key), a.Val)
		}
	}
	if classes := meaningfulClasses(n, 3); len(classes) > 0 {
		return joinClasses(dom.TagName(n), classes[:1])
	}
	return ""
}

// semanticPiece returns the highest priority non-structural piece for n.
func semanticPiece(n *html.Node) string {
	for _, build := range []func(*html.Node) string{
		hookSelector, idSelector, dataSelector, stableSelector, classSelector,
	} {
		if sel := build(n); sel != "" {
			return sel
		}
	}
	return ""
}

// pathPiece is one level of a structural path. It falls back to the tag,
// adding :nth-of-type only when same-tag siblings exist.
func pathPiece(n *html.Node) string {
	if sel := semanticPiece(n); sel != "" {
		return sel
	}
	tag := dom.TagName(n)
	if dom.Parent(n) == nil {
		return tag
	}
	pos, count := dom.SameTagPosition(n)
	if count <= 1 {
		return tag
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, pos)
}

// meaningfulClasses filters out generated-looking class tokens. Tokens
// shorter than minLen are dropped too.
func meaningfulClasses(n *html.Node, minLen int) []string {
	var out []string
	for _, c := range dom.Classes(n) {
		if len(c) < minLen || isGeneratedClass(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// isGeneratedClass reports class tokens produced by CSS modules, BEM
// hash suffixes, single-letter utility prefixes or content hashes.
func isGeneratedClass(c string) bool {
	if strings.Contains(c, "styles_") || dunderSuffix.MatchString(c) || utilityClass.MatchString(c) {
		return true
	}
	for _, seg := range strings.FieldsFunc(c, func(r rune) bool { return r == '-' || r == '_' }) {
		if len(seg) >= 5 && hasLetterAndDigit(seg) {
			return true
		}
	}
	return false
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
			letter = true
		}
	}
	return letter && digit
}

func joinClasses(tag string, classes []string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(escapeIdent(c))
	}
	return b.String()
}
