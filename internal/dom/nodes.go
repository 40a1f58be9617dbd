package dom

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// TagName returns the lowercase tag name of n.
func TagName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Parent returns the parent element of n, or nil at the top of the tree.
func Parent(n *html.Node) *html.Node {
	if n == nil || !IsElement(n.Parent) {
		return nil
	}
	return n.Parent
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c) {
			out = append(out, c)
		}
	}
	return out
}

// Attrs returns the attributes of n in document order.
func Attrs(n *html.Node) []html.Attribute {
	if !IsElement(n) {
		return nil
	}
	return n.Attr
}

// AttrValue returns the value of the named attribute and whether it exists.
func AttrValue(n *html.Node, name string) (string, bool) {
	if !IsElement(n) {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether n carries the named attribute.
func HasAttr(n *html.Node, name string) bool {
	_, ok := AttrValue(n, name)
	return ok
}

// RemoveAttr deletes every occurrence of the named attribute from n.
func RemoveAttr(n *html.Node, name string) {
	if !IsElement(n) {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// Classes returns the class tokens of n.
func Classes(n *html.Node) []string {
	v, _ := AttrValue(n, "class")
	return strings.Fields(v)
}

// SameTagPosition returns the 1-based position of n among its parent's
// children with the same tag, and how many such siblings exist.
func SameTagPosition(n *html.Node) (pos, count int) {
	if n == nil || n.Parent == nil {
		return 1, 1
	}
	tag := TagName(n)
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if TagName(c) != tag {
			continue
		}
		count++
		if c == n {
			pos = count
		}
	}
	return pos, count
}

// Contains reports whether n is ancestor itself or one of its descendants.
func Contains(ancestor, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Closest returns n or its nearest ancestor matching the CSS selector.
func Closest(n *html.Node, selector string) (*html.Node, error) {
	m, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, &types.SelectorError{Selector: selector, Err: err}
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if IsElement(cur) && m.Match(cur) {
			return cur, nil
		}
	}
	return nil, nil
}

// Walk visits every element below and including n in document order until
// fn returns false.
func Walk(n *html.Node, fn func(*html.Node) bool) bool {
	if IsElement(n) && !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}
