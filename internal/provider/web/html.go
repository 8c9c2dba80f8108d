package web

import (
	"bytes"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// ParseHTML parses an HTML document.
func ParseHTML(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// Matcher selects element nodes.
type Matcher func(n *html.Node) bool

// Tag matches elements by tag name.
func Tag(name string) Matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

// TagClass matches elements by tag name and CSS class. An empty tag matches any element.
func TagClass(name, class string) Matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && (name == "" || n.Data == name) && HasClass(n, class)
	}
}

// TagID matches elements by tag name and id. An empty tag matches any element.
func TagID(name, id string) Matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && (name == "" || n.Data == name) && Attr(n, "id") == id
	}
}

// FindAll returns every descendant of n matching m, in document order.
func FindAll(n *html.Node, m Matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if m(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// Find returns the first descendant of n matching m, or nil.
func Find(n *html.Node, m Matcher) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m(c) {
			return c
		}
		if found := Find(c, m); found != nil {
			return found
		}
	}
	return nil
}

// Children returns the element children of n matching m.
func Children(n *html.Node, m Matcher) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m(c) {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns the value of attribute key, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether n carries the CSS class.
func HasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(Attr(n, "class")), class)
}

// Text returns the text content of n with whitespace collapsed.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	extractText(n, &buf)
	return collapseWhitespace(buf.String())
}

// extractText recursively extracts text content from HTML nodes.
func extractText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	if n.Type == html.ElementNode && n.Data == "br" {
		buf.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, buf)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
			buf.WriteString(" ")
		}
	}
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// StripHTML removes tags from an HTML fragment and returns plain text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(html.UnescapeString(s))
	}
	return Text(doc)
}
