package markdown

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Node is a read-only HTML node. It is always one of *Element, *Text or *Other.
type Node interface {
	node()
}

// Element is an HTML element with a lowercased tag name.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []Node
}

// Text is literal character data.
type Text struct {
	Data string
}

// Other covers comments, doctypes and anything else that renders to nothing.
type Other struct{}

func (*Element) node() {}
func (*Text) node()    {}
func (*Other) node()   {}

// Attr returns the value of the named attribute, or "" when it is absent.
func (e *Element) Attr(key string) string {
	return e.Attrs[key]
}

// ChildElements returns the direct element children with the given tag, in
// document order.
func (e *Element) ChildElements(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok && el.Tag == tag {
			out = append(out, el)
		}
	}
	return out
}

// Text returns the concatenated character data of all descendants.
func (e *Element) Text() string {
	var sb strings.Builder
	writeText(&sb, e)
	return sb.String()
}

func writeText(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Text:
		sb.WriteString(n.Data)
	case *Element:
		for _, c := range n.Children {
			writeText(sb, c)
		}
	case *Other:
	}
}

// ParseBody parses an HTML document and returns its body element. The bool is
// false when the document has no body (e.g. a frameset document).
func ParseBody(r io.Reader) (*Element, bool, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false, err
	}
	body := findElement(doc, "body")
	if body == nil {
		return nil, false, nil
	}
	return fromHTML(body).(*Element), true, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func fromHTML(n *html.Node) Node {
	switch n.Type {
	case html.ElementNode:
		el := &Element{
			Tag:   strings.ToLower(n.Data),
			Attrs: make(map[string]string, len(n.Attr)),
		}
		for _, a := range n.Attr {
			// first occurrence wins, as in the DOM
			if _, dup := el.Attrs[a.Key]; !dup {
				el.Attrs[a.Key] = a.Val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			el.Children = append(el.Children, fromHTML(c))
		}
		return el
	case html.TextNode:
		return &Text{Data: n.Data}
	default:
		return &Other{}
	}
}
