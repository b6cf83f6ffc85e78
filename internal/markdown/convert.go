// Package markdown renders parsed HTML as Markdown and fetches webpages for
// conversion.
//
// Only headings, paragraphs, links, images and flat lists are rendered with
// Markdown syntax. Headings, paragraphs and list items are flattened to their
// text, so inline markup nested inside them is dropped. Every other element is
// transparent: its children are converted in order.
package markdown

import (
	"io"
	"strconv"
	"strings"
)

// Convert returns the Markdown contributed by n and its descendants.
func Convert(n Node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

// FromHTML parses a whole document and converts the direct children of its
// body element, in order.
func FromHTML(r io.Reader) (string, error) {
	body, ok, err := ParseBody(r)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	var sb strings.Builder
	convertChildren(&sb, body)
	return sb.String(), nil
}

func writeNode(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Element:
		writeElement(sb, n)
	case *Text:
		sb.WriteString(n.Data)
	case *Other:
	}
}

func writeElement(sb *strings.Builder, el *Element) {
	switch el.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(el.Tag[1] - '0')
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteByte(' ')
		sb.WriteString(el.Text())
		sb.WriteString("\n\n")
	case "p":
		sb.WriteString(el.Text())
		sb.WriteString("\n\n")
	case "a":
		sb.WriteString("[" + el.Text() + "](" + el.Attr("href") + ")")
	case "img":
		sb.WriteString("![" + el.Attr("alt") + "](" + el.Attr("src") + ")")
	case "ul":
		for _, li := range el.ChildElements("li") {
			sb.WriteString("- ")
			sb.WriteString(li.Text())
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	case "ol":
		for i, li := range el.ChildElements("li") {
			sb.WriteString(strconv.Itoa(i + 1))
			sb.WriteString(". ")
			sb.WriteString(li.Text())
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	default:
		convertChildren(sb, el)
	}
}

// convertChildren is the fallback for elements without a rendering rule.
func convertChildren(sb *strings.Builder, el *Element) {
	for _, c := range el.Children {
		writeNode(sb, c)
	}
}
