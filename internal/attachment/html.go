package attachment

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"golang.org/x/net/html"
)

// HTMLConverter handles HTML files.
type HTMLConverter struct{}

func (c *HTMLConverter) Convert(r io.Reader, filename string) (*block.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	b := newBuilder(filename)
	if title := findElement(root, "title"); title != nil {
		if t := textContent(title); t != "" {
			b.doc.Title = t
		}
	}

	var walk func(*html.Node, bool)
	walk = func(n *html.Node, ordered bool) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				b.heading(level, textContent(n))
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head":
				return
			case "ul":
				ordered = false
			case "ol":
				ordered = true
			case "li":
				if t := textContent(n); t != "" {
					b.item(t, ordered)
				}
				return
			case "pre":
				if t := rawText(n); strings.TrimSpace(t) != "" {
					b.add(block.Code{RichText: plain(strings.Trim(t, "\n"))})
				}
				return
			case "blockquote":
				if t := textContent(n); t != "" {
					b.quote(t)
				}
				return
			case "hr":
				b.add(block.Divider{})
				return
			case "p", "td", "th", "dd", "dt", "figcaption":
				if t := textContent(n); t != "" {
					b.paragraph(t)
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, ordered)
		}
	}

	if body := findElement(root, "body"); body != nil {
		walk(body, false)
	} else {
		walk(root, false)
	}
	return b.doc, nil
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// textContent collapses the text below n into single-spaced words.
func textContent(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
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
