package web

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Elements whose subtrees carry no readable content.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"nav": true, "header": true, "footer": true, "aside": true,
}

// Elements that introduce a line break around their text.
var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "br": true,
	"tr": true, "section": true, "article": true, "blockquote": true,
	"pre": true,
}

var multiNewline = regexp.MustCompile(`\n{3,}`)
var lineSpace = regexp.MustCompile(`[^\S\n]+`)

// ExtractText reduces an HTML document to readable text. Scripts,
// styles, and navigation chrome are dropped; entities come back
// decoded. A non-empty selector (tag name, #id, or .class) narrows
// extraction to the first matching element.
func ExtractText(source, selector string) (string, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	root := doc
	if selector != "" {
		match := findSelector(doc, selector)
		if match == nil {
			return "", fmt.Errorf("selector %q matched nothing", selector)
		}
		root = match
	}

	var sb strings.Builder
	collectText(root, &sb)
	return normalizeText(sb.String()), nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skippedElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	isBlock := n.Type == html.ElementNode && blockElements[n.Data]
	if isBlock {
		sb.WriteString("\n")
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
	if isBlock {
		sb.WriteString("\n")
	}
}

// findSelector walks the tree for the first element matching a tag
// name, "#id", or ".class" selector.
func findSelector(n *html.Node, selector string) *html.Node {
	if n.Type == html.ElementNode && matchesSelector(n, selector) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if match := findSelector(child, selector); match != nil {
			return match
		}
	}
	return nil
}

func matchesSelector(n *html.Node, selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return attrValue(n, "id") == selector[1:]
	case strings.HasPrefix(selector, "."):
		for _, class := range strings.Fields(attrValue(n, "class")) {
			if class == selector[1:] {
				return true
			}
		}
		return false
	default:
		return n.Data == selector
	}
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(lineSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
