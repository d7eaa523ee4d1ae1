package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// getTextRecursive writes the text under node, skipping scripts and ending
// block elements with a newline.
func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		switch node.Data {
		case "script", "style", "noscript":
			return
		case "br", "p", "div", "li", "tr", "blockquote":
			defer buffer.WriteByte('\n')
		}
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)
var spaceRun = regexp.MustCompile(`[ \t\r\f\v\p{Zs}]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || c == '\n' {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// Text is the single line text content of the selection, all whitespace
// runs are folded into one space.
func Text(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
		buffer.WriteByte(' ')
	}
	name := removeNonPrintable(buffer.String())
	name = strings.Trim(name, " \t\n")
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(strings.ReplaceAll(name, "\n", " "), " "))
}

// Paragraphs is the text content of the selection with line breaks kept
// and runs of blank lines collapsed.
func Paragraphs(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	lines := strings.Split(removeNonPrintable(buffer.String()), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	out := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

// Resolve makes href absolute against base, returning nil for hrefs that
// cannot be parsed or that are not http(s) links.
func Resolve(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	link, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if base != nil {
		link = base.ResolveReference(link)
	}
	if link.Scheme != "http" && link.Scheme != "https" {
		return nil
	}
	return link
}
