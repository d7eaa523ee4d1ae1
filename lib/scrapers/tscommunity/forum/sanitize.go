package forum

import (
	"net/url"
	"strings"

	"tscommunity/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// newSanitizer keeps the formatting of a post (paragraphs, lists, quotes,
// code, links, images) and drops scripts, styles and event handlers.
func newSanitizer() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i", "u",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemes("http", "https")

	return p
}

// resolveLinks makes every href and src in a post fragment absolute against
// the page it was read from, links that cannot be resolved are dropped.
// The sanitizer only keeps absolute links.
func resolveLinks(fragment string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	for _, attr := range []string{"href", "src"} {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			link := htmlutil.Resolve(base, s.AttrOr(attr, ""))
			if link == nil {
				s.RemoveAttr(attr)
				return
			}
			s.SetAttr(attr, link.String())
		})
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return fragment
	}
	return out
}
