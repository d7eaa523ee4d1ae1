// Package extract turns forum pages into records.
//
// Every extractor is a pure function of a parsed document. They locate the
// region they care about by its structure (table headers, id and class
// fragments, link shapes) rather than by exact class names, and they keep
// two outcomes apart: a region that is present but holds nothing is an
// empty result, a region that cannot be found at all is a parse error.
//
// Relative links are resolved against the document's Url, so callers
// should set it to the address the page was fetched from.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"tscommunity/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type ThreadSummary struct {
	Title string `json:"title"`
	Url   string `json:"url"`
	// the fields below are best effort, null when the page did not show them
	Author           *string    `json:"author"`
	Replies          *int       `json:"replies"`
	LastActivity     *time.Time `json:"last_activity"`
	LastActivityText *string    `json:"last_activity_text"`
	Category         *string    `json:"category"`
	Preview          *string    `json:"preview"`
}

type Post struct {
	Author        *string    `json:"author"`
	Timestamp     *time.Time `json:"timestamp"`
	TimestampText *string    `json:"timestamp_text"`
	Body          string     `json:"body"`
	// inner html of the post body, as served
	RawHtml string `json:"-"`
}

type ThreadPage struct {
	Title *string
	Posts []Post
	// the page's "next" link, if it has one
	Next *url.URL
}

// MaxPreviewLength is the most runes a summary preview holds.
const MaxPreviewLength = 500

func ptr[T any](v T) *T {
	return &v
}

// optional is nil for blank text.
func optional(text string) *string {
	if text == "" {
		return nil
	}
	return &text
}

var topicLinkRegex = regexp.MustCompile(`(?i)topic`)

// classMatches reports whether any single class token of sel matches re.
func classMatches(sel *goquery.Selection, re *regexp.Regexp) bool {
	class, ok := sel.Attr("class")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(class) {
		if re.MatchString(token) {
			return true
		}
	}
	return false
}

// markerMatches checks both the id and the class tokens.
func markerMatches(sel *goquery.Selection, re *regexp.Regexp) bool {
	if id, ok := sel.Attr("id"); ok && re.MatchString(id) {
		return true
	}
	return classMatches(sel, re)
}

// firstWithClass is the first descendant of sel that has a class token
// matching re.
func firstWithClass(sel *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	return sel.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classMatches(s, re)
	}).First()
}

func resolve(doc *goquery.Document, href string) *url.URL {
	if doc.Url != nil {
		return htmlutil.Resolve(doc.Url, href)
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	link, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return link
}
