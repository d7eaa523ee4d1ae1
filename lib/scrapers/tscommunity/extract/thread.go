package extract

import (
	"regexp"
	"strings"

	"tscommunity/lib/htmlutil"
	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

var postListMarker = regexp.MustCompile(`(?i)(posts|messages|replies|post-?list|message-?list|topic-?body)$`)
var postItemClass = regexp.MustCompile(`(?i)^(forum-?)?(post|message|reply)(-?(row|item|container))?$`)
var postAuthorClass = regexp.MustCompile(`(?i)author|poster|username`)
var postDateClass = regexp.MustCompile(`(?i)date|time|posted`)
var postBodyClass = regexp.MustCompile(`(?i)content|body|message-?text|msg-?text`)
var titleClass = regexp.MustCompile(`(?i)title|subject`)
var nextText = regexp.MustCompile(`(?i)^(next( page)?|›|»|>|>>)$`)

func isPostItem(_ int, s *goquery.Selection) bool {
	return classMatches(s, postItemClass)
}

// findPostList is the element holding the thread's posts. A container
// marked as a post list only wins when it holds post items, so a "recent
// posts" widget cannot hide the real list. Next is the table whose rows
// are posts. An empty marked container means an empty thread only when
// the page has no post items anywhere.
func findPostList(doc *goquery.Document) (*goquery.Selection, bool) {
	marked := doc.Find("[id], [class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return markerMatches(s, postListMarker) && !classMatches(s, postItemClass)
	})
	withPosts := marked.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("[class]").FilterFunction(isPostItem).Length() > 0
	}).First()
	if withPosts.Length() > 0 {
		return withPosts, true
	}

	rows := doc.Find("tr[class]").FilterFunction(isPostItem)
	if rows.Length() > 0 {
		return rows.First().Closest("table"), true
	}

	items := doc.Find("body [class]").FilterFunction(isPostItem)
	if items.Length() > 0 {
		return doc.Find("body"), true
	}
	if marked.Length() > 0 {
		return marked.First(), true
	}
	return nil, false
}

func threadTitle(doc *goquery.Document) *string {
	for _, sel := range []*goquery.Selection{
		doc.Find("h1").First(),
		doc.Find("h2").First(),
		firstWithClass(doc.Find("body"), titleClass),
	} {
		if sel.Length() == 0 {
			continue
		}
		if text := htmlutil.Text(sel); text != "" {
			return &text
		}
	}
	return nil
}

func nextLink(doc *goquery.Document) *goquery.Selection {
	rel := doc.Find(`a[rel~="next"][href], link[rel~="next"][href]`).First()
	if rel.Length() > 0 {
		return rel
	}
	return doc.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return nextText.MatchString(htmlutil.Text(a))
	}).First()
}

func readPost(item *goquery.Selection) (Post, bool) {
	var post Post

	author := firstWithClass(item, postAuthorClass)
	if author.Length() > 0 {
		post.Author = optional(htmlutil.Text(author))
	}

	date := item.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classMatches(s, postDateClass) && !classMatches(s, postAuthorClass)
	}).First()
	if date.Length() > 0 {
		text := htmlutil.Text(date)
		post.TimestampText = optional(text)
		if t, ok := timezone.Parse(text, timezone.Now()); ok {
			post.Timestamp = &t
		}
	}

	body := firstWithClass(item, postBodyClass)
	if body.Length() > 0 {
		post.Body = htmlutil.Paragraphs(body)
		post.RawHtml, _ = body.Html()
	} else {
		post.Body = htmlutil.Paragraphs(item)
		post.RawHtml, _ = item.Html()
	}
	post.RawHtml = strings.TrimSpace(post.RawHtml)

	return post, post.Body != ""
}

// Thread reads the posts of a thread page in page order. A post list
// without posts in it is an empty thread, not an error.
func Thread(doc *goquery.Document) (ThreadPage, error) {
	list, ok := findPostList(doc)
	if !ok {
		return ThreadPage{}, errs.Parse("thread", "no post list found")
	}

	page := ThreadPage{
		Title: threadTitle(doc),
		Posts: []Post{},
	}

	list.Find("[class]").FilterFunction(isPostItem).Each(func(_ int, item *goquery.Selection) {
		// replies quoted inside a post are part of that post
		if item.ParentsUntilSelection(list).FilterFunction(isPostItem).Length() > 0 {
			return
		}
		post, ok := readPost(item)
		if ok {
			page.Posts = append(page.Posts, post)
		}
	})

	if next := nextLink(doc); next.Length() > 0 {
		page.Next = resolve(doc, next.AttrOr("href", ""))
	}

	return page, nil
}
