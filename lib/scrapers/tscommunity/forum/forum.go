// Package forum is the client for the forum's search and thread pages.
//
// The client owns the session. Search and thread reads refuse to touch the
// network without one, and any response that shows the forum no longer
// accepts it (a sign in redirect, an auth status, a bot challenge, a page
// without the expected content and without a sign out link) clears it.
// A Client is not safe for concurrent use.
package forum

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tscommunity/lib/scrapers/tscommunity/core"
	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/scrapers/tscommunity/extract"
	"tscommunity/lib/scrapers/tscommunity/session"
	"tscommunity/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	SearchPath = "/Discussions/Search.aspx"
	ForumPath  = "/Discussions/Forum.aspx"

	DefaultLimit   = 10
	DefaultForumId = 213

	// how close a query word has to be to a title word for the browse
	// fallback to count it as present
	fuzzyThreshold = 0.9
)

// Transport is what the client needs from core.Transport.
type Transport interface {
	Do(ctx context.Context, req core.Request, cookies []*http.Cookie) (core.Response, error)
}

type Options struct {
	BaseUrl *url.URL
	ForumId int
	// when a search comes back empty, filter the forum's front page instead
	BrowseFallback bool
	// attach sanitized post html next to the plain text body
	IncludePostHtml bool
	// the most thread pages GetThread reads by following "next" links
	FollowPages int
}

type SearchResult struct {
	Query   string                  `json:"query"`
	Threads []extract.ThreadSummary `json:"threads"`
	// "search", or "browse" when the results came from the fallback
	Source string `json:"source"`
}

type Post struct {
	extract.Post
	Html *string `json:"html,omitempty"`
}

type ThreadContent struct {
	Url       string  `json:"url"`
	Title     *string `json:"title"`
	Posts     []Post  `json:"posts"`
	PostCount int     `json:"post_count"`
	Pages     int     `json:"pages"`
}

type Client struct {
	transport Transport
	store     *session.Store
	opts      Options
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

func New(transport Transport, store *session.Store, opts Options) (*Client, error) {
	if transport == nil || store == nil {
		return nil, errors.New("transport and session store are required")
	}
	if opts.BaseUrl == nil || opts.BaseUrl.Host == "" {
		return nil, errors.New("base url must be absolute")
	}
	if opts.ForumId <= 0 {
		opts.ForumId = DefaultForumId
	}
	if opts.FollowPages < 1 {
		opts.FollowPages = 1
	}
	return &Client{
		transport: transport,
		store:     store,
		opts:      opts,
		sanitizer: newSanitizer(),
		now:       time.Now,
	}, nil
}

func (c *Client) Session() *session.Store {
	return c.store
}

func (c *Client) forumQuery() url.Values {
	return url.Values{"Forum_ID": {strconv.Itoa(c.opts.ForumId)}}
}

func (c *Client) invalidate(ctx context.Context, reason string) error {
	if c.store.IsAuthenticated() {
		slog.WarnContext(ctx, "forum session invalidated", "reason", reason)
		sessionInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	c.store.Invalidate()
	return errs.SessionExpired(reason)
}

// fetch requests a page with the session's cookies and parses it. Every
// response that shows the forum rejected the session invalidates it.
func (c *Client) fetch(ctx context.Context, page string, req core.Request) (*goquery.Document, extract.PageState, error) {
	res, err := c.transport.Do(ctx, req, c.store.Cookies())
	if err != nil {
		return nil, extract.PageUnknown, err
	}

	if res.Redirect != nil {
		return nil, extract.PageUnknown, c.invalidate(ctx, fmt.Sprintf("redirected to %s", res.Redirect.Hostname()))
	}
	switch {
	case res.Status == http.StatusUnauthorized || res.Status == http.StatusForbidden:
		return nil, extract.PageUnknown, c.invalidate(ctx, fmt.Sprintf("HTTP %d", res.Status))
	case res.Status == http.StatusMethodNotAllowed:
		// the bot challenge is served with a 405
		return nil, extract.PageUnknown, c.invalidate(ctx, "bot challenge")
	case res.Status == http.StatusNotFound && page == "thread":
		// only a thread url comes from the caller, a missing search or
		// forum page is the forum's problem
		return nil, extract.PageUnknown, errs.InvalidInput("the forum has no such thread")
	case res.Status < 200 || res.Status >= 300:
		return nil, extract.PageUnknown, errs.TransportStatus(res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, extract.PageUnknown, errs.Parse(page, err.Error())
	}
	doc.Url = res.Url
	if doc.Url == nil {
		doc.Url = c.opts.BaseUrl
		if u, err := url.Parse(req.Path); err == nil {
			doc.Url = c.opts.BaseUrl.ResolveReference(u)
		}
	}

	state := extract.ClassifyPage(doc)
	switch state {
	case extract.PageChallenge:
		return nil, state, c.invalidate(ctx, "bot challenge")
	case extract.PageLoginForm:
		return nil, state, c.invalidate(ctx, "served the sign in form")
	}

	c.store.Merge(res.Cookies)
	return doc, state, nil
}

// layoutFailure decides what a missing page region means. With a sign out
// link on the page the session is fine and the layout changed, otherwise
// the forum most likely served a logged out page.
func (c *Client) layoutFailure(ctx context.Context, err error, state extract.PageState) error {
	parseFailures.Add(ctx, 1)
	if state == extract.PageLoggedIn {
		slog.ErrorContext(ctx, "forum layout changed", "err", err)
		return err
	}
	return c.invalidate(ctx, "expected content missing from the page")
}

// SearchForum returns at most limit threads matching query, in the order
// the forum listed them.
func (c *Client) SearchForum(ctx context.Context, query string, limit int) (SearchResult, error) {
	ctx, span := tracer.Start(ctx, "client:SearchForum")
	defer span.End()

	query = textutil.CollapseSpace(query)
	if query == "" {
		return SearchResult{}, errs.InvalidInput("query must not be empty")
	}
	if limit < 1 {
		return SearchResult{}, errs.InvalidInput("limit must be at least 1, got %d", limit)
	}
	if !c.store.IsAuthenticated() {
		return SearchResult{}, errs.NotAuthenticated()
	}

	span.SetAttributes(attribute.String("query", query), attribute.Int("limit", limit))

	params := c.forumQuery()
	params.Set("Search", query)
	doc, state, err := c.fetch(ctx, "search", core.Request{Path: SearchPath, Query: params})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch search page")
		return SearchResult{}, err
	}

	threads, err := extract.Search(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read search results")
		return SearchResult{}, c.layoutFailure(ctx, err, state)
	}
	c.store.MarkValid(c.now())

	result := SearchResult{
		Query:   query,
		Threads: truncate(threads, limit),
		Source:  "search",
	}
	if len(threads) == 0 && c.opts.BrowseFallback {
		slog.DebugContext(ctx, "search came back empty, browsing the forum", "query", query)
		browsed, err := c.browse(ctx, query, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to browse forum")
			return SearchResult{}, err
		}
		result.Threads = browsed
		result.Source = "browse"
	}

	slog.DebugContext(ctx, "searched forum", "query", query, "results", len(result.Threads), "source", result.Source)
	return result, nil
}

func (c *Client) browse(ctx context.Context, query string, limit int) ([]extract.ThreadSummary, error) {
	ctx, span := tracer.Start(ctx, "client:browse")
	defer span.End()

	doc, state, err := c.fetch(ctx, "forum", core.Request{Path: ForumPath, Query: c.forumQuery()})
	if err != nil {
		return nil, err
	}
	threads, err := extract.Forum(doc)
	if err != nil {
		return nil, c.layoutFailure(ctx, err, state)
	}
	c.store.MarkValid(c.now())

	matched := []extract.ThreadSummary{}
	for _, t := range threads {
		text := t.Title
		if t.Category != nil {
			text += " " + *t.Category
		}
		if t.Preview != nil {
			text += " " + *t.Preview
		}
		if textutil.FuzzyContains(text, query, fuzzyThreshold) {
			matched = append(matched, t)
		}
	}
	span.SetAttributes(attribute.Int("listed", len(threads)), attribute.Int("matched", len(matched)))
	return truncate(matched, limit), nil
}

func truncate(threads []extract.ThreadSummary, limit int) []extract.ThreadSummary {
	if len(threads) > limit {
		return threads[:limit]
	}
	return threads
}

func (c *Client) origin() string {
	return (&url.URL{Scheme: c.opts.BaseUrl.Scheme, Host: c.opts.BaseUrl.Host}).String()
}

// ThreadUrl checks that raw is an absolute link to the forum, same scheme,
// host and port as the base url.
func (c *Client) ThreadUrl(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.InvalidInput("thread_url must not be empty")
	}
	link, err := url.Parse(raw)
	if err != nil {
		return nil, errs.InvalidInput("thread_url is not a valid url: %s", err.Error())
	}
	if link.Scheme != "http" && link.Scheme != "https" {
		return nil, errs.InvalidInput("thread_url must be an http(s) url, got %q", raw)
	}
	if !core.SameOrigin(c.opts.BaseUrl, link) {
		return nil, errs.InvalidInput("thread_url must point at %s, got %q", c.origin(), raw)
	}
	return link, nil
}

// GetThread reads the posts of a thread, following "next" links for up to
// FollowPages pages.
func (c *Client) GetThread(ctx context.Context, threadUrl string) (ThreadContent, error) {
	ctx, span := tracer.Start(ctx, "client:GetThread")
	defer span.End()

	link, err := c.ThreadUrl(threadUrl)
	if err != nil {
		return ThreadContent{}, err
	}
	if !c.store.IsAuthenticated() {
		return ThreadContent{}, errs.NotAuthenticated()
	}
	span.SetAttributes(attribute.String("url", link.String()))

	content := ThreadContent{
		Url:   link.String(),
		Posts: []Post{},
	}
	seen := map[string]bool{}
	next := link
	for next != nil && content.Pages < c.opts.FollowPages {
		seen[next.String()] = true

		doc, state, err := c.fetch(ctx, "thread", core.Request{Path: next.String()})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch thread page")
			return ThreadContent{}, err
		}
		page, err := extract.Thread(doc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read thread page")
			return ThreadContent{}, c.layoutFailure(ctx, err, state)
		}
		c.store.MarkValid(c.now())

		if content.Title == nil {
			content.Title = page.Title
		}
		for _, p := range page.Posts {
			content.Posts = append(content.Posts, c.post(p, doc.Url))
		}
		content.Pages++

		next = page.Next
		if next != nil && (seen[next.String()] || !core.SameOrigin(c.opts.BaseUrl, next)) {
			next = nil
		}
	}
	content.PostCount = len(content.Posts)

	slog.DebugContext(ctx, "read thread", "url", content.Url, "posts", content.PostCount, "pages", content.Pages)
	return content, nil
}

func (c *Client) post(p extract.Post, pageUrl *url.URL) Post {
	out := Post{Post: p}
	if c.opts.IncludePostHtml && p.RawHtml != "" {
		html := strings.TrimSpace(c.sanitizer.Sanitize(resolveLinks(p.RawHtml, pageUrl)))
		out.Html = &html
	}
	return out
}

// Check asks the forum whether the loaded session is still accepted,
// clearing it if not.
func (c *Client) Check(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Check")
	defer span.End()

	if !c.store.IsAuthenticated() {
		return errs.NotAuthenticated()
	}
	_, state, err := c.fetch(ctx, "forum", core.Request{Path: ForumPath, Query: c.forumQuery()})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session check failed")
		return err
	}
	if state != extract.PageLoggedIn {
		return c.invalidate(ctx, "forum page shows no signed in user")
	}
	c.store.MarkValid(c.now())
	return nil
}
