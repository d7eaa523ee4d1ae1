package tscommunity

import (
	"fmt"
	"strings"
	"time"

	"tscommunity/lib/scrapers/tscommunity/extract"
	"tscommunity/lib/scrapers/tscommunity/forum"
)

const timeLayout = "Jan 2, 2006 3:04 PM MST"

func when(t *time.Time, text *string) string {
	if t != nil {
		return t.Format(timeLayout)
	}
	if text != nil {
		return *text
	}
	return ""
}

func renderSearch(result forum.SearchResult) string {
	if len(result.Threads) == 0 {
		return fmt.Sprintf("No results found for query: %s", result.Query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for '%s'", len(result.Threads), result.Query)
	if result.Source == "browse" {
		b.WriteString(" (search was empty, matched against the forum's latest topics)")
	}
	b.WriteString(":\n\n")

	for i, t := range result.Threads {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, t.Title)
		writeSummaryFields(&b, t)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSummaryFields(b *strings.Builder, t extract.ThreadSummary) {
	if t.Author != nil {
		fmt.Fprintf(b, "   Author: %s\n", *t.Author)
	}
	if date := when(t.LastActivity, t.LastActivityText); date != "" {
		fmt.Fprintf(b, "   Date: %s\n", date)
	}
	if t.Replies != nil {
		fmt.Fprintf(b, "   Replies: %d\n", *t.Replies)
	}
	if t.Category != nil {
		fmt.Fprintf(b, "   Category: %s\n", *t.Category)
	}
	if t.Preview != nil {
		fmt.Fprintf(b, "   Preview: %s\n", *t.Preview)
	}
	fmt.Fprintf(b, "   URL: %s\n", t.Url)
}

func renderThread(content forum.ThreadContent) string {
	var b strings.Builder

	title := "Thread"
	if content.Title != nil {
		title = *content.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "URL: %s\n", content.Url)
	fmt.Fprintf(&b, "Posts: %d\n", content.PostCount)
	if content.Pages > 1 {
		fmt.Fprintf(&b, "Pages read: %d\n", content.Pages)
	}

	for i, p := range content.Posts {
		fmt.Fprintf(&b, "\n## Post %d\n", i+1)
		if p.Author != nil {
			fmt.Fprintf(&b, "**Author:** %s\n", *p.Author)
		}
		if date := when(p.Timestamp, p.TimestampText); date != "" {
			fmt.Fprintf(&b, "**Date:** %s\n", date)
		}
		fmt.Fprintf(&b, "\n%s\n", p.Body)
	}
	return strings.TrimRight(b.String(), "\n")
}
