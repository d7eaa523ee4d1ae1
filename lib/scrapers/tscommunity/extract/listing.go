package extract

import (
	"regexp"
	"strconv"
	"strings"

	"tscommunity/lib/htmlutil"
	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/textutil"
	"tscommunity/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

type column int

const (
	colTitle column = iota
	colAuthor
	colReplies
	colCategory
	colLast
)

// the order matters, "Last Post" must not be read as a reply count and
// "Topic Starter" must not be read as the title
var headerLabels = []struct {
	col column
	re  *regexp.Regexp
}{
	{colLast, regexp.MustCompile(`(?i)last\s*(post|reply|activity)|updated`)},
	{colAuthor, regexp.MustCompile(`(?i)author|start(ed|er)|posted\s*by|poster`)},
	{colReplies, regexp.MustCompile(`(?i)repl(y|ies)|responses|posts`)},
	{colTitle, regexp.MustCompile(`(?i)topic|subject|thread|title`)},
	{colCategory, regexp.MustCompile(`(?i)forum|category|section`)},
}

// the column positions of the forum's own topic grid, used when a listing
// has no header row to read them from
var defaultColumns = map[column]int{
	colAuthor:   2,
	colCategory: 3,
	colLast:     8,
}

var listingMarker = regexp.MustCompile(`(?i)search.*result|result.*(grid|list|table)|topic.*(grid|list)|^tbl_?topics?`)
var headerRowClass = regexp.MustCompile(`(?i)head`)
var topicRowClass = regexp.MustCompile(`(?i)^tbl_TR_`)
var lastPostBy = regexp.MustCompile(`(?i)\s*\bby:.*$`)
var digits = regexp.MustCompile(`\d[\d,]*`)

type listing struct {
	table   *goquery.Selection
	columns map[column]int
}

// ownRows are the rows of table itself, not of any table nested in it.
func ownRows(table *goquery.Selection) *goquery.Selection {
	return table.ChildrenFiltered("thead, tbody, tfoot").ChildrenFiltered("tr").
		AddSelection(table.ChildrenFiltered("tr"))
}

func readHeader(row *goquery.Selection) map[column]int {
	cells := row.ChildrenFiltered("th, td")
	if row.ChildrenFiltered("th").Length() == 0 && !classMatches(row, headerRowClass) {
		return nil
	}
	columns := map[column]int{}
	cells.Each(func(i int, cell *goquery.Selection) {
		label := htmlutil.Text(cell)
		for _, h := range headerLabels {
			if !h.re.MatchString(label) {
				continue
			}
			if _, taken := columns[h.col]; !taken {
				columns[h.col] = i
			}
			break
		}
	})
	return columns
}

// findListing locates the topic grid of a listing page. A table qualifies
// when its header row names both a topic and an author column, or, failing
// that, when it (or its wrapper) carries a results marker in its id or
// class, or when its rows use the forum's topic row classes.
func findListing(doc *goquery.Document) (listing, bool) {
	var found listing
	ok := false

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := ownRows(table)
		if rows.Length() == 0 {
			return true
		}
		columns := readHeader(rows.First())
		_, hasTitle := columns[colTitle]
		_, hasAuthor := columns[colAuthor]
		if hasTitle && hasAuthor {
			found = listing{table: table, columns: columns}
			ok = true
			return false
		}
		return true
	})
	if ok {
		return found, true
	}

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		marked := markerMatches(table, listingMarker) || markerMatches(table.Parent(), listingMarker)
		topicRows := ownRows(table).FilterFunction(func(_ int, row *goquery.Selection) bool {
			return classMatches(row, topicRowClass)
		})
		if !marked && topicRows.Length() == 0 {
			return true
		}
		columns := readHeader(ownRows(table).First())
		if len(columns) == 0 {
			columns = defaultColumns
		}
		found = listing{table: table, columns: columns}
		ok = true
		return false
	})
	return found, ok
}

func cellText(cells *goquery.Selection, columns map[column]int, col column) string {
	idx, ok := columns[col]
	if !ok || idx >= cells.Length() {
		return ""
	}
	return htmlutil.Text(cells.Eq(idx))
}

func (l listing) summaries(doc *goquery.Document) []ThreadSummary {
	now := timezone.Now()
	out := []ThreadSummary{}

	ownRows(l.table).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}

		var link *goquery.Selection
		if idx, ok := l.columns[colTitle]; ok && idx < cells.Length() {
			link = topicLink(cells.Eq(idx))
		}
		if link == nil || link.Length() == 0 {
			link = topicLink(row)
		}
		if link.Length() == 0 {
			return
		}

		title := htmlutil.Text(link)
		href := resolve(doc, link.AttrOr("href", ""))
		if title == "" || href == nil {
			return
		}

		summary := ThreadSummary{
			Title:    title,
			Url:      href.String(),
			Author:   optional(cellText(cells, l.columns, colAuthor)),
			Category: optional(cellText(cells, l.columns, colCategory)),
		}

		if preview := textutil.CollapseSpace(link.AttrOr("title", "")); preview != "" {
			summary.Preview = ptr(textutil.Truncate(preview, MaxPreviewLength))
		}

		if m := digits.FindString(cellText(cells, l.columns, colReplies)); m != "" {
			n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
			if err == nil {
				summary.Replies = &n
			}
		}

		last := strings.TrimSpace(lastPostBy.ReplaceAllString(cellText(cells, l.columns, colLast), ""))
		if last != "" {
			summary.LastActivityText = &last
			if t, ok := timezone.Parse(last, now); ok {
				summary.LastActivity = &t
			}
		}

		out = append(out, summary)
	})

	return out
}

func topicLink(sel *goquery.Selection) *goquery.Selection {
	return sel.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return topicLinkRegex.MatchString(a.AttrOr("href", ""))
	}).First()
}

// Search reads the result listing of the forum search page, in page order.
// A results table without any topic rows yields an empty slice.
func Search(doc *goquery.Document) ([]ThreadSummary, error) {
	l, ok := findListing(doc)
	if !ok {
		return nil, errs.Parse("search", "no results table found")
	}
	return l.summaries(doc), nil
}

// Forum reads the topic listing of a forum's front page, in page order.
func Forum(doc *goquery.Document) ([]ThreadSummary, error) {
	l, ok := findListing(doc)
	if !ok {
		return nil, errs.Parse("forum", "no topic table found")
	}
	return l.summaries(doc), nil
}
