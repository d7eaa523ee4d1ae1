package extract

import (
	"bytes"
	"embed"
	"net/url"
	"strings"
	"testing"
	"time"

	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/*.html
var fixtures embed.FS

func fixture(t testing.TB, name, pageUrl string) *goquery.Document {
	contents, err := fixtures.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatal(err)
	}
	return parse(t, string(contents), pageUrl)
}

func parse(t testing.TB, src, pageUrl string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(src))
	if err != nil {
		t.Fatal(err)
	}
	doc.Url, err = url.Parse(pageUrl)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

const searchUrl = "https://community.tradestation.com/Discussions/Search.aspx?Search=order+execution+problems&Forum_ID=213"
const threadUrl = "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=101"

func titles(summaries []ThreadSummary) []string {
	out := make([]string, len(summaries))
	for i, s := range summaries {
		out[i] = s.Title
	}
	return out
}

func TestSearch(t *testing.T) {
	results, err := Search(fixture(t, "search_results.html", searchUrl))
	require.NoError(t, err)

	expectTitles := []string{
		"Order execution problems at market open",
		"Order execution problems with bracket orders",
		"Stop orders not executing - execution problems",
		"Order execution problems on futures rollover",
		"Order execution delays (problems?)",
		"Order execution problems in simulator",
		"Partial fills and execution problems",
		"Order execution problems after upgrade",
	}
	if diff := cmp.Diff(expectTitles, titles(results)); diff != "" {
		t.Fatalf("titles (-want +got):\n%s", diff)
	}

	first := results[0]
	require.Equal(t, "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=101&Forum_ID=213", first.Url)
	require.Equal(t, "trader_joe", *first.Author)
	require.Equal(t, "Order Execution", *first.Category)
	require.Equal(t, 12, *first.Replies)
	require.Equal(t, "Orders placed at 9:30 are filled late", *first.Preview)
	require.Equal(t, "3/8/2024 9:31:02 AM", *first.LastActivityText)
	require.True(t, time.Date(2024, time.March, 8, 9, 31, 2, 0, timezone.Location).Equal(*first.LastActivity))

	// absent fields stay null
	require.Nil(t, results[1].Preview)
	require.Equal(t, 1204, *results[3].Replies)
	require.Equal(t, 0, *results[2].Replies)
}

func TestSearchEmptyIsNotAnError(t *testing.T) {
	results, err := Search(fixture(t, "search_empty.html", searchUrl))
	require.NoError(t, err)
	require.NotNil(t, results)
	require.Empty(t, results)
}

func TestSearchMissingContainer(t *testing.T) {
	for _, name := range []string{"maintenance.html", "login_form.html", "challenge.html"} {
		_, err := Search(fixture(t, name, searchUrl))
		require.True(t, errs.Is(err, errs.KindParse), name)
	}
}

func TestSearchMarkedTableWithoutHeader(t *testing.T) {
	doc := parse(t, `<div class="SearchResults"><table>
		<tr><td>1</td><td><a href="/Discussions/Topic.aspx?Topic_ID=9">Headerless result</a></td><td>someone</td><td>General</td></tr>
		<tr><td colspan="4">footer</td></tr>
	</table></div>`, searchUrl)
	results, err := Search(doc)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Headerless result", results[0].Title)
	require.Equal(t, "someone", *results[0].Author)
	require.Equal(t, "General", *results[0].Category)
	require.Nil(t, results[0].LastActivity)
	require.Nil(t, results[0].Replies)
}

func TestForum(t *testing.T) {
	results, err := Forum(fixture(t, "forum.html", "https://community.tradestation.com/Discussions/Forum.aspx?Forum_ID=213"))
	require.NoError(t, err)
	require.Len(t, results, 5)

	oco := results[1]
	require.Equal(t, "Order execution problems with OCO groups", oco.Title)
	require.Equal(t, "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=202&Forum_ID=213", oco.Url)
	require.Equal(t, "oco_fan", *oco.Author)
	require.Equal(t, "Order Execution", *oco.Category)
	require.Equal(t, "3/9/2024 3:20 PM", *oco.LastActivityText)
	require.Nil(t, oco.Replies)
}

func TestThread(t *testing.T) {
	page, err := Thread(fixture(t, "thread.html", threadUrl))
	require.NoError(t, err)

	require.Equal(t, "Order execution problems at market open", *page.Title)
	require.Len(t, page.Posts, 3)

	first := page.Posts[0]
	require.Equal(t, "trader_joe", *first.Author)
	require.Equal(t, "3/8/2024 9:31:02 AM", *first.TimestampText)
	require.True(t, time.Date(2024, time.March, 8, 9, 31, 2, 0, timezone.Location).Equal(*first.Timestamp))
	require.Equal(t, "My market orders placed right at 9:30 are filled several seconds late.\n\nIs anyone else seeing this?", first.Body)
	require.NotContains(t, first.Body, "trackView")

	// the quote belongs to the second post, it is not a post of its own
	second := page.Posts[1]
	require.Equal(t, "mod_sam", *second.Author)
	require.Contains(t, second.Body, "Please check the order routing docs.")
	require.Contains(t, second.RawHtml, `href="https://help.tradestation.com/orders"`)

	third := page.Posts[2]
	require.Nil(t, third.Author)
	require.NotNil(t, third.Timestamp)
	require.Equal(t, "Same here.", third.Body)

	require.Equal(t, "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=101&Page=2", page.Next.String())
}

func TestThreadTableRows(t *testing.T) {
	doc := parse(t, `<html><body><h2>Table layout</h2><table>
		<tr class="msgHeader"><td>Author</td><td>Message</td></tr>
		<tr class="message"><td class="username">alice</td><td><div class="msg-date">3/1/2024 1:00 PM</div><div class="msgText">first post</div></td></tr>
		<tr class="message"><td class="username">bob</td><td><div class="msgText">second post</div></td></tr>
	</table></body></html>`, threadUrl)
	page, err := Thread(doc)
	require.NoError(t, err)
	require.Equal(t, "Table layout", *page.Title)
	require.Len(t, page.Posts, 2)
	require.Equal(t, "alice", *page.Posts[0].Author)
	require.Equal(t, "first post", page.Posts[0].Body)
	require.Equal(t, "bob", *page.Posts[1].Author)
	require.Nil(t, page.Posts[1].Timestamp)
	require.Nil(t, page.Next)
}

func TestThreadIgnoresPostWidgets(t *testing.T) {
	page, err := Thread(fixture(t, "thread_sidebar.html", threadUrl))
	require.NoError(t, err)
	require.Equal(t, "Bracket order fills", *page.Title)

	authors := []string{}
	for _, p := range page.Posts {
		authors = append(authors, *p.Author)
	}
	if diff := cmp.Diff([]string{"swing_trader", "ts_support"}, authors); diff != "" {
		t.Fatalf("authors (-want +got):\n%s", diff)
	}
	require.Equal(t, "Fixed in build 10.0.1234.", page.Posts[1].Body)
}

func TestThreadEmptyList(t *testing.T) {
	page, err := Thread(parse(t, `<div id="TopicPosts"></div>`, threadUrl))
	require.NoError(t, err)
	require.NotNil(t, page.Posts)
	require.Empty(t, page.Posts)
	require.Nil(t, page.Title)
}

func TestThreadMissingContainer(t *testing.T) {
	_, err := Thread(fixture(t, "maintenance.html", threadUrl))
	require.True(t, errs.Is(err, errs.KindParse))
}

func TestClassifyPage(t *testing.T) {
	cases := []struct {
		name   string
		expect PageState
	}{
		{"search_results.html", PageLoggedIn},
		{"thread.html", PageLoggedIn},
		{"maintenance.html", PageLoggedIn},
		{"login_form.html", PageLoginForm},
		{"challenge.html", PageChallenge},
	}
	for _, c := range cases {
		require.Equal(t, c.expect, ClassifyPage(fixture(t, c.name, searchUrl)), c.name)
	}
	require.Equal(t, PageUnknown, ClassifyPage(parse(t, `<p>hello</p>`, searchUrl)))
	require.Equal(t, PageChallenge, ClassifyPage(parse(t, `<script>window.AwsWafIntegration = {}</script>`, searchUrl)))
}

func TestFindLoginForm(t *testing.T) {
	form, ok := FindLoginForm(fixture(t, "login_form.html", "https://community.tradestation.com/Discussions/Login.aspx"))
	require.True(t, ok)
	require.Equal(t, LoginForm{
		Action:        "https://community.tradestation.com/Discussions/Login.aspx?ReturnUrl=%2fDiscussions%2fForum.aspx",
		Method:        "POST",
		UsernameField: "ctl00$Login$UserName",
		PasswordField: "ctl00$Login$Password",
		Hidden: map[string]string{
			"__VIEWSTATE":             "dDwtMTA4NzM3OTk3Ozs+",
			"__EVENTVALIDATION":       "ev123",
			"ctl00$Login$LoginButton": "Sign In",
		},
	}, form)

	_, ok = FindLoginForm(fixture(t, "challenge.html", searchUrl))
	require.False(t, ok)
	_, ok = FindLoginForm(parse(t, strings.Repeat("<form><input name=q></form>", 2), searchUrl))
	require.False(t, ok)
}
