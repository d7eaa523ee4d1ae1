package tscommunity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/scrapers/tscommunity/extract"
	"tscommunity/lib/scrapers/tscommunity/forum"
	"tscommunity/lib/scrapers/tscommunity/session"
	"tscommunity/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

type fakeForum struct {
	store *session.Store
	calls []string

	loginErr  error
	checkErr  error
	searchErr error
	threadErr error

	result  forum.SearchResult
	content forum.ThreadContent

	gotQuery string
	gotLimit int
	gotUrl   string
}

func (f *fakeForum) Login(ctx context.Context, username, password string) error {
	f.calls = append(f.calls, "login")
	return f.loginErr
}

func (f *fakeForum) SearchForum(ctx context.Context, query string, limit int) (forum.SearchResult, error) {
	f.calls = append(f.calls, "search")
	f.gotQuery = query
	f.gotLimit = limit
	return f.result, f.searchErr
}

func (f *fakeForum) GetThread(ctx context.Context, threadUrl string) (forum.ThreadContent, error) {
	f.calls = append(f.calls, "thread")
	f.gotUrl = threadUrl
	return f.content, f.threadErr
}

func (f *fakeForum) Check(ctx context.Context) error {
	f.calls = append(f.calls, "check")
	return f.checkErr
}

func (f *fakeForum) Session() *session.Store {
	return f.store
}

func newFake() *fakeForum {
	base, _ := url.Parse("https://community.tradestation.com")
	return &fakeForum{store: session.New(base)}
}

func setup(t testing.TB, f *fakeForum, opts Options) *Service {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "services/tscommunity"})
	t.Cleanup(cleanup)
	return NewService(f, opts)
}

func text(t testing.TB, res *mcp.CallToolResult, i int) string {
	require.Greater(t, len(res.Content), i)
	content, ok := res.Content[i].(mcp.TextContent)
	require.True(t, ok, "content %d is not text", i)
	return content.Text
}

func errorPayload(t testing.TB, res *mcp.CallToolResult) ErrorPayload {
	require.True(t, res.IsError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &payload))
	return payload
}

func ptr[T any](v T) *T {
	return &v
}

func TestTools(t *testing.T) {
	service := setup(t, newFake(), Options{})

	required := map[string][]string{}
	for _, tool := range service.Tools() {
		required[tool.Tool.Name] = tool.Tool.InputSchema.Required
	}
	expect := map[string][]string{
		ToolLogin:       {"username", "password"},
		ToolSearchForum: {"query"},
		ToolGetThread:   {"thread_url"},
	}
	if diff := cmp.Diff(expect, required); diff != "" {
		t.Fatalf("required arguments (-want +got):\n%s", diff)
	}
}

func TestInvalidInputIsRejectedBeforeDispatch(t *testing.T) {
	fake := newFake()
	service := setup(t, fake, Options{})
	ctx := context.Background()

	cases := []struct {
		tool string
		args map[string]any
	}{
		{ToolSearchForum, nil},
		{ToolSearchForum, map[string]any{"query": ""}},
		{ToolSearchForum, map[string]any{"query": 42}},
		{ToolSearchForum, map[string]any{"query": "orders", "limit": 0}},
		{ToolSearchForum, map[string]any{"query": "orders", "limit": 2.5}},
		{ToolSearchForum, map[string]any{"query": "orders", "limit": "many"}},
		{ToolSearchForum, map[string]any{"query": "orders", "limit": true}},
		{ToolGetThread, map[string]any{}},
		{ToolGetThread, map[string]any{"thread_url": "   "}},
		{ToolLogin, map[string]any{"username": "trader"}},
		{ToolLogin, map[string]any{"password": "x"}},
		{"delete_everything", map[string]any{}},
	}
	for _, c := range cases {
		res, err := service.Call(ctx, c.tool, c.args)
		require.NoError(t, err)
		payload := errorPayload(t, res)
		require.Equal(t, errs.KindInvalidInput, payload.Kind, "%s %v", c.tool, c.args)
		require.NotEmpty(t, payload.Action)
	}
	require.Empty(t, fake.calls)
}

func TestSearchForum(t *testing.T) {
	fake := newFake()
	fake.result = forum.SearchResult{
		Query:  "order execution problems",
		Source: "search",
		Threads: []extract.ThreadSummary{
			{
				Title:            "Order execution problems at market open",
				Url:              "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=101",
				Author:           ptr("trader_joe"),
				Replies:          ptr(12),
				LastActivityText: ptr("3/8/2024 9:31:02 AM"),
				Preview:          ptr("Orders placed at 9:30 are filled late"),
			},
			{
				Title: "Order execution problems with bracket orders",
				Url:   "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=102",
			},
		},
	}
	service := setup(t, fake, Options{})

	res, err := service.Call(context.Background(), ToolSearchForum, map[string]any{
		"query": "order execution problems",
		"limit": float64(5),
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "order execution problems", fake.gotQuery)
	require.Equal(t, 5, fake.gotLimit)

	var decoded forum.SearchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &decoded))
	require.Equal(t, fake.result, decoded)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &raw))
	second := raw["threads"].([]any)[1].(map[string]any)
	// absent fields are null, not left out
	require.Contains(t, second, "author")
	require.Nil(t, second["author"])

	rendered := text(t, res, 1)
	require.Contains(t, rendered, "Found 2 results for 'order execution problems':")
	require.Contains(t, rendered, "1. **Order execution problems at market open**")
	require.Contains(t, rendered, "   Author: trader_joe")
	require.Contains(t, rendered, "   Date: 3/8/2024 9:31:02 AM")
	require.Contains(t, rendered, "   URL: https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=102")
}

func TestSearchForumDefaultLimit(t *testing.T) {
	fake := newFake()
	fake.result = forum.SearchResult{Query: "nothing", Threads: []extract.ThreadSummary{}}
	service := setup(t, fake, Options{})

	res, err := service.Call(context.Background(), ToolSearchForum, map[string]any{"query": "nothing"})
	require.NoError(t, err)
	require.Equal(t, forum.DefaultLimit, fake.gotLimit)
	require.Equal(t, "No results found for query: nothing", text(t, res, 1))

	_, err = service.Call(context.Background(), ToolSearchForum, map[string]any{"query": "nothing", "limit": "3"})
	require.NoError(t, err)
	require.Equal(t, 3, fake.gotLimit)
}

func TestErrorKindsReachTheCaller(t *testing.T) {
	cases := []error{
		errs.NotAuthenticated(),
		errs.SessionExpired("redirected to signin.tradestation.com"),
		errs.Parse("search", "no results table found"),
		errs.TransportStatus(http.StatusBadGateway),
	}
	for _, expect := range cases {
		fake := newFake()
		fake.searchErr = expect
		service := setup(t, fake, Options{})

		res, err := service.Call(context.Background(), ToolSearchForum, map[string]any{"query": "orders"})
		require.NoError(t, err)
		payload := errorPayload(t, res)
		require.Equal(t, errs.KindOf(expect), payload.Kind)
		require.NotEmpty(t, payload.Message)
		require.NotEmpty(t, payload.Action)
	}
}

func TestGetThread(t *testing.T) {
	fake := newFake()
	fake.content = forum.ThreadContent{
		Url:   "https://community.tradestation.com/Discussions/Topic.aspx?Topic_ID=101",
		Title: ptr("Order execution problems at market open"),
		Posts: []forum.Post{
			{Post: extract.Post{Author: ptr("trader_joe"), TimestampText: ptr("3/8/2024 9:31:02 AM"), Body: "Orders fill late."}},
			{Post: extract.Post{Body: "Same here."}},
		},
		PostCount: 2,
		Pages:     1,
	}
	service := setup(t, fake, Options{})

	res, err := service.Call(context.Background(), ToolGetThread, map[string]any{"thread_url": fake.content.Url})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, fake.content.Url, fake.gotUrl)

	var decoded forum.ThreadContent
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &decoded))
	require.Equal(t, 2, decoded.PostCount)
	require.Equal(t, "Orders fill late.", decoded.Posts[0].Body)

	rendered := text(t, res, 1)
	require.Contains(t, rendered, "# Order execution problems at market open")
	require.Contains(t, rendered, "Posts: 2")
	require.Contains(t, rendered, "## Post 1\n**Author:** trader_joe\n**Date:** 3/8/2024 9:31:02 AM\n\nOrders fill late.")
	require.Contains(t, rendered, "## Post 2\n\nSame here.")
}

func TestLogin(t *testing.T) {
	fake := newFake()
	service := setup(t, fake, Options{})

	res, err := service.Call(context.Background(), ToolLogin, map[string]any{"username": "trader", "password": "hunter2"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, []string{"login"}, fake.calls)

	fake.loginErr = errs.LoginFailed("the forum showed the sign in form again")
	res, err = service.Call(context.Background(), ToolLogin, map[string]any{"username": "trader", "password": "wrong"})
	require.NoError(t, err)
	require.Equal(t, errs.KindLoginFailed, errorPayload(t, res).Kind)
}

func TestLoginFallsBackToCookieBundle(t *testing.T) {
	expires := float64(time.Now().Add(24 * time.Hour).Unix())
	contents, err := json.Marshal([]map[string]any{{
		"name":    "ASP.NET_SessionId",
		"value":   "captured",
		"domain":  "community.tradestation.com",
		"path":    "/",
		"expires": expires,
	}})
	require.NoError(t, err)
	env, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:         "services/tscommunity",
		CookieBundle: string(contents),
	})
	defer cleanup()

	fake := newFake()
	fake.loginErr = errs.LoginUnsupported("sign in is handled by signin.tradestation.com behind a bot challenge")
	service := NewService(fake, Options{CookieFile: env.CookieFile})

	res, err := service.Call(context.Background(), ToolLogin, map[string]any{"username": "trader", "password": "hunter2"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, []string{"login", "check"}, fake.calls)
	require.True(t, fake.store.IsAuthenticated())

	var status LoginStatus
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &status))
	require.Equal(t, LoginStatus{Authenticated: true, Cookies: 1, Source: "cookie_file"}, status)

	// without a bundle the challenge is reported as is
	fake = newFake()
	fake.loginErr = errs.LoginUnsupported("challenge")
	service = setup(t, fake, Options{CookieFile: filepath.Join(t.TempDir(), "missing.json")})
	res, err = service.Call(context.Background(), ToolLogin, map[string]any{"username": "trader", "password": "hunter2"})
	require.NoError(t, err)
	require.Equal(t, errs.KindLoginUnsupported, errorPayload(t, res).Kind)
	require.False(t, fake.store.IsAuthenticated())
}

func TestForeignErrorsAreInternal(t *testing.T) {
	fake := newFake()
	fake.threadErr = context.DeadlineExceeded
	service := setup(t, fake, Options{})

	res, err := service.Call(context.Background(), ToolGetThread, map[string]any{"thread_url": "https://community.tradestation.com/x"})
	require.NoError(t, err)
	payload := errorPayload(t, res)
	require.Equal(t, errs.KindInternal, payload.Kind)
	require.Equal(t, context.DeadlineExceeded.Error(), payload.Message)
}
