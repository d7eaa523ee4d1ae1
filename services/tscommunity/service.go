// Package tscommunity exposes the forum client as MCP tools.
package tscommunity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/scrapers/tscommunity/forum"
	"tscommunity/lib/scrapers/tscommunity/session"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	ToolLogin       = "login"
	ToolSearchForum = "search_forum"
	ToolGetThread   = "get_thread"
)

// Forum is the part of forum.Client the tools call.
type Forum interface {
	Login(ctx context.Context, username, password string) error
	SearchForum(ctx context.Context, query string, limit int) (forum.SearchResult, error)
	GetThread(ctx context.Context, threadUrl string) (forum.ThreadContent, error)
	Check(ctx context.Context) error
	Session() *session.Store
}

type Options struct {
	// when set, a login that runs into the bot challenge falls back to
	// reloading this cookie bundle
	CookieFile string
}

type Service struct {
	forum Forum
	opts  Options
	tools []server.ServerTool
	// tool calls run one at a time, the session is not safe to share
	mu sync.Mutex
}

func NewService(f Forum, opts Options) *Service {
	s := &Service{forum: f, opts: opts}
	s.tools = []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolLogin,
				mcp.WithDescription("Log in to the TradeStation Community forum. Sign in is usually behind a CAPTCHA, in which case the captured cookie bundle is reloaded instead."),
				mcp.WithString("username", mcp.Required(), mcp.Description("TradeStation username")),
				mcp.WithString("password", mcp.Required(), mcp.Description("TradeStation password")),
			),
			Handler: s.handle(ToolLogin, s.login),
		},
		{
			Tool: mcp.NewTool(ToolSearchForum,
				mcp.WithDescription("Search the TradeStation Community forum for threads and posts"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search query to find relevant posts and threads")),
				mcp.WithNumber("limit",
					mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d)", forum.DefaultLimit)),
					mcp.DefaultNumber(forum.DefaultLimit),
					mcp.Min(1),
				),
			),
			Handler: s.handle(ToolSearchForum, s.searchForum),
		},
		{
			Tool: mcp.NewTool(ToolGetThread,
				mcp.WithDescription("Get the full content of a thread on the TradeStation Community forum"),
				mcp.WithString("thread_url", mcp.Required(), mcp.Description("URL of the thread to retrieve, as returned by search_forum")),
			),
			Handler: s.handle(ToolGetThread, s.getThread),
		},
	}
	return s
}

func (s *Service) Tools() []server.ServerTool {
	return s.tools
}

func (s *Service) Register(srv *server.MCPServer) {
	srv.AddTools(s.tools...)
}

// Call runs a tool by name, the same way the MCP server would.
func (s *Service) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	for _, t := range s.tools {
		if t.Tool.Name == name {
			return t.Handler(ctx, req)
		}
	}
	return errorResult(errs.InvalidInput("unknown tool %q", name)), nil
}

type toolFunc func(ctx context.Context, args map[string]any) (record any, text string, err error)

// handle wraps a tool with logging, tracing and error rendering. Failures
// are returned as tool results, never as protocol errors.
func (s *Service) handle(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callId := uuid.NewString()
		ctx, span := tracer.Start(ctx, "tool:"+name)
		defer span.End()
		span.SetAttributes(attribute.String("call_id", callId))

		s.mu.Lock()
		defer s.mu.Unlock()

		start := time.Now()
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		record, text, err := fn(ctx, args)
		elapsed := time.Since(start)

		kind := errs.KindOf(err)
		toolCalls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", name),
			attribute.String("kind", string(kind)),
		))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			slog.WarnContext(ctx, "tool call failed", "call_id", callId, "tool", name, "kind", kind, "duration", elapsed, "err", err)
			return errorResult(err), nil
		}
		slog.InfoContext(ctx, "tool call", "call_id", callId, "tool", name, "duration", elapsed)

		encoded, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(string(encoded)),
				mcp.NewTextContent(text),
			},
		}, nil
	}
}

type ErrorPayload struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
	Action  string    `json:"action,omitempty"`
}

func errorResult(err error) *mcp.CallToolResult {
	payload := ErrorPayload{
		Kind:    errs.KindOf(err),
		Message: err.Error(),
	}
	var e *errs.Error
	if errors.As(err, &e) {
		payload.Message = e.Message
		if e.Err != nil {
			payload.Message += ": " + e.Err.Error()
		}
		payload.Action = e.Action
	}

	encoded, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.NewTextContent(string(encoded))},
	}
}

type LoginStatus struct {
	Authenticated bool   `json:"authenticated"`
	Cookies       int    `json:"cookies"`
	Source        string `json:"source"`
}

func (s *Service) login(ctx context.Context, args map[string]any) (any, string, error) {
	username, err := requiredString(args, "username")
	if err != nil {
		return nil, "", err
	}
	password, err := requiredString(args, "password")
	if err != nil {
		return nil, "", err
	}

	store := s.forum.Session()
	err = s.forum.Login(ctx, username, password)
	if err == nil {
		status := LoginStatus{Authenticated: true, Cookies: len(store.Cookies()), Source: "login"}
		return status, "Successfully logged in to TradeStation Community forum.", nil
	}
	if !errs.Is(err, errs.KindLoginUnsupported) || s.opts.CookieFile == "" {
		return nil, "", err
	}

	slog.InfoContext(ctx, "login is behind a bot challenge, reloading the cookie bundle", "path", s.opts.CookieFile)
	loadErr := store.LoadFile(s.opts.CookieFile)
	if loadErr != nil {
		slog.WarnContext(ctx, "could not reload cookie bundle", "err", loadErr)
		return nil, "", err
	}
	checkErr := s.forum.Check(ctx)
	if checkErr != nil {
		return nil, "", checkErr
	}

	status := LoginStatus{Authenticated: true, Cookies: len(store.Cookies()), Source: "cookie_file"}
	return status, "Sign in is behind a CAPTCHA, the saved browser session was reloaded and is valid.", nil
}

func (s *Service) searchForum(ctx context.Context, args map[string]any) (any, string, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, "", err
	}
	limit, err := optionalInt(args, "limit", forum.DefaultLimit)
	if err != nil {
		return nil, "", err
	}
	if limit < 1 {
		return nil, "", errs.InvalidInput("limit must be at least 1, got %d", limit)
	}

	result, err := s.forum.SearchForum(ctx, query, limit)
	if err != nil {
		return nil, "", err
	}
	return result, renderSearch(result), nil
}

func (s *Service) getThread(ctx context.Context, args map[string]any) (any, string, error) {
	threadUrl, err := requiredString(args, "thread_url")
	if err != nil {
		return nil, "", err
	}
	content, err := s.forum.GetThread(ctx, threadUrl)
	if err != nil {
		return nil, "", err
	}
	return content, renderThread(content), nil
}
