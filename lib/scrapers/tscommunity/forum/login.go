package forum

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tscommunity/lib/scrapers/tscommunity/core"
	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/scrapers/tscommunity/extract"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// loginStep is one request of the login flow, it carries the cookies the
// forum has handed out so far since none of them are in the session yet.
func (c *Client) loginStep(ctx context.Context, req core.Request, cookies []*http.Cookie) (*goquery.Document, []*http.Cookie, error) {
	res, err := c.transport.Do(ctx, req, cookies)
	if err != nil {
		return nil, cookies, err
	}
	cookies = core.MergeCookies(cookies, res.Cookies)

	if res.Redirect != nil {
		return nil, cookies, errs.LoginUnsupported(fmt.Sprintf(
			"sign in is handled by %s behind a bot challenge", res.Redirect.Hostname(),
		))
	}
	if res.Status == http.StatusMethodNotAllowed {
		return nil, cookies, errs.LoginUnsupported("the forum answered with a bot challenge")
	}
	if res.Status < 200 || res.Status >= 300 {
		return nil, cookies, errs.TransportStatus(res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, cookies, errs.Parse("login", err.Error())
	}
	doc.Url = res.Url
	if doc.Url == nil {
		doc.Url = c.opts.BaseUrl
	}
	if extract.ClassifyPage(doc) == extract.PageChallenge {
		return nil, cookies, errs.LoginUnsupported("the forum answered with a bot challenge")
	}
	return doc, cookies, nil
}

// Login tries to sign in with a username and password. The forum normally
// sends sign in through a CAPTCHA protected page, which is reported as a
// login_unsupported error, loading captured cookies is the way in. On
// success the session is replaced with the cookies the forum issued. The
// credentials are not kept.
func (c *Client) Login(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return errs.InvalidInput("username and password are required")
	}

	err := c.login(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		span.SetAttributes(attribute.String("kind", string(errs.KindOf(err))))
		slog.WarnContext(ctx, "forum login failed", "kind", errs.KindOf(err), "err", err)
		return err
	}
	slog.InfoContext(ctx, "logged in to forum", "cookies", len(c.store.Cookies()))
	return nil
}

func (c *Client) login(ctx context.Context, username, password string) error {
	landing := core.Request{Path: ForumPath, Query: c.forumQuery()}

	doc, cookies, err := c.loginStep(ctx, landing, nil)
	if err != nil {
		return err
	}

	switch extract.ClassifyPage(doc) {
	case extract.PageLoggedIn:
		return c.acceptLogin(cookies)
	case extract.PageLoginForm:
	default:
		return errs.LoginUnsupported("the forum did not show a sign in form")
	}

	form, ok := extract.FindLoginForm(doc)
	if !ok {
		return errs.LoginUnsupported("the sign in form has no username or password field")
	}
	action, err := url.Parse(form.Action)
	if err != nil || !core.SameOrigin(c.opts.BaseUrl, action) {
		return errs.LoginUnsupported("the sign in form posts to another site")
	}

	fields := url.Values{}
	for name, value := range form.Hidden {
		fields.Set(name, value)
	}
	fields.Set(form.UsernameField, username)
	fields.Set(form.PasswordField, password)

	method := http.MethodPost
	if form.Method == http.MethodGet {
		method = http.MethodGet
	}
	submit := core.Request{Method: method, Path: action.String()}
	if method == http.MethodGet {
		submit.Query = fields
	} else {
		submit.Form = fields
	}

	doc, cookies, err = c.loginStep(ctx, submit, cookies)
	if err != nil {
		return err
	}
	if extract.ClassifyPage(doc) != extract.PageLoggedIn {
		// some forms answer with a bare confirmation page, look again
		doc, cookies, err = c.loginStep(ctx, landing, cookies)
		if err != nil {
			return err
		}
	}

	switch extract.ClassifyPage(doc) {
	case extract.PageLoggedIn:
		return c.acceptLogin(cookies)
	case extract.PageLoginForm:
		return errs.LoginFailed("the forum showed the sign in form again")
	default:
		return errs.LoginFailed("the forum did not show a signed in page")
	}
}

func (c *Client) acceptLogin(cookies []*http.Cookie) error {
	c.store.Replace(cookies)
	if !c.store.IsAuthenticated() {
		return errs.LoginFailed("the forum did not issue a session cookie")
	}
	return nil
}
