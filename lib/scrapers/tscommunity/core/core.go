package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tscommunity/lib/restyutil"
	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	BaseUrl   string
	UserAgent string
	// per attempt, retries get their own timeout
	Timeout time.Duration
	// minimum time between the start of any two requests made through the
	// transport, retries included
	MinInterval  time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// raw exchanges are written here when debug logging is on, may be nil
	DumpOutput restyutil.InstrumentOutput
}

type Request struct {
	Method string
	// either a path relative to the base url or an absolute url on the
	// forum's host
	Path  string
	Query url.Values
	Form  url.Values
}

type Response struct {
	Status int
	Body   []byte
	// the url that produced this response, after any same host redirects
	Url *url.URL
	// set when the forum tried to send us to another host (usually the
	// sign in page), the redirect is not followed
	Redirect *url.URL
	// every cookie set while producing this response, redirects included
	Cookies []*http.Cookie

	raw *http.Response
}

// Transport is the only thing that talks to the forum. It holds no session
// state, cookies are handed in with every request.
type Transport struct {
	BaseUrl *url.URL
	Http    *resty.Client
	limiter *rate.Limiter
}

func NewTransport(opts Options) (*Transport, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, errors.New("base url must be absolute")
	}
	if opts.MinInterval <= 0 {
		return nil, errors.New("min interval must be positive")
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}

	t := &Transport{
		BaseUrl: baseUrl,
		// a burst of one means two grants are never closer than the interval,
		// no matter how long the transport sat idle
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(baseUrl.String(), "/"))
	client.SetTimeout(opts.Timeout)
	client.SetHeaders(map[string]string{
		"user-agent":      opts.UserAgent,
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.5",
	})
	// cookies only ever come from the caller, a jar would keep a session
	// alive after it was invalidated
	client.SetCookieJar(nil)
	// redirects are followed in Do so that cookies set along the way are
	// seen by the caller
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	client.SetRetryCount(opts.RetryCount)
	if opts.RetryWait > 0 {
		client.SetRetryWaitTime(opts.RetryWait)
	}
	if opts.RetryMaxWait > 0 {
		client.SetRetryMaxWaitTime(opts.RetryMaxWait)
	}
	client.AddRetryCondition(retryOnNetworkError)

	// the limiter has to be the first hook so that every attempt, including
	// ones that end up failing, waits its turn
	client.OnBeforeRequest(t.waitTurn)
	telemetry.InstrumentResty(client, "scrapers/tscommunity/http")
	restyutil.InstrumentClient(client, opts.DumpOutput)

	t.Http = client
	return t, nil
}

func (t *Transport) waitTurn(_ *resty.Client, req *resty.Request) error {
	err := t.limiter.Wait(req.Context())
	if err != nil {
		return err
	}
	attempts.Add(req.Context(), 1, metric.WithAttributes(
		attribute.String("method", req.Method),
	))
	return nil
}

// only failures to get a response at all are retried, any status code the
// forum sends back goes to the caller untouched
func retryOnNetworkError(_ *resty.Response, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

const maxRedirects = 10

// Do sends a request, retrying on network failures and following redirects
// that stay on the forum's origin. Absolute urls on any other origin are
// refused before anything is sent. Any response the forum sends back is
// returned regardless of status.
func (t *Transport) Do(ctx context.Context, req Request, cookies []*http.Cookie) (Response, error) {
	ctx, span := tracer.Start(ctx, "transport:Do")
	defer span.End()

	if link, err := url.Parse(req.Path); err == nil && link.IsAbs() && !t.SameOrigin(link) {
		span.SetStatus(codes.Error, "request outside the forum's origin")
		return Response{}, errs.InvalidInput("refusing to request %s, only %s is allowed", link.Redacted(), t.BaseUrl.Redacted())
	}

	sent := MergeCookies(nil, cookies)
	var received []*http.Cookie

	for hop := 0; ; hop++ {
		res, err := t.execute(ctx, req, sent)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
			return Response{}, errs.Transport(err)
		}
		received = MergeCookies(received, res.Cookies)
		res.Cookies = received

		if res.Status < 300 || res.Status >= 400 {
			return res, nil
		}
		location, err := res.location()
		if err != nil {
			return res, nil
		}
		// a redirect to another scheme or port is treated like one to another
		// host, the session cookies must not follow it
		if !t.SameOrigin(location) {
			res.Redirect = location
			return res, nil
		}
		if hop >= maxRedirects {
			err := fmt.Errorf("stopped after %d redirects", maxRedirects)
			span.SetStatus(codes.Error, err.Error())
			return Response{}, errs.Transport(err)
		}

		next := Request{Method: http.MethodGet, Path: location.String()}
		if res.Status == http.StatusTemporaryRedirect || res.Status == http.StatusPermanentRedirect {
			next.Method = req.Method
			next.Form = req.Form
		}
		req = next
		sent = MergeCookies(sent, res.Cookies)
	}
}

func (t *Transport) execute(ctx context.Context, req Request, cookies []*http.Cookie) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := t.Http.R().
		SetContext(ctx).
		SetCookies(liveCookies(cookies))
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Form != nil {
		r.SetFormDataFromValues(req.Form)
	}

	res, err := r.Execute(method, req.Path)
	if err != nil {
		return Response{}, err
	}

	out := Response{
		Status:  res.StatusCode(),
		Body:    res.Body(),
		Cookies: res.Cookies(),
		raw:     res.RawResponse,
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		out.Url = res.RawResponse.Request.URL
	}

	responses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("status", out.Status),
	))
	return out, nil
}

func (r Response) location() (*url.URL, error) {
	if r.raw == nil {
		return nil, http.ErrNoLocation
	}
	return r.raw.Location()
}

// MergeCookies applies updates to base by name, later values win. Neither
// slice is modified.
func MergeCookies(base, updates []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(base)+len(updates))
	index := map[string]int{}
	for _, list := range [][]*http.Cookie{base, updates} {
		for _, c := range list {
			if c == nil || c.Name == "" {
				continue
			}
			if i, ok := index[c.Name]; ok {
				out[i] = c
				continue
			}
			index[c.Name] = len(out)
			out = append(out, c)
		}
	}
	return out
}

// liveCookies drops the cookies a server has asked to be deleted.
func liveCookies(cookies []*http.Cookie) []*http.Cookie {
	now := time.Now()
	var out []*http.Cookie
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SameOrigin reports whether link points at the forum.
func (t *Transport) SameOrigin(link *url.URL) bool {
	return SameOrigin(t.BaseUrl, link)
}

// SameOrigin reports whether a and b share scheme, host and port. A missing
// port is the scheme's default.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}
