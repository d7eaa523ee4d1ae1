// Package session holds the forum's authentication cookies.
//
// A Store is either empty (unauthenticated) or holds at least one cookie
// scoped to the forum host (authenticated until a request proves otherwise).
// It is owned by a single forum client and is not safe for concurrent use.
package session

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"tscommunity/lib/scrapers/tscommunity/errs"
)

type Store struct {
	host      string
	cookies   []*http.Cookie
	lastValid time.Time
	now       func() time.Time
}

func New(baseUrl *url.URL) *Store {
	return &Store{
		host: strings.ToLower(baseUrl.Hostname()),
		now:  time.Now,
	}
}

// Host is the domain scope of the session.
func (s *Store) Host() string {
	return s.host
}

// IsAuthenticated only says that cookies are present, the server has the
// final say on whether they still work.
func (s *Store) IsAuthenticated() bool {
	return len(s.cookies) > 0
}

func (s *Store) Invalidate() {
	s.cookies = nil
	s.lastValid = time.Time{}
}

// Cookies returns a copy of the current cookies, callers may not mutate the
// store through it.
func (s *Store) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.cookies))
	for i, c := range s.cookies {
		copied := *c
		out[i] = &copied
	}
	return out
}

func (s *Store) LastValid() time.Time {
	return s.lastValid
}

// MarkValid records that a request made with the current cookies was
// answered as a logged in user.
func (s *Store) MarkValid(t time.Time) {
	if !s.IsAuthenticated() {
		return
	}
	s.lastValid = t
}

// Replace swaps in a new cookie set, this is the login transition. Cookies
// outside of the session's domain scope are dropped.
func (s *Store) Replace(cookies []*http.Cookie) {
	var scoped []*http.Cookie
	for _, c := range cookies {
		if c.Name == "" || c.MaxAge < 0 || !s.inScope(c.Domain) {
			continue
		}
		copied := *c
		scoped = append(scoped, &copied)
	}
	s.cookies = scoped
	s.lastValid = time.Time{}
	if len(scoped) > 0 {
		s.lastValid = s.now()
	}
}

// Merge applies Set-Cookie updates from a response. It refreshes or removes
// existing cookies and adds new ones, but never authenticates an empty store.
func (s *Store) Merge(updates []*http.Cookie) {
	if !s.IsAuthenticated() {
		return
	}
	for _, u := range updates {
		if u.Name == "" || !s.inScope(u.Domain) {
			continue
		}
		idx := -1
		for i, c := range s.cookies {
			if c.Name == u.Name {
				idx = i
				break
			}
		}
		expired := u.MaxAge < 0 || (!u.Expires.IsZero() && u.Expires.Before(s.now()))
		switch {
		case idx >= 0 && expired:
			s.cookies = append(s.cookies[:idx], s.cookies[idx+1:]...)
		case idx >= 0:
			s.cookies[idx].Value = u.Value
			if !u.Expires.IsZero() {
				s.cookies[idx].Expires = u.Expires
			}
		case !expired:
			copied := *u
			s.cookies = append(s.cookies, &copied)
		}
	}
}

func (s *Store) inScope(domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if domain == "" {
		return true
	}
	return s.host == domain || strings.HasSuffix(s.host, "."+domain)
}

// LoadFile reads a cookie bundle from disk, see Load.
func (s *Store) LoadFile(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.SessionLoad("no cookie bundle at "+path, err)
		}
		return errs.SessionLoad("failed to read "+path, err)
	}
	return s.Load(bytes.NewReader(contents))
}

// Load replaces the session with the cookies of a serialized bundle. On any
// error the store is left exactly as it was.
func (s *Store) Load(r io.Reader) error {
	contents, err := io.ReadAll(r)
	if err != nil {
		return errs.SessionLoad("failed to read bundle", err)
	}
	records, err := decodeBundle(contents)
	if err != nil {
		return err
	}

	now := s.now()
	var scoped []*http.Cookie
	for _, rec := range records {
		c := rec.toCookie()
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		if !s.inScope(c.Domain) {
			continue
		}
		scoped = append(scoped, c)
	}
	if len(scoped) == 0 {
		return errs.SessionLoad("bundle has no unexpired cookies for "+s.host, nil)
	}

	s.cookies = scoped
	s.lastValid = now
	return nil
}
