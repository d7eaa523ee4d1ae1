package session

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"time"

	"tscommunity/lib/scrapers/tscommunity/errs"

	"github.com/titanous/json5"
)

// bundleCookie is one record of a browser cookie export. The field names
// follow what the capture tool writes (a Playwright context.cookies() dump),
// expires is seconds since the epoch and -1 for session cookies.
type bundleCookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  *float64 `json:"expires"`
	HttpOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite string   `json:"sameSite"`
}

func (b bundleCookie) toCookie() *http.Cookie {
	c := &http.Cookie{
		Name:     b.Name,
		Value:    b.Value,
		Domain:   b.Domain,
		Path:     b.Path,
		HttpOnly: b.HttpOnly,
		Secure:   b.Secure,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if b.Expires != nil && *b.Expires > 0 {
		sec, frac := math.Modf(*b.Expires)
		c.Expires = time.Unix(int64(sec), int64(frac*1e9))
	}
	switch b.SameSite {
	case "Strict":
		c.SameSite = http.SameSiteStrictMode
	case "Lax":
		c.SameSite = http.SameSiteLaxMode
	case "None":
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// decodeBundle accepts either a bare array of cookie records or a storage
// state object with a "cookies" array.
func decodeBundle(contents []byte) ([]bundleCookie, error) {
	trimmed := bytes.TrimSpace(contents)
	if len(trimmed) == 0 {
		return nil, errs.SessionLoad("bundle is empty", nil)
	}

	var records []bundleCookie
	switch trimmed[0] {
	case '[':
		err := json5.Unmarshal(trimmed, &records)
		if err != nil {
			return nil, errs.SessionLoad("bundle is not a cookie list", err)
		}
	case '{':
		var state struct {
			Cookies []bundleCookie `json:"cookies"`
		}
		err := json5.Unmarshal(trimmed, &state)
		if err != nil {
			return nil, errs.SessionLoad("bundle is not a storage state object", err)
		}
		if state.Cookies == nil {
			return nil, errs.SessionLoad("storage state has no cookies field", nil)
		}
		records = state.Cookies
	default:
		return nil, errs.SessionLoad("bundle is not json", nil)
	}

	for i, rec := range records {
		if rec.Name == "" {
			return nil, errs.SessionLoad(fmt.Sprintf("cookie #%d has no name", i), nil)
		}
	}
	return records, nil
}
