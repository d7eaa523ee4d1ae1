// Package errs defines the failure kinds surfaced by the forum scraper.
//
// Every failure carries a stable machine readable Kind, a human readable
// Message and, where one exists, an Action telling the operator what to do
// about it.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotAuthenticated Kind = "not_authenticated"
	KindSessionExpired   Kind = "session_expired"
	KindParse            Kind = "parse_error"
	KindTransport        Kind = "transport_error"
	KindLoginUnsupported Kind = "login_unsupported"
	KindLoginFailed      Kind = "login_failed"
	KindSessionLoad      Kind = "session_load_error"
	// KindInternal is never constructed directly, it is what KindOf reports
	// for errors that did not come from this package.
	KindInternal Kind = "internal_error"
)

// refreshCookies is the guidance shared by every kind that is fixed by
// capturing a new cookie bundle.
const refreshCookies = "Run the cookie capture tool to log in through a browser, then restart or reload the server."

type Error struct {
	Kind    Kind
	Message string
	Action  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err,
// &Error{Kind: KindParse}) works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf(format, args...),
		Action:  "Fix the request arguments and call again.",
	}
}

func NotAuthenticated() *Error {
	return &Error{
		Kind:    KindNotAuthenticated,
		Message: "no forum session is loaded",
		Action:  refreshCookies,
	}
}

func SessionExpired(reason string) *Error {
	return &Error{
		Kind:    KindSessionExpired,
		Message: fmt.Sprintf("the forum session is no longer valid (%s)", reason),
		Action:  refreshCookies,
	}
}

func Parse(page, reason string) *Error {
	return &Error{
		Kind:    KindParse,
		Message: fmt.Sprintf("unexpected %s page structure: %s", page, reason),
		Action:  "The forum layout has probably changed, the extractors need updating.",
	}
}

func Transport(err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: "request to the forum failed",
		Action:  "This is usually transient, try again later.",
		Err:     err,
	}
}

func TransportStatus(status int) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("forum responded with HTTP %d", status),
		Action:  "This is usually transient, try again later.",
	}
}

func LoginUnsupported(reason string) *Error {
	return &Error{
		Kind:    KindLoginUnsupported,
		Message: fmt.Sprintf("automated login is not possible: %s", reason),
		Action:  refreshCookies,
	}
}

func LoginFailed(reason string) *Error {
	return &Error{
		Kind:    KindLoginFailed,
		Message: fmt.Sprintf("login was rejected: %s", reason),
		Action:  "Check the username and password.",
	}
}

func SessionLoad(reason string, err error) *Error {
	return &Error{
		Kind:    KindSessionLoad,
		Message: fmt.Sprintf("could not load cookie bundle: %s", reason),
		Action:  refreshCookies,
		Err:     err,
	}
}
