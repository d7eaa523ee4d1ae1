package extract

import (
	"regexp"
	"strings"

	"tscommunity/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type PageState string

const (
	PageLoggedIn  PageState = "logged_in"
	PageLoginForm PageState = "login_form"
	PageChallenge PageState = "challenge"
	PageUnknown   PageState = "unknown"
)

var signOutHref = regexp.MustCompile(`(?i)(sign|log)[-_]?(out|off)`)
var signOutText = regexp.MustCompile(`(?i)^(sign|log)\s*(out|off)$`)
var challengeScript = regexp.MustCompile(`(?i)awswaf|AwsWafIntegration|captcha\.js|challenge\.js`)

func isChallenge(doc *goquery.Document) bool {
	if doc.Find(".amzn-captcha-verify-button, #captcha-container, .amzn-captcha-modal").Length() > 0 {
		return true
	}
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if challengeScript.MatchString(s.AttrOr("src", "")) || challengeScript.MatchString(s.Text()) {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasSignOut(doc *goquery.Document) bool {
	return doc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return signOutHref.MatchString(a.AttrOr("href", "")) ||
			signOutText.MatchString(htmlutil.Text(a))
	}).Length() > 0
}

func passwordInputs(sel *goquery.Selection) *goquery.Selection {
	return sel.Find("input[type]").FilterFunction(func(_ int, input *goquery.Selection) bool {
		return strings.EqualFold(input.AttrOr("type", ""), "password")
	})
}

// ClassifyPage classifies a page by what the forum put in front of us. A bot
// challenge wins over everything else, a sign out link means the session
// was accepted.
func ClassifyPage(doc *goquery.Document) PageState {
	switch {
	case isChallenge(doc):
		return PageChallenge
	case hasSignOut(doc):
		return PageLoggedIn
	case passwordInputs(doc.Selection).Length() > 0:
		return PageLoginForm
	default:
		return PageUnknown
	}
}

type LoginForm struct {
	// absolute address the form posts to
	Action        string
	Method        string
	UsernameField string
	PasswordField string
	// hidden inputs (anti forgery tokens, view state) and the submit
	// button, to send back as is
	Hidden map[string]string
}

var usernameName = regexp.MustCompile(`(?i)user|login|email`)

// FindLoginForm reads the first form on the page that has a password input.
func FindLoginForm(doc *goquery.Document) (LoginForm, bool) {
	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return passwordInputs(f).Length() > 0
	}).First()
	if form.Length() == 0 {
		return LoginForm{}, false
	}

	out := LoginForm{
		Method: strings.ToUpper(form.AttrOr("method", "POST")),
		Hidden: map[string]string{},
	}
	if action := resolve(doc, form.AttrOr("action", "")); action != nil {
		out.Action = action.String()
	} else if doc.Url != nil {
		out.Action = doc.Url.String()
	}

	out.PasswordField = passwordInputs(form).First().AttrOr("name", "")

	submitted := false
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		kind := strings.ToLower(input.AttrOr("type", "text"))
		switch kind {
		case "hidden":
			out.Hidden[name] = input.AttrOr("value", "")
		case "submit":
			if !submitted {
				out.Hidden[name] = input.AttrOr("value", "")
				submitted = true
			}
		case "text", "email", "":
			if out.UsernameField == "" && usernameName.MatchString(name) {
				out.UsernameField = name
			}
		}
	})
	if out.UsernameField == "" {
		out.UsernameField = form.Find("input[name]").FilterFunction(func(_ int, input *goquery.Selection) bool {
			kind := strings.ToLower(input.AttrOr("type", "text"))
			return kind == "text" || kind == "email"
		}).First().AttrOr("name", "")
	}

	return out, out.PasswordField != "" && out.UsernameField != ""
}
