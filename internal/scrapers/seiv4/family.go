// Package seiv4 implements the scraper line for the v4 interface of the
// upstream portal. Version-specific packages embed Base and override what
// their release changed.
package seiv4

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
	"github.com/conectasei/conectasei/internal/services/browser"
)

var linkIDRe = regexp.MustCompile(`id_procedimento_externo=([^&]+)`)

// NormalizeLink extracts the stable link ID from a full process href.
// Returns the empty string when the href carries no ID.
func NormalizeLink(href string) string {
	m := linkIDRe.FindStringSubmatch(href)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Base carries the behavior shared across the v4 line.
type Base struct {
	Logger arbor.ILogger
}

// Family identifies the v4 line.
func (b *Base) Family() string {
	return "sei_v4"
}

// Login fills the external-access login form and verifies the session.
func (b *Base) Login(s interfaces.Session, baseURL string, creds models.Credentials) error {
	if err := browser.Navigate(s, baseURL); err != nil {
		return err
	}

	err := chromedp.Run(s.Ctx(),
		chromedp.WaitVisible(LoginSelectors.EmailInput, chromedp.ByQuery),
		chromedp.SendKeys(LoginSelectors.EmailInput, creds.Email, chromedp.ByQuery),
		chromedp.SendKeys(LoginSelectors.PasswordInput, creds.Password, chromedp.ByQuery),
		chromedp.Click(LoginSelectors.SubmitButton, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: submitting login form: %v", models.ErrNavigation, err)
	}

	var errText string
	if err := chromedp.Run(s.Ctx(), EvalText(LoginSelectors.ErrorMessage, &errText)); err != nil {
		return fmt.Errorf("%w: checking login result: %v", models.ErrNavigation, err)
	}
	if strings.TrimSpace(errText) != "" {
		return fmt.Errorf("%w: %s", models.ErrAuth, strings.TrimSpace(errText))
	}

	var loggedIn bool
	if err := chromedp.Run(s.Ctx(), EvalPresent(LoggedInSelector, &loggedIn)); err != nil {
		return fmt.Errorf("%w: verifying login: %v", models.ErrNavigation, err)
	}
	if !loggedIn {
		return fmt.Errorf("%w: login verification failed", models.ErrAuth)
	}
	return nil
}

// OpenProcess navigates to the external view of a process by link ID.
func (b *Base) OpenProcess(s interfaces.Session, linkID string) error {
	var origin string
	if err := chromedp.Run(s.Ctx(), chromedp.Evaluate("window.location.origin", &origin)); err != nil {
		return fmt.Errorf("%w: reading page origin: %v", models.ErrNavigation, err)
	}
	url := origin + ProcessViewPath + linkID

	if err := browser.Navigate(s, url); err != nil {
		return err
	}

	// A dead link lands on an error page with no breadcrumb.
	var present bool
	if err := chromedp.Run(s.Ctx(), EvalPresent(ProcessSelectors.Breadcrumb, &present)); err != nil {
		return fmt.Errorf("%w: checking process view: %v", models.ErrNavigation, err)
	}
	if !present {
		return fmt.Errorf("%w: process view did not load for link %s", models.ErrNavigation, linkID)
	}
	return nil
}

// ClassifyAccess reads the breadcrumb and maps its phrasing to an access
// type. An unrecognized breadcrumb classifies as error.
func (b *Base) ClassifyAccess(s interfaces.Session) (interfaces.AccessKind, error) {
	var text string
	if err := chromedp.Run(s.Ctx(), EvalText(ProcessSelectors.Breadcrumb, &text)); err != nil {
		return interfaces.AccessKind{}, fmt.Errorf("%w: reading breadcrumb: %v", models.ErrNavigation, err)
	}

	kind := interfaces.AccessKind{Access: models.AccessError, Detail: strings.TrimSpace(text)}
	for _, kw := range IntegralKeywords {
		if strings.Contains(text, kw) {
			kind.Access = models.AccessIntegral
			return kind, nil
		}
	}
	for _, kw := range PartialKeywords {
		if strings.Contains(text, kw) {
			kind.Access = models.AccessPartial
			return kind, nil
		}
	}
	return kind, nil
}

// ExtractAuthority reads the authority cell of the open process. The cell
// text is "UNIT - ROLE - Name"; the last segment is the authority.
func (b *Base) ExtractAuthority(s interfaces.Session) (string, error) {
	var text string
	if err := chromedp.Run(s.Ctx(), EvalText(ProcessSelectors.AuthorityLabel, &text)); err != nil {
		return "", fmt.Errorf("%w: reading authority: %v", models.ErrNavigation, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	parts := strings.Split(text, "-")
	switch {
	case len(parts) >= 3:
		return strings.TrimSpace(parts[2]), nil
	case len(parts) == 2:
		return strings.TrimSpace(parts[1]), nil
	default:
		return text, nil
	}
}

// EvalText reads the joined text content of the first element matching sel,
// or the empty string when nothing matches.
func EvalText(sel string, out *string) chromedp.Action {
	expr := fmt.Sprintf(
		`(function(){var e=document.querySelector(%q);return e?e.textContent:"";})()`, sel)
	return chromedp.Evaluate(expr, out)
}

// EvalPresent reports whether sel matches anything on the page.
func EvalPresent(sel string, out *bool) chromedp.Action {
	expr := fmt.Sprintf(
		`document.querySelector(%q) !== null`, sel)
	return chromedp.Evaluate(expr, out)
}
