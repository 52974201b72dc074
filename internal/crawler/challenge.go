package crawler

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ChallengeSignal identifies why a 200 response is not real content.
type ChallengeSignal string

const (
	ChallengeNone       ChallengeSignal = ""
	ChallengeCloudflare ChallengeSignal = "cloudflare"
	ChallengeCaptcha    ChallengeSignal = "captcha"
	ChallengeBlocked    ChallengeSignal = "blocked"
	ChallengeJSRequired ChallengeSignal = "javascript_required"
	ChallengeEmpty      ChallengeSignal = "empty_content"
)

// ChallengeError reports a page that answered 200 but served a bot
// challenge or JS shell instead of documentation.
type ChallengeError struct {
	URL    string
	Signal ChallengeSignal
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge page at %s: %s", e.URL, e.Signal)
}

var (
	cloudflarePatterns = []string{
		"cf-browser-verification",
		"challenge-platform",
		"cf_chl_opt",
		"_cf_chl",
		"checking your browser",
		"just a moment...",
		"attention required! | cloudflare",
	}

	captchaPatterns = []string{
		"g-recaptcha",
		"h-captcha",
		"data-sitekey",
		"captcha-container",
		"cf-turnstile",
	}

	blockedPatterns = []string{
		"access to this page has been denied",
		"request blocked",
		"bot detected",
		"please verify you are human",
		"are you a robot",
	}

	// Empty SPA framework roots mean the content only exists after
	// client-side rendering, which this crawler does not do.
	spaRootRes = []*regexp.Regexp{
		regexp.MustCompile(`<div\s+id=["'](?:root|app|__next|__nuxt|react-root)["'][^>]*>\s*</div>`),
		regexp.MustCompile(`<app-root[^>]*>\s*</app-root>`),
	}
)

// detectChallenge inspects a successful response for bot-protection
// challenge pages and JS-only shells. Returns ChallengeNone for pages
// that look like real content.
func detectChallenge(header http.Header, body []byte) ChallengeSignal {
	if len(body) == 0 {
		return ChallengeEmpty
	}

	if header.Get("cf-mitigated") == "challenge" {
		return ChallengeCloudflare
	}

	lower := strings.ToLower(string(body))

	for _, p := range cloudflarePatterns {
		if strings.Contains(lower, p) {
			return ChallengeCloudflare
		}
	}
	for _, p := range captchaPatterns {
		if strings.Contains(lower, p) {
			return ChallengeCaptcha
		}
	}
	for _, p := range blockedPatterns {
		if strings.Contains(lower, p) {
			return ChallengeBlocked
		}
	}
	for _, re := range spaRootRes {
		if re.MatchString(lower) {
			return ChallengeJSRequired
		}
	}

	return ChallengeNone
}
