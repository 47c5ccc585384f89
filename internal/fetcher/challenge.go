package fetcher

import "strings"

// ChallengeKind identifies the bot-check a page is showing.
type ChallengeKind string

const (
	ChallengeReCaptcha ChallengeKind = "recaptcha"
	ChallengeHCaptcha  ChallengeKind = "hcaptcha"
	ChallengeTurnstile ChallengeKind = "turnstile"
	ChallengeTraffic   ChallengeKind = "unusual_traffic"
)

// Challenge describes a detected bot-check.
type Challenge struct {
	Kind    ChallengeKind
	SiteKey string
}

// DetectChallenge checks markup for common bot-check indicators.
func DetectChallenge(html string) (Challenge, bool) {
	lower := strings.ToLower(html)

	switch {
	case strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "recaptcha/api.js"):
		return Challenge{Kind: ChallengeReCaptcha, SiteKey: extractBetween(html, `data-sitekey="`, `"`)}, true
	case strings.Contains(lower, "h-captcha") || strings.Contains(lower, "hcaptcha.com/1/api.js"):
		return Challenge{Kind: ChallengeHCaptcha, SiteKey: extractBetween(html, `data-sitekey="`, `"`)}, true
	case strings.Contains(lower, "cf-turnstile") || strings.Contains(lower, "challenges.cloudflare.com"):
		return Challenge{Kind: ChallengeTurnstile, SiteKey: extractBetween(html, `data-sitekey="`, `"`)}, true
	}

	// Scholar's own interstitials.
	for _, marker := range []string{
		"gs_captcha_ccl",
		"id=\"gs_captcha_f\"",
		"unusual traffic from your computer network",
		"please show you're not a robot",
		"/sorry/index",
	} {
		if strings.Contains(lower, marker) {
			return Challenge{Kind: ChallengeTraffic}, true
		}
	}
	return Challenge{}, false
}

// extractBetween extracts a substring between two delimiters.
func extractBetween(s, start, end string) string {
	idx := strings.Index(s, start)
	if idx < 0 {
		return ""
	}
	s = s[idx+len(start):]
	idx = strings.Index(s, end)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}
