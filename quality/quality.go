// Package quality implements the content sufficiency judge: a pure
// function applied after every escalation attempt to decide whether the
// returned body is worth keeping or whether the ladder should continue.
//
// Grounded on no single precedent — none of the corpus's scrapers carry
// a content-sufficiency judge of their own. Deliberately stays on regexp
// rather than a DOM parser: the rules run on raw, pre-parse HTML to decide
// whether the body is even worth parsing, so pulling in a parser here would
// mean parsing content the judge is about to reject.
package quality

import (
	"regexp"
	"strings"
)

var (
	textBearingElement = regexp.MustCompile(`(?i)<(p|h[1-6]|li|td|span|a|div)[^>]*>[^<]{10,}`)

	spaShellContainer = regexp.MustCompile(`(?i)<div\s+id\s*=\s*["'](root|app|__next|__nuxt)["']`)
	bodyThenNoscript  = regexp.MustCompile(`(?i)<body[^>]*>\s*<noscript`)

	structuralElement = regexp.MustCompile(`(?i)<(table|ul|ol|article|section|main|header)[^>]*>`)
)

// blockedStatus are status codes that never carry usable content regardless
// of body shape — anti-bot challenge and rate-limit responses.
var blockedStatus = map[int]bool{403: true, 429: true, 503: true}

// Sufficient decides whether content fetched with the given HTTP status is
// good enough to stop escalating, per the rule table below (evaluated in
// order, first match wins):
//
//  1. status in {403, 429, 503} -> insufficient.
//  2. len(content) < 500 -> insufficient.
//  3. an empty-SPA-shell pattern present and len(content) < 2000 -> insufficient.
//  4. >= 3 text-bearing elements and len(content) >= 1000 -> sufficient.
//  5. len(content) > 5000 -> sufficient.
//  6. a structural element (table/ul/ol/article/section/main/header) present -> sufficient.
//  7. otherwise -> sufficient (it already passed the shell check at rule 3).
func Sufficient(content string, statusCode int) bool {
	if blockedStatus[statusCode] {
		return false
	}

	length := len(content)
	if length < 500 {
		return false
	}

	if isEmptySPAShell(content) && length < 2000 {
		return false
	}

	if length >= 1000 && countTextBearingElements(content) >= 3 {
		return true
	}

	if length > 5000 {
		return true
	}

	if structuralElement.MatchString(content) {
		return true
	}

	return true
}

func isEmptySPAShell(content string) bool {
	return spaShellContainer.MatchString(content) || bodyThenNoscript.MatchString(content)
}

func countTextBearingElements(content string) int {
	matches := textBearingElement.FindAllStringIndex(content, 4)
	return len(matches)
}

// reason explains (for logging) which rule decided the verdict; not part of
// the pure contract but useful at call sites that log escalation steps.
func reason(content string, statusCode int) string {
	switch {
	case blockedStatus[statusCode]:
		return "blocked status"
	case len(content) < 500:
		return "too short"
	case isEmptySPAShell(content) && len(content) < 2000:
		return "empty SPA shell"
	case len(content) >= 1000 && countTextBearingElements(content) >= 3:
		return "text-bearing elements"
	case len(content) > 5000:
		return "long body"
	case structuralElement.MatchString(content):
		return "structural element"
	default:
		return "passed shell check"
	}
}

// Reason returns a short label for why Sufficient returned the value it did,
// used by the escalation scheduler's structured log lines.
func Reason(content string, statusCode int) string {
	return strings.TrimSpace(reason(content, statusCode))
}
