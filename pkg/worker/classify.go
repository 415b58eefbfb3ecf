// Copyright 2025 Ditto Network

package worker

import (
	"regexp"
	"strings"
)

// cancelSubstrings must BOTH appear in an error message for it to be
// classified cancel-worthy (§4.8, §7): the account-abstraction
// validator's single persistent-failure signature.
var cancelSubstrings = []string{"AA23 reverted", "0xc48cf8ee"}

// isCancelWorthy reports whether msg matches the sole cancel-worthy
// failure class. Every other error is report-and-continue.
func isCancelWorthy(msg string) bool {
	for _, s := range cancelSubstrings {
		if !strings.Contains(msg, s) {
			return false
		}
	}
	return true
}

// summaryPattern maps an ordered regex to its canonical short form. The
// first match wins; unmatched messages fall back to truncation.
type summaryPattern struct {
	re   *regexp.Regexp
	form string
}

var summaryPatterns = []summaryPattern{
	{regexp.MustCompile(`AA23 reverted.*0xc48cf8ee`), "AA23 reverted: signature expired or invalid"},
	{regexp.MustCompile(`(?i)insufficient funds`), "insufficient funds for execution"},
	{regexp.MustCompile(`(?i)gas required exceeds allowance|out of gas`), "out of gas"},
	{regexp.MustCompile(`(?i)nonce too low`), "nonce too low"},
	{regexp.MustCompile(`(?i)execution reverted`), "execution reverted"},
	{regexp.MustCompile(`(?i)context deadline exceeded|timeout`), "upstream timeout"},
	{regexp.MustCompile(`(?i)connection refused|dial tcp|no such host`), "upstream unreachable"},
}

const maxSummaryLen = 200

// summarizeError reduces a raw error message to a canonical short form,
// or truncates to maxSummaryLen characters with an ellipsis if nothing
// matches (§4.8 "Error summarization").
func summarizeError(msg string) string {
	for _, p := range summaryPatterns {
		if p.re.MatchString(msg) {
			return p.form
		}
	}
	if len(msg) <= maxSummaryLen {
		return msg
	}
	return msg[:maxSummaryLen] + "…"
}
