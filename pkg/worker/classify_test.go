// Copyright 2025 Ditto Network

package worker

import (
	"strings"
	"testing"
)

func TestIsCancelWorthyRequiresBothSubstrings(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"AA23 reverted (or OOG) 0xc48cf8ee", true},
		{"AA23 reverted for some other reason", false},
		{"generic revert 0xc48cf8ee", false},
		{"execution reverted: out of gas", false},
	}
	for _, c := range cases {
		if got := isCancelWorthy(c.msg); got != c.want {
			t.Errorf("isCancelWorthy(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestSummarizeErrorKnownPatterns(t *testing.T) {
	if got := summarizeError("insufficient funds for gas * price + value"); got != "insufficient funds for execution" {
		t.Errorf("got %q", got)
	}
	if got := summarizeError("context deadline exceeded while calling eth_call"); got != "upstream timeout" {
		t.Errorf("got %q", got)
	}
}

func TestSummarizeErrorFallbackTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := summarizeError(long)
	if len(got) != maxSummaryLen+len("…") {
		t.Errorf("len(got) = %d, want %d", len(got), maxSummaryLen+len("…"))
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("expected ellipsis suffix")
	}
}

func TestSummarizeErrorShortMessagePassesThrough(t *testing.T) {
	if got := summarizeError("short"); got != "short" {
		t.Errorf("got %q", got)
	}
}
