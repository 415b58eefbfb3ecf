// Copyright 2025 Ditto Network

package validation

import "testing"

func TestParseProofOfTaskValid(t *testing.T) {
	pot, err := ParseProofOfTask("abc123_1735689600000_1")
	if err != nil {
		t.Fatalf("ParseProofOfTask: %v", err)
	}
	if pot.ContentHash != "abc123" || pot.ChainID != "1" {
		t.Errorf("got %+v", pot)
	}
}

func TestParseProofOfTaskIgnoresExtraSegments(t *testing.T) {
	pot, err := ParseProofOfTask("abc123_1735689600000_1_extra_stuff")
	if err != nil {
		t.Fatalf("ParseProofOfTask: %v", err)
	}
	if pot.ContentHash != "abc123" {
		t.Errorf("got %+v", pot)
	}
}

func TestParseProofOfTaskRejectsSecondsNotMillis(t *testing.T) {
	// A plausible 2025 date in SECONDS is far too small to be a plausible
	// millisecond timestamp, and should be rejected rather than silently
	// misinterpreted.
	if _, err := ParseProofOfTask("abc123_1735689600_1"); err == nil {
		t.Fatal("expected rejection of seconds-scale timestamp")
	}
}

func TestParseProofOfTaskRejectsMalformed(t *testing.T) {
	cases := []string{"", "onlyonepart", "two_parts", "hash__1", "hash_notanumber_1"}
	for _, c := range cases {
		if _, err := ParseProofOfTask(c); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}
