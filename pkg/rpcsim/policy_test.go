// Copyright 2025 Ditto Network

package rpcsim

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMethodPolicyMissingPathIsEmpty(t *testing.T) {
	extra, err := loadMethodPolicy("")
	if err != nil {
		t.Fatalf("loadMethodPolicy: %v", err)
	}
	if len(extra) != 0 {
		t.Errorf("expected no extra methods, got %v", extra)
	}
}

func TestLoadMethodPolicyNonexistentFileIsEmpty(t *testing.T) {
	extra, err := loadMethodPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadMethodPolicy: %v", err)
	}
	if len(extra) != 0 {
		t.Errorf("expected no extra methods, got %v", extra)
	}
}

func TestLoadMethodPolicyAddsMethods(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "allow_methods:\n  - trace_call\n  - eth_getLogs\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	extra, err := loadMethodPolicy(path)
	if err != nil {
		t.Fatalf("loadMethodPolicy: %v", err)
	}
	if !extra["trace_call"] || !extra["eth_getLogs"] {
		t.Errorf("expected both extras present, got %v", extra)
	}
}

func TestMethodAllowedMergesBuiltinAndExtra(t *testing.T) {
	s := &Simulator{extraMethods: map[string]bool{"trace_call": true}}
	if !s.methodAllowed("eth_blockNumber") {
		t.Error("built-in method should remain allowed")
	}
	if !s.methodAllowed("trace_call") {
		t.Error("extra method should be allowed")
	}
	if s.methodAllowed("eth_sendRawTransaction") {
		t.Error("signing method must never be allowed")
	}
}
