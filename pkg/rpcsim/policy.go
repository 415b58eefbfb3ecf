// Copyright 2025 Ditto Network

package rpcsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// methodPolicyFile is the on-disk shape of an optional whitelist override.
// Operators can add methods to the built-in set (e.g. a chain-specific
// trace_* method needed by one workflow) without a code change, but they
// cannot remove from it — the baked-in set stays the floor.
type methodPolicyFile struct {
	AllowMethods []string `yaml:"allow_methods"`
}

// loadMethodPolicy reads a YAML policy file and returns the extra methods
// it allows. A missing path is not an error: the built-in whitelist alone
// is a complete, valid policy.
func loadMethodPolicy(path string) (map[string]bool, error) {
	extra := make(map[string]bool)
	if path == "" {
		return extra, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return extra, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rpcsim: read method policy %s: %w", path, err)
	}
	var pf methodPolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("rpcsim: parse method policy %s: %w", path, err)
	}
	for _, m := range pf.AllowMethods {
		extra[m] = true
	}
	return extra, nil
}
