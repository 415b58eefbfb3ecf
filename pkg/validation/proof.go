// Copyright 2025 Ditto Network
//
// Package validation implements C10: the HTTP service that re-simulates
// a peer's proposed user operation and approves or rejects it.

package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// proofOfTaskMinMs / proofOfTaskMaxMs bound the plausible range for the
// embedded epoch-millisecond timestamp: comfortably before this system
// could have been deployed, and comfortably beyond any reasonable
// schedule horizon. A value outside this range is almost certainly a
// seconds-vs-milliseconds mixup from the caller (§9 "ambiguous source
// behavior").
const (
	proofOfTaskMinMs = 1577836800000  // 2020-01-01T00:00:00Z
	proofOfTaskMaxMs = 4102444800000  // 2100-01-01T00:00:00Z
)

// ProofOfTask is the decoded form of the request's proofOfTask string:
// "<contentHash>_<nextSimulationTimeEpochMs>_<chainId>". Any additional
// underscore-separated segments are ignored.
type ProofOfTask struct {
	ContentHash        string
	NextSimulationTime time.Time
	ChainID            string
}

// ParseProofOfTask validates the shape and plausibility of raw.
func ParseProofOfTask(raw string) (ProofOfTask, error) {
	parts := strings.Split(raw, "_")
	if len(parts) < 3 {
		return ProofOfTask{}, fmt.Errorf("validation: proofOfTask must have at least 3 underscore-separated segments")
	}

	contentHash, tsRaw, chainID := parts[0], parts[1], parts[2]
	if contentHash == "" || chainID == "" {
		return ProofOfTask{}, fmt.Errorf("validation: proofOfTask missing contentHash or chainId")
	}

	ms, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return ProofOfTask{}, fmt.Errorf("validation: proofOfTask timestamp is not an integer: %w", err)
	}
	if ms < proofOfTaskMinMs || ms > proofOfTaskMaxMs {
		return ProofOfTask{}, fmt.Errorf("validation: proofOfTask timestamp %d is not a plausible epoch-millisecond value", ms)
	}

	return ProofOfTask{
		ContentHash:        contentHash,
		NextSimulationTime: time.UnixMilli(ms),
		ChainID:            chainID,
	}, nil
}
