// Copyright 2025 Ditto Network

package rpcsim

import (
	"context"
	"encoding/json"
	"testing"
)

// The generic go-ethereum rpc.Client cannot be constructed without a live
// dialer, so the whitelist and envelope checks — the parts that do not
// require a network round trip — are exercised directly here.

func TestMethodWhitelist(t *testing.T) {
	cases := []struct {
		method  string
		allowed bool
	}{
		{"eth_blockNumber", true},
		{"eth_call", true},
		{"web3_clientVersion", true},
		{"eth_sendRawTransaction", false},
		{"eth_sign", false},
		{"personal_sendTransaction", false},
	}
	for _, c := range cases {
		if allowedMethods[c.method] != c.allowed {
			t.Errorf("allowedMethods[%q] = %v, want %v", c.method, allowedMethods[c.method], c.allowed)
		}
	}
}

func TestDispatchInvalidEnvelope(t *testing.T) {
	s := &Simulator{}
	resp := s.Dispatch(context.Background(), Request{Method: "eth_blockNumber"}, "")
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest, got %+v", resp.Error)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	s := &Simulator{}
	resp := s.Dispatch(context.Background(), Request{JSONRPC: "2.0", Method: "eth_sendRawTransaction", Params: json.RawMessage(`["0x"]`)}, "")
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
	if resp.Result != nil {
		t.Fatalf("expected no result field, got %s", resp.Result)
	}
}

func TestDispatchRawParseError(t *testing.T) {
	s := &Simulator{}
	raw := s.DispatchRaw(context.Background(), []byte("not json"), "")
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected CodeParseError, got %+v", resp.Error)
	}
}

func TestWeb3ClientVersionIsLocal(t *testing.T) {
	s := &Simulator{}
	resp := s.Dispatch(context.Background(), Request{JSONRPC: "2.0", Method: "web3_clientVersion"}, "")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var banner string
	if err := json.Unmarshal(resp.Result, &banner); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if banner != implementationBanner {
		t.Errorf("banner = %q, want %q", banner, implementationBanner)
	}
}
