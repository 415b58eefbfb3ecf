// Copyright 2025 Ditto Network

package rpcsim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/dittonetwork/workflow-engine/pkg/config"
)

// implementationBanner is returned verbatim for web3_clientVersion rather
// than forwarded upstream, matching other simulators that brand their own
// responses independent of the underlying node.
const implementationBanner = "workflow-engine-rpcsim/1.0"

// allowedMethods is the closed set of read-only methods the simulator
// will forward (§4.1). Anything else — in particular every signing/
// sending method — fails closed with -32601.
var allowedMethods = map[string]bool{
	"eth_blockNumber":            true,
	"eth_chainId":                true,
	"net_version":                true,
	"web3_clientVersion":         true,
	"eth_getBalance":             true,
	"eth_getTransactionCount":    true,
	"eth_getCode":                true,
	"eth_getStorageAt":           true,
	"eth_call":                   true,
	"eth_estimateGas":            true,
	"eth_getBlockByNumber":       true,
	"eth_getBlockByHash":         true,
	"eth_getTransactionByHash":   true,
	"eth_getTransactionReceipt":  true,
}

// Simulator dispatches JSON-RPC 2.0 requests to per-chain clients,
// enforcing the method whitelist above plus any operator-supplied extras.
type Simulator struct {
	clients         map[string]*gethrpc.Client
	chainOrder      []string
	upstreamTimeout time.Duration
	extraMethods    map[string]bool
}

// New dials a gethrpc.Client for every configured chain and, if
// cfg.RPCMethodPolicyFile is set, loads the YAML whitelist override.
func New(cfg *config.Config) (*Simulator, error) {
	extra, err := loadMethodPolicy(cfg.RPCMethodPolicyFile)
	if err != nil {
		return nil, err
	}
	sim := &Simulator{
		clients:         make(map[string]*gethrpc.Client, len(cfg.Chains)),
		upstreamTimeout: 10 * time.Second,
		extraMethods:    extra,
	}
	for _, chain := range cfg.Chains {
		client, err := gethrpc.Dial(chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("rpcsim: dial chain %s: %w", chain.ChainID, err)
		}
		sim.clients[chain.ChainID] = client
		sim.chainOrder = append(sim.chainOrder, chain.ChainID)
	}
	return sim, nil
}

// methodAllowed checks the built-in whitelist first, then any
// operator-supplied extras from cfg.RPCMethodPolicyFile.
func (s *Simulator) methodAllowed(method string) bool {
	if allowedMethods[method] {
		return true
	}
	return s.extraMethods[method]
}

// Close releases every per-chain client.
func (s *Simulator) Close() {
	for _, c := range s.clients {
		c.Close()
	}
}

// Dispatch handles one JSON-RPC request, gated by the method whitelist.
// chainID selects the target client; an empty chainID uses the first
// configured chain (§4.1 "Default chain").
func (s *Simulator) Dispatch(ctx context.Context, req Request, chainID string) Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request envelope", "")
	}

	if !s.methodAllowed(req.Method) {
		return errorResponse(req.ID, CodeMethodNotFound, "method not found", req.Method)
	}

	if req.Method == "web3_clientVersion" {
		return resultResponse(req.ID, implementationBanner)
	}

	client, err := s.clientFor(chainID)
	if err != nil {
		return errorResponse(req.ID, CodeUpstreamError, "no client for chain", err.Error())
	}

	var params []any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	var result json.RawMessage
	if err := client.CallContext(callCtx, &result, req.Method, params...); err != nil {
		return errorResponse(req.ID, CodeUpstreamError, "upstream call failed", err.Error())
	}

	return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Simulator) clientFor(chainID string) (*gethrpc.Client, error) {
	if chainID == "" {
		if len(s.chainOrder) == 0 {
			return nil, fmt.Errorf("no chains configured")
		}
		chainID = s.chainOrder[0]
	}
	client, ok := s.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", chainID)
	}
	return client, nil
}

// DispatchRaw parses body as a Request, dispatches it, and marshals the
// Response — the entrypoint the C2 bridge uses when it dispatches
// in-process (no proxy URL configured).
func (s *Simulator) DispatchRaw(ctx context.Context, body []byte, chainID string) []byte {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := errorResponse(nil, CodeParseError, "parse error", err.Error())
		raw, _ := json.Marshal(resp)
		return raw
	}
	resp := s.Dispatch(ctx, req, chainID)
	raw, _ := json.Marshal(resp)
	return raw
}
