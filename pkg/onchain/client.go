// Copyright 2025 Ditto Network
//
// Package onchain provides the multi-chain read-only Ethereum client used
// by the event monitor (C4) and the on-chain trigger checker (C5), and
// implements C5 itself.

package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dittonetwork/workflow-engine/pkg/config"
)

// ChainClient is one chain's read-only connection.
type ChainClient struct {
	client  *ethclient.Client
	chainID string
}

// ClientSet holds one ChainClient per configured chain.
type ClientSet struct {
	mu      sync.RWMutex
	clients map[string]*ChainClient
}

// NewClientSet dials every chain in cfg.
func NewClientSet(cfg *config.Config) (*ClientSet, error) {
	set := &ClientSet{clients: make(map[string]*ChainClient, len(cfg.Chains))}
	for _, chain := range cfg.Chains {
		c, err := ethclient.Dial(chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("onchain: dial chain %s: %w", chain.ChainID, err)
		}
		set.clients[chain.ChainID] = &ChainClient{client: c, chainID: chain.ChainID}
	}
	return set, nil
}

// Close releases every underlying client.
func (s *ClientSet) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.client.Close()
	}
}

func (s *ClientSet) get(chainID string) (*ChainClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("onchain: no client configured for chain %q", chainID)
	}
	return c, nil
}

// Head returns the current block number for chainID.
func (s *ClientSet) Head(ctx context.Context, chainID string) (uint64, error) {
	c, err := s.get(chainID)
	if err != nil {
		return 0, err
	}
	return c.client.BlockNumber(ctx)
}

// FilterLogs runs a raw log filter query on chainID, used by the event
// monitor (C4) to scan block ranges for trigger signatures.
func (s *ClientSet) FilterLogs(ctx context.Context, chainID string, q ethereum.FilterQuery) ([]types.Log, error) {
	c, err := s.get(chainID)
	if err != nil {
		return nil, err
	}
	return c.client.FilterLogs(ctx, q)
}

// CallAt performs a read-only contract call against contractAddr at
// blockNumber (nil = latest), packing args via methodName from the
// supplied single-function ABI JSON and unpacking the raw result.
func (s *ClientSet) CallAt(ctx context.Context, chainID string, contractAddr common.Address, abiJSON, methodName string, blockNumber *int64, args ...any) ([]any, error) {
	c, err := s.get(chainID)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("onchain: parse abi: %w", err)
	}

	name := methodName
	if name == "" {
		for n := range parsed.Methods {
			name = n
			break
		}
	}

	callData, err := parsed.Pack(name, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack call: %w", err)
	}

	var blockArg *big.Int
	if blockNumber != nil {
		blockArg = big.NewInt(*blockNumber)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contractAddr, Data: callData}, blockArg)
	if err != nil {
		return nil, fmt.Errorf("onchain: call contract: %w", err)
	}

	outputs, err := parsed.Unpack(name, result)
	if err != nil {
		return nil, fmt.Errorf("onchain: unpack result: %w", err)
	}
	return outputs, nil
}
