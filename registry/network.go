package registry

import (
	"fmt"
	"sync"

	"github.com/qntx/x402/chainid"
)

// NetworkRegistry maps the human-readable network names x402 V1 payloads
// carry (e.g. "base-sepolia", "solana-devnet") to their CAIP-2 chainid.ChainId
// and back, generalizing the per-package v1-name-to-CAIP2 maps the teacher
// hand-rolls once per chain family (mechanisms/evm, mechanisms/svm).
type NetworkRegistry struct {
	mu        sync.RWMutex
	byName    map[string]chainid.ChainId
	byChainID map[string]string
}

// NewNetworkRegistry creates an empty NetworkRegistry.
func NewNetworkRegistry() *NetworkRegistry {
	return &NetworkRegistry{
		byName:    make(map[string]chainid.ChainId),
		byChainID: make(map[string]string),
	}
}

// Add registers a human-readable name for chain. Registering the same name
// twice overwrites the prior mapping.
func (n *NetworkRegistry) Add(name string, chain chainid.ChainId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byName[name] = chain
	n.byChainID[chain.String()] = name
}

// ChainID resolves a human-readable network name to its ChainId. If name is
// already a well-formed CAIP-2 string, it is parsed and returned directly
// without requiring a prior Add call.
func (n *NetworkRegistry) ChainID(name string) (chainid.ChainId, error) {
	n.mu.RLock()
	chain, ok := n.byName[name]
	n.mu.RUnlock()
	if ok {
		return chain, nil
	}

	chain, err := chainid.Parse(name)
	if err != nil {
		return chainid.ChainId{}, fmt.Errorf("registry: unknown network %q", name)
	}
	return chain, nil
}

// Name resolves chain back to its registered human-readable name, if one was
// added with Add.
func (n *NetworkRegistry) Name(chain chainid.ChainId) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	name, ok := n.byChainID[chain.String()]
	return name, ok
}
