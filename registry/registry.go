// Package registry implements the chain-pattern scheme dispatch the teacher
// wires by hand: instead of four copies of "walk []*schemeData, compare
// network strings, compare scheme names" (one each for V1/V2 verify/settle),
// handlers are constructed once from a Blueprint and looked up by matching a
// chainid.ChainId against the registered chainid.ChainIdPattern.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qntx/x402/chainid"
)

// ChainProvider is the minimum capability a Blueprint needs from whatever
// chain connection it is handed: enough to report which chain it talks to.
type ChainProvider interface {
	ChainID() chainid.ChainId
}

// Blueprint is a named handler constructor: given a chain provider and an
// opaque per-scheme config blob, it builds a Handler. One Blueprint can
// declare more than one protocol version (e.g. a scheme that serves both
// x402Version 1 and 2 off the same provider).
type Blueprint[P ChainProvider, H any] struct {
	Scheme   string
	Versions []int
	New      func(provider P, config json.RawMessage) (H, error)
}

type entry[H any] struct {
	pattern chainid.ChainIdPattern
	version int
	scheme  string
	handler H
}

// SchemeRegistry holds handlers keyed by (chain pattern, version, scheme) and
// resolves a concrete chainid.ChainId to the handler whose pattern matches it.
type SchemeRegistry[H any] struct {
	mu      sync.RWMutex
	entries []entry[H]
}

// NewSchemeRegistry creates an empty registry.
func NewSchemeRegistry[H any]() *SchemeRegistry[H] {
	return &SchemeRegistry[H]{}
}

// Register constructs a handler from blueprint against provider and config,
// then stores it under chainPattern for every version the blueprint declares.
// chainPattern is parsed with chainid.ParsePattern, so "eip155:*" and
// "solana:{mainnet,devnet}" are both valid.
func Register[P ChainProvider, H any](reg *SchemeRegistry[H], blueprint Blueprint[P, H], chainPattern string, provider P, config json.RawMessage) error {
	pattern, err := chainid.ParsePattern(chainPattern)
	if err != nil {
		return fmt.Errorf("registry: invalid chain pattern %q: %w", chainPattern, err)
	}
	if len(blueprint.Versions) == 0 {
		return fmt.Errorf("registry: blueprint %q declares no versions", blueprint.Scheme)
	}

	handler, err := blueprint.New(provider, config)
	if err != nil {
		return fmt.Errorf("registry: construct %s handler: %w", blueprint.Scheme, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, version := range blueprint.Versions {
		reg.entries = append(reg.entries, entry[H]{
			pattern: pattern,
			version: version,
			scheme:  blueprint.Scheme,
			handler: handler,
		})
	}
	return nil
}

// Lookup returns the handler registered for (chain, version, scheme), if any.
// Entries are matched in registration order; the first matching pattern
// wins, so more specific patterns should be registered before wildcards.
func (r *SchemeRegistry[H]) Lookup(chain chainid.ChainId, version int, scheme string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.version == version && e.scheme == scheme && e.pattern.Matches(chain) {
			return e.handler, true
		}
	}
	var zero H
	return zero, false
}

// SupportedScheme names one (version, scheme) pair supported on a chain.
type SupportedScheme struct {
	Version int
	Scheme  string
}

// Schemes returns every (version, scheme) pair registered for chain, for
// building a GetSupported()-style response.
func (r *SchemeRegistry[H]) Schemes(chain chainid.ChainId) []SupportedScheme {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []SupportedScheme
	for _, e := range r.entries {
		if e.pattern.Matches(chain) {
			out = append(out, SupportedScheme{Version: e.version, Scheme: e.scheme})
		}
	}
	return out
}
