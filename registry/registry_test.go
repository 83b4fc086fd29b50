package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qntx/x402/chainid"
)

type fakeProvider struct {
	chain chainid.ChainId
}

func (p fakeProvider) ChainID() chainid.ChainId { return p.chain }

type fakeHandler struct {
	scheme string
	asset  string
}

func exactBlueprint() Blueprint[fakeProvider, *fakeHandler] {
	return Blueprint[fakeProvider, *fakeHandler]{
		Scheme:   "exact",
		Versions: []int{1, 2},
		New: func(provider fakeProvider, config json.RawMessage) (*fakeHandler, error) {
			var cfg struct {
				Asset string `json:"asset"`
			}
			if len(config) > 0 {
				if err := json.Unmarshal(config, &cfg); err != nil {
					return nil, err
				}
			}
			return &fakeHandler{scheme: "exact", asset: cfg.Asset}, nil
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := NewSchemeRegistry[*fakeHandler]()
	provider := fakeProvider{chain: chainid.ChainId{Namespace: "eip155", Reference: "8453"}}

	err := Register(reg, exactBlueprint(), "eip155:8453", provider, json.RawMessage(`{"asset":"USDC"}`))
	require.NoError(t, err)

	handler, ok := reg.Lookup(provider.chain, 2, "exact")
	require.True(t, ok)
	require.Equal(t, "USDC", handler.asset)

	// Registered for both declared versions.
	_, ok = reg.Lookup(provider.chain, 1, "exact")
	require.True(t, ok)
}

func TestLookupMissesUnregisteredChain(t *testing.T) {
	reg := NewSchemeRegistry[*fakeHandler]()
	provider := fakeProvider{chain: chainid.ChainId{Namespace: "eip155", Reference: "8453"}}
	require.NoError(t, Register(reg, exactBlueprint(), "eip155:8453", provider, nil))

	_, ok := reg.Lookup(chainid.ChainId{Namespace: "eip155", Reference: "1"}, 2, "exact")
	require.False(t, ok)
}

func TestRegisterWildcardPattern(t *testing.T) {
	reg := NewSchemeRegistry[*fakeHandler]()
	provider := fakeProvider{chain: chainid.ChainId{Namespace: "eip155", Reference: "8453"}}
	require.NoError(t, Register(reg, exactBlueprint(), "eip155:*", provider, nil))

	_, ok := reg.Lookup(chainid.ChainId{Namespace: "eip155", Reference: "1"}, 2, "exact")
	require.True(t, ok)
	_, ok = reg.Lookup(chainid.ChainId{Namespace: "solana", Reference: "mainnet"}, 2, "exact")
	require.False(t, ok)
}

func TestRegisterRejectsInvalidPattern(t *testing.T) {
	reg := NewSchemeRegistry[*fakeHandler]()
	provider := fakeProvider{chain: chainid.ChainId{Namespace: "eip155", Reference: "8453"}}
	err := Register(reg, exactBlueprint(), "not-a-pattern", provider, nil)
	require.Error(t, err)
}

func TestSchemesListsMatchingEntries(t *testing.T) {
	reg := NewSchemeRegistry[*fakeHandler]()
	provider := fakeProvider{chain: chainid.ChainId{Namespace: "eip155", Reference: "8453"}}
	require.NoError(t, Register(reg, exactBlueprint(), "eip155:8453", provider, nil))

	schemes := reg.Schemes(provider.chain)
	require.Len(t, schemes, 2)
}

func TestNetworkRegistry(t *testing.T) {
	reg := NewNetworkRegistry()
	base := chainid.ChainId{Namespace: "eip155", Reference: "8453"}
	reg.Add("base", base)

	chain, err := reg.ChainID("base")
	require.NoError(t, err)
	require.Equal(t, base, chain)

	name, ok := reg.Name(base)
	require.True(t, ok)
	require.Equal(t, "base", name)

	// Well-formed CAIP-2 strings resolve even without a prior Add.
	chain, err = reg.ChainID("solana:mainnet")
	require.NoError(t, err)
	require.Equal(t, chainid.ChainId{Namespace: "solana", Reference: "mainnet"}, chain)

	_, err = reg.ChainID("not-registered")
	require.Error(t, err)
}
