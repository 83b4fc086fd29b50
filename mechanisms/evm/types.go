// Package evm provides the shared EVM chain types, ABI bindings and signer
// interfaces used by the exact-scheme client, facilitator and server
// implementations in mechanisms/evm/exact.
package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SchemeExact is the scheme identifier for the EIP-3009 "exact" payment scheme.
const SchemeExact = "exact"

// DefaultSkewTolerance is the default backdating applied to validAfter so a
// facilitator with a slightly-behind clock still accepts a freshly signed
// authorization.
const DefaultSkewTolerance = 30 * time.Second

// DefaultExpirationGrace is the default buffer required between now and
// validBefore at verification time, accounting for block-inclusion latency.
const DefaultExpirationGrace = 6 * time.Second

// AssetInfo describes an ERC-20 asset usable with the exact scheme.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig describes chain-level configuration for a CAIP-2 EVM network.
type NetworkConfig struct {
	ChainID         *big.Int
	DefaultAsset    AssetInfo
	SupportedAssets map[string]AssetInfo
}

// NetworkConfigs is the static registry of supported EVM networks, keyed by
// CAIP-2 chain id (e.g. "eip155:8453").
var NetworkConfigs = map[string]NetworkConfig{
	"eip155:8453": { // Base mainnet
		ChainID: big.NewInt(8453),
		DefaultAsset: AssetInfo{
			Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Name:    "USD Coin", Version: "2", Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Name: "USD Coin", Version: "2", Decimals: 6},
		},
	},
	"eip155:84532": { // Base Sepolia
		ChainID: big.NewInt(84532),
		DefaultAsset: AssetInfo{
			Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Name:    "USD Coin", Version: "2", Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Name: "USD Coin", Version: "2", Decimals: 6},
		},
	},
	"eip155:1": { // Ethereum mainnet
		ChainID: big.NewInt(1),
		DefaultAsset: AssetInfo{
			Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Name:    "USD Coin", Version: "2", Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Name: "USD Coin", Version: "2", Decimals: 6},
		},
	},
	"eip155:42161": { // Arbitrum One
		ChainID: big.NewInt(42161),
		DefaultAsset: AssetInfo{
			Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
			Name:    "USD Coin", Version: "2", Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Name: "USD Coin", Version: "2", Decimals: 6},
		},
	},
}

// IsValidNetwork reports whether networkStr is a registered EVM network.
func IsValidNetwork(networkStr string) bool {
	_, ok := NetworkConfigs[networkStr]
	return ok
}

// GetNetworkConfig looks up the configuration for a CAIP-2 EVM network.
func GetNetworkConfig(networkStr string) (NetworkConfig, error) {
	config, ok := NetworkConfigs[networkStr]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported evm network: %s", networkStr)
	}
	return config, nil
}

// GetAssetInfo resolves an asset symbol or address to its AssetInfo on networkStr.
func GetAssetInfo(networkStr string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return nil, err
	}

	if info, ok := config.SupportedAssets[asset]; ok {
		return &info, nil
	}

	for _, info := range config.SupportedAssets {
		if strings.EqualFold(info.Address, asset) {
			return &info, nil
		}
	}

	if IsValidAddress(asset) {
		// Unknown asset address on a known network: fall back to the
		// network's default decimals/name so ParsePrice/EnhancePaymentRequirements
		// still have something usable; EIP-712 domain name/version can still be
		// overridden via PaymentRequirements.Extra.
		return &AssetInfo{Address: asset, Name: config.DefaultAsset.Name, Version: config.DefaultAsset.Version, Decimals: config.DefaultAsset.Decimals}, nil
	}

	return nil, fmt.Errorf("unknown asset %q on network %s", asset, networkStr)
}

// IsValidAddress reports whether s is a well-formed 20-byte hex address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// HexToBytes decodes a 0x-prefixed (or bare) hex string.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// BytesToHex encodes b as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + common.Bytes2Hex(b)
}

// ParseAmount converts a decimal string amount (e.g. "1.50") into its
// smallest-unit integer representation given the asset's decimals.
func ParseAmount(decimalAmount string, decimals int) (*big.Int, error) {
	parts := strings.SplitN(decimalAmount, ".", 2)
	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	for len(frac) < decimals {
		frac += "0"
	}

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}

	amount, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %s", decimalAmount)
	}
	return amount, nil
}

// FormatAmount renders a smallest-unit integer amount as a decimal string
// with the given number of decimals.
func FormatAmount(amount *big.Int, decimals int) string {
	s := amount.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) <= decimals {
		s = "0" + s
	}
	whole := s[:len(s)-decimals]
	frac := s[len(s)-decimals:]
	frac = strings.TrimRight(frac, "0")

	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
