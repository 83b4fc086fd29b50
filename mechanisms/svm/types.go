// Package svm provides the shared Solana chain types, signer interfaces and
// transaction helpers used by the exact-scheme client, facilitator and
// server implementations in mechanisms/svm/exact.
package svm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

// SchemeExact is the scheme identifier for the SPL TransferChecked "exact"
// payment scheme.
const SchemeExact = "exact"

// DefaultComputeUnitLimit is the compute unit limit requested by the client
// for a payment transaction's SetComputeUnitLimit instruction.
const DefaultComputeUnitLimit = uint32(40000)

// DefaultComputeUnitPriceMicrolamports is the priority fee the client offers
// by default, in microlamports per compute unit.
const DefaultComputeUnitPriceMicrolamports = uint64(100000)

// MaxComputeUnitPriceMicrolamports caps the priority fee a facilitator will
// accept: 5 lamports per compute unit.
const MaxComputeUnitPriceMicrolamports = uint64(5_000_000)

// MaxComputeUnitLimit caps the compute unit limit a facilitator will accept
// in a payment transaction's SetComputeUnitLimit instruction.
const MaxComputeUnitLimit = uint32(200_000)

// CAIP-2 and legacy v1 network identifiers for the three Solana clusters the
// exact scheme supports. The v1 forms are accepted for backward compatibility
// with PaymentRequirementsV1 callers and normalized to CAIP-2 internally.
const (
	SolanaMainnetCAIP2 = "solana:mainnet"
	SolanaDevnetCAIP2  = "solana:devnet"
	SolanaTestnetCAIP2 = "solana:testnet"

	SolanaMainnetV1 = "solana-mainnet"
	SolanaDevnetV1  = "solana-devnet"
	SolanaTestnetV1 = "solana-testnet"
)

// USDCDevnetAddress is the devnet USDC mint, referenced directly by tests and
// by callers that need the devnet default asset without a network lookup.
const USDCDevnetAddress = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

// usdcMainnetAddress is the canonical mainnet USDC mint.
const usdcMainnetAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Confirmation polling defaults used by facilitator-side transaction waiters.
const (
	DefaultCommitment  = rpc.CommitmentConfirmed
	MaxConfirmAttempts = 30
	ConfirmRetryDelay  = 500 * time.Millisecond
)

// v1ToCAIP2 maps every accepted legacy network name to its CAIP-2 form.
var v1ToCAIP2 = map[string]string{
	SolanaMainnetV1: SolanaMainnetCAIP2,
	SolanaDevnetV1:  SolanaDevnetCAIP2,
	SolanaTestnetV1: SolanaTestnetCAIP2,
}

// NormalizeNetwork converts a v1 or CAIP-2 Solana network identifier to its
// canonical CAIP-2 form. It is a no-op for an already-CAIP-2 input.
func NormalizeNetwork(networkStr string) (string, error) {
	if caip2, ok := v1ToCAIP2[networkStr]; ok {
		return caip2, nil
	}
	if _, ok := NetworkConfigs[networkStr]; ok {
		return networkStr, nil
	}
	return "", fmt.Errorf("unsupported solana network: %s", networkStr)
}

// ValidateSolanaAddress reports whether addr is a well-formed base58 Solana
// public key (32 bytes once decoded).
func ValidateSolanaAddress(addr string) bool {
	if addr == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}

// ParseProgramIDs decodes a list of base58 program addresses (as configured
// in an InstructionPolicy's allow/block list) into solana.PublicKeys,
// decoding with mr-tron/base58 directly so a malformed entry names itself and
// its byte length rather than surfacing solana-go's generic parse error.
func ParseProgramIDs(addresses []string) ([]solana.PublicKey, error) {
	ids := make([]solana.PublicKey, 0, len(addresses))
	for _, addr := range addresses {
		raw, err := base58.Decode(addr)
		if err != nil {
			return nil, fmt.Errorf("program id %q: invalid base58: %w", addr, err)
		}
		const publicKeyLength = 32
		if len(raw) != publicKeyLength {
			return nil, fmt.Errorf("program id %q: decoded to %d bytes, want %d", addr, len(raw), publicKeyLength)
		}
		var pk solana.PublicKey
		copy(pk[:], raw)
		ids = append(ids, pk)
	}
	return ids, nil
}

// AssetInfo describes an SPL token asset usable with the exact scheme.
type AssetInfo struct {
	Address  string
	Decimals int
}

// NetworkConfig describes chain-level configuration for a CAIP-2 Solana network.
type NetworkConfig struct {
	// CAIP2 is this network's canonical CAIP-2 identifier.
	CAIP2 string

	RPCURL          string
	WSURL           string
	DefaultAsset    AssetInfo
	SupportedAssets map[string]AssetInfo
}

// ClientConfig optionally overrides network defaults for a client scheme.
type ClientConfig struct {
	RPCURL string
}

// NetworkConfigs is the static registry of supported Solana networks, keyed
// by CAIP-2 chain id.
var NetworkConfigs = map[string]NetworkConfig{
	SolanaMainnetCAIP2: {
		CAIP2:  SolanaMainnetCAIP2,
		RPCURL: "https://api.mainnet-beta.solana.com",
		WSURL:  "wss://api.mainnet-beta.solana.com",
		DefaultAsset: AssetInfo{
			Address:  usdcMainnetAddress,
			Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: usdcMainnetAddress, Decimals: 6},
		},
	},
	SolanaDevnetCAIP2: {
		CAIP2:  SolanaDevnetCAIP2,
		RPCURL: "https://api.devnet.solana.com",
		WSURL:  "wss://api.devnet.solana.com",
		DefaultAsset: AssetInfo{
			Address:  USDCDevnetAddress,
			Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: USDCDevnetAddress, Decimals: 6},
		},
	},
	SolanaTestnetCAIP2: {
		CAIP2:  SolanaTestnetCAIP2,
		RPCURL: "https://api.testnet.solana.com",
		WSURL:  "wss://api.testnet.solana.com",
		DefaultAsset: AssetInfo{
			Address:  USDCDevnetAddress,
			Decimals: 6,
		},
		SupportedAssets: map[string]AssetInfo{
			"USDC": {Address: USDCDevnetAddress, Decimals: 6},
		},
	},
}

// IsValidNetwork reports whether networkStr (v1 or CAIP-2) names a registered
// Solana network.
func IsValidNetwork(networkStr string) bool {
	_, err := NormalizeNetwork(networkStr)
	return err == nil
}

// GetNetworkConfig looks up the configuration for a Solana network, accepting
// either its v1 or CAIP-2 identifier.
func GetNetworkConfig(networkStr string) (*NetworkConfig, error) {
	caip2, err := NormalizeNetwork(networkStr)
	if err != nil {
		return nil, err
	}
	config, ok := NetworkConfigs[caip2]
	if !ok {
		return nil, fmt.Errorf("unsupported solana network: %s", networkStr)
	}
	return &config, nil
}

// GetAssetInfo resolves an asset symbol or mint address to its AssetInfo on
// networkStr (v1 or CAIP-2).
func GetAssetInfo(networkStr string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return nil, err
	}

	if info, ok := config.SupportedAssets[asset]; ok {
		return &info, nil
	}
	for symbol, info := range config.SupportedAssets {
		if strings.EqualFold(symbol, asset) {
			return &info, nil
		}
	}

	// Unknown mint on a known network: fall back to the network's default
	// decimals so ParsePrice/EnhancePaymentRequirements still have something
	// usable.
	return &AssetInfo{Address: asset, Decimals: config.DefaultAsset.Decimals}, nil
}

// ParseAmount converts a decimal string amount (e.g. "1.50") into its
// smallest-unit integer representation given the asset's decimals.
func ParseAmount(decimalAmount string, decimals int) (uint64, error) {
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

	amount, err := strconv.ParseUint(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal amount: %s", decimalAmount)
	}
	return amount, nil
}

// FormatAmount is the inverse of ParseAmount: it renders a smallest-unit
// integer amount as a decimal string with decimals fractional digits,
// trimming trailing zeros and a bare trailing decimal point.
func FormatAmount(amount uint64, decimals int) string {
	s := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return s
	}
	for len(s) <= decimals {
		s = "0" + s
	}
	whole := s[:len(s)-decimals]
	frac := s[len(s)-decimals:]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
