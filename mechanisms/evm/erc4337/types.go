// Package erc4337 supports the counterfactual-wallet deployment path of the
// EVM exact scheme: ERC-6492 factory calldata for an undeployed smart
// account, batched atomically with the transferWithAuthorization call via
// Multicall3.aggregate3 so a payment never costs two transactions.
package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EntryPoint addresses (canonical deployments)
const (
	// EntryPointV07Address is the v0.7 EntryPoint contract address
	EntryPointV07Address = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
	// EntryPointV06Address is the v0.6 EntryPoint contract address (legacy)
	EntryPointV06Address = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
)

// UserOperation represents an ERC-4337 UserOperation for off-chain representation.
// This is the format used before packing for on-chain submission.
type UserOperation struct {
	// Sender is the smart account address
	Sender common.Address `json:"sender"`
	// Nonce is the anti-replay nonce
	Nonce *big.Int `json:"nonce"`
	// InitCode is the factory address + init data (for account deployment) or empty
	InitCode []byte `json:"initCode"`
	// CallData is the encoded call data for the account's execute function
	CallData []byte `json:"callData"`
	// VerificationGasLimit is the gas limit for account validation
	VerificationGasLimit *big.Int `json:"verificationGasLimit"`
	// CallGasLimit is the gas limit for call execution
	CallGasLimit *big.Int `json:"callGasLimit"`
	// PreVerificationGas is the gas to pay bundler for overhead
	PreVerificationGas *big.Int `json:"preVerificationGas"`
	// MaxPriorityFeePerGas is the max priority fee per gas (tip)
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`
	// MaxFeePerGas is the max fee per gas
	MaxFeePerGas *big.Int `json:"maxFeePerGas"`
	// PaymasterAndData is the paymaster address + data, or empty for self-pay
	PaymasterAndData []byte `json:"paymasterAndData"`
	// Signature is the signature over the UserOperation hash
	Signature []byte `json:"signature"`
}

// GasEstimate contains gas estimation results from the bundler.
type GasEstimate struct {
	// VerificationGasLimit is the gas for account validation
	VerificationGasLimit *big.Int `json:"verificationGasLimit"`
	// CallGasLimit is the gas for call execution
	CallGasLimit *big.Int `json:"callGasLimit"`
	// PreVerificationGas is the gas for bundler overhead
	PreVerificationGas *big.Int `json:"preVerificationGas"`
	// PaymasterVerificationGasLimit is the gas for paymaster validation (if applicable)
	PaymasterVerificationGasLimit *big.Int `json:"paymasterVerificationGasLimit,omitempty"`
	// PaymasterPostOpGasLimit is the gas for paymaster post-op (if applicable)
	PaymasterPostOpGasLimit *big.Int `json:"paymasterPostOpGasLimit,omitempty"`
}

