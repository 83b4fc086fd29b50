package evm

import (
	"context"
	"math/big"
)

// TypedDataField is a single EIP-712 struct field definition.
type TypedDataField struct {
	Name string
	Type string
}

// TypedDataDomain is the EIP-712 domain separator input.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// ClientEvmSigner is implemented by client-side EVM signers capable of
// producing EIP-712 signatures over a payment authorization.
type ClientEvmSigner interface {
	// Address returns the signer's checksummed hex address.
	Address() string

	// SignTypedData signs an EIP-712 typed-data payload and returns the
	// 65-byte (r, s, v) signature.
	SignTypedData(
		ctx context.Context,
		domain TypedDataDomain,
		types map[string][]TypedDataField,
		primaryType string,
		message map[string]interface{},
	) ([]byte, error)
}

// Receipt is the subset of a transaction receipt the exact scheme needs.
type Receipt struct {
	TxHash string
	Status uint64
}

// TxStatusSuccess is the receipt status value of a successful transaction.
const TxStatusSuccess = uint64(1)

// FacilitatorEvmSigner is implemented by facilitator-side EVM providers:
// it exposes the on-chain read/write surface the exact scheme needs to
// verify and settle a payment, independent of how RPC transport, nonce
// management and key selection are implemented underneath.
type FacilitatorEvmSigner interface {
	// GetAddresses returns every address this signer can use to settle
	// transactions, across its configured signer pool.
	GetAddresses() []string

	// GetBalance returns the ERC-20 balanceOf(account) for token.
	GetBalance(ctx context.Context, account string, token string) (*big.Int, error)

	// GetCode returns the deployed bytecode at account (empty if undeployed).
	GetCode(ctx context.Context, account string) ([]byte, error)

	// ReadContract performs an eth_call against contract, ABI-decoding the
	// single return value described by abiJSON/function.
	ReadContract(ctx context.Context, contract string, abiJSON string, function string, args ...interface{}) (interface{}, error)

	// WriteContract submits a state-changing transaction to contract and
	// returns its transaction hash.
	WriteContract(ctx context.Context, contract string, abiJSON string, function string, args ...interface{}) (string, error)

	// SendTransaction submits a raw transaction with calldata data to to
	// and returns its transaction hash. Used for ERC-6492 factory deployment.
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)

	// WaitForTransactionReceipt blocks until txHash is mined or ctx expires.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}
