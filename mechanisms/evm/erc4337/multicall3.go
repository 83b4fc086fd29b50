package erc4337

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/qntx/x402/mechanisms/evm"
)

// PackCall ABI-encodes a call to function with args, for use as a Call3's
// CallData field without submitting it as its own transaction.
func PackCall(abiJSON string, function string, args ...interface{}) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	data, err := parsed.Pack(function, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", function, err)
	}
	return data, nil
}

// Multicall3Address is the canonical deterministic-deployment address of
// Multicall3, identical across every chain it has been deployed to.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// Multicall3ABI covers the aggregate3 entry point used to batch a
// counterfactual wallet's ERC-6492 factory deployment together with its
// transferWithAuthorization call in one transaction.
const Multicall3ABI = `[{
	"inputs": [{
		"components": [
			{"name": "target", "type": "address"},
			{"name": "allowFailure", "type": "bool"},
			{"name": "callData", "type": "bytes"}
		],
		"name": "calls",
		"type": "tuple[]"
	}],
	"name": "aggregate3",
	"outputs": [{
		"components": [
			{"name": "success", "type": "bool"},
			{"name": "returnData", "type": "bytes"}
		],
		"name": "returnData",
		"type": "tuple[]"
	}],
	"stateMutability": "payable",
	"type": "function"
}]`

const functionAggregate3 = "aggregate3"

// Call3 is one call in a Multicall3 aggregate3 batch.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result3 is one per-call result returned by aggregate3.
type Result3 struct {
	Success    bool
	ReturnData []byte
}

// Multicall3Client batches smart-wallet deployment and settlement into one
// transaction via Multicall3.aggregate3, replacing the teacher's
// deploySmartWallet-then-transferWithAuthorization two-transaction sequence
// with a single atomic call (spec §4.F.6 counterfactual settlement).
type Multicall3Client struct {
	signer  evm.FacilitatorEvmSigner
	address common.Address
}

// NewMulticall3Client builds a client against the canonical Multicall3
// deployment. Pass a non-zero address to override it for a chain that
// deploys Multicall3 elsewhere.
func NewMulticall3Client(signer evm.FacilitatorEvmSigner, address common.Address) *Multicall3Client {
	if address == (common.Address{}) {
		address = Multicall3Address
	}
	return &Multicall3Client{signer: signer, address: address}
}

// Aggregate3 submits calls as a single transaction. A call with
// AllowFailure=false reverts the entire batch if it fails; the settlement
// caller should set AllowFailure=false on the transferWithAuthorization leg
// so a reverted transfer also reverts the wallet deployment.
func (m *Multicall3Client) Aggregate3(ctx context.Context, calls []Call3) (string, error) {
	if len(calls) == 0 {
		return "", fmt.Errorf("aggregate3: no calls")
	}
	return m.signer.WriteContract(ctx, m.address.Hex(), Multicall3ABI, functionAggregate3, calls)
}

// SimulateAggregate3 dry-runs calls via eth_call, returning the per-call
// success/returnData Multicall3 would report, without broadcasting anything.
func (m *Multicall3Client) SimulateAggregate3(ctx context.Context, calls []Call3) ([]Result3, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("aggregate3: no calls")
	}
	result, err := m.signer.ReadContract(ctx, m.address.Hex(), Multicall3ABI, functionAggregate3, calls)
	if err != nil {
		return nil, fmt.Errorf("simulate aggregate3: %w", err)
	}

	raw, ok := result.([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if ok {
		out := make([]Result3, len(raw))
		for i, r := range raw {
			out[i] = Result3{Success: r.Success, ReturnData: r.ReturnData}
		}
		return out, nil
	}

	// Some ABI decoders return the tuple array as []interface{} of
	// anonymous structs rather than a concrete named type; fall back to a
	// best-effort reflection-free unpack via the success/returnData pair.
	rawAny, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("simulate aggregate3: unexpected return type %T", result)
	}
	out := make([]Result3, 0, len(rawAny))
	for _, item := range rawAny {
		pair, ok := item.(struct {
			Success    bool
			ReturnData []byte
		})
		if !ok {
			return nil, fmt.Errorf("simulate aggregate3: unexpected element type %T", item)
		}
		out = append(out, Result3{Success: pair.Success, ReturnData: pair.ReturnData})
	}
	return out, nil
}
