package evm

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc6492MagicSuffix is appended to a counterfactual-wallet signature per
// ERC-6492, flagging it as abi.encode(factory, factoryCalldata, innerSignature).
var erc6492MagicSuffix = common.FromHex("6492649264926492649264926492649264926492649264926492649264926492")

// ERC6492SignatureData is the decoded payload of an ERC-6492 wrapped
// signature: the factory that deploys the wallet, the calldata to deploy it
// with, and the signature the wallet itself should validate once deployed.
type ERC6492SignatureData struct {
	Factory         [20]byte
	FactoryCalldata []byte
	InnerSignature  []byte
}

func erc6492Arguments() abi.Arguments {
	addressTy, _ := abi.NewType("address", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)
	return abi.Arguments{
		{Type: addressTy},
		{Type: bytesTy},
		{Type: bytesTy},
	}
}

// ParseERC6492Signature unwraps an ERC-6492 signature if the magic suffix is
// present, otherwise treats the whole input as a plain inner signature.
func ParseERC6492Signature(signature []byte) (*ERC6492SignatureData, error) {
	if len(signature) < len(erc6492MagicSuffix) || !bytes.HasSuffix(signature, erc6492MagicSuffix) {
		return &ERC6492SignatureData{InnerSignature: signature}, nil
	}

	body := signature[:len(signature)-len(erc6492MagicSuffix)]
	values, err := erc6492Arguments().Unpack(body)
	if err != nil {
		return nil, fmt.Errorf("decode erc-6492 signature: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("decode erc-6492 signature: expected 3 values, got %d", len(values))
	}

	factory, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("decode erc-6492 signature: unexpected factory type")
	}
	factoryCalldata, ok := values[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("decode erc-6492 signature: unexpected factoryCalldata type")
	}
	innerSignature, ok := values[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("decode erc-6492 signature: unexpected innerSignature type")
	}

	var factoryBytes [20]byte
	copy(factoryBytes[:], factory.Bytes())

	return &ERC6492SignatureData{
		Factory:         factoryBytes,
		FactoryCalldata: factoryCalldata,
		InnerSignature:  innerSignature,
	}, nil
}

// SignatureKind classifies a payment signature into one of the three
// transferWithAuthorization call shapes the exact scheme's facilitator can
// simulate and settle.
type SignatureKind int

const (
	// SignatureKindEOA is a plain 65-byte (r, s, v) ECDSA signature, split
	// and passed to the VRS overload of transferWithAuthorization.
	SignatureKindEOA SignatureKind = iota
	// SignatureKindEIP1271 is a deployed smart contract wallet's signature,
	// validated by the wallet's own isValidSignature and passed whole to
	// the bytes overload of transferWithAuthorization.
	SignatureKindEIP1271
	// SignatureKindEIP6492 is an ERC-6492 wrapped signature for a
	// (possibly still undeployed) counterfactual smart wallet.
	SignatureKindEIP6492
)

// ClassifySignature determines how signature should be validated and
// submitted, in the order the ERC-6492 magic suffix must be checked before
// anything else: a wrapped signature is always EIP-6492 regardless of its
// inner signature's length; otherwise a signature that isn't a plain 65-byte
// ECDSA triple with a valid recovery id is an EIP-1271 contract signature;
// everything else is a plain EOA signature.
func ClassifySignature(signature []byte) (SignatureKind, *ERC6492SignatureData, error) {
	sigData, err := ParseERC6492Signature(signature)
	if err != nil {
		return 0, nil, err
	}

	if bytes.HasSuffix(signature, erc6492MagicSuffix) {
		return SignatureKindEIP6492, sigData, nil
	}

	if len(signature) != 65 {
		return SignatureKindEIP1271, sigData, nil
	}
	v := signature[64]
	if v != 27 && v != 28 {
		return SignatureKindEIP1271, sigData, nil
	}

	return SignatureKindEOA, sigData, nil
}

