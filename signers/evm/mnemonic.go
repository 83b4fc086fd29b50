package evm

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	x402evm "github.com/qntx/x402/mechanisms/evm"
)

// defaultEthereumDerivationPath is the standard Ethereum BIP-44 path.
const defaultEthereumDerivationPath = "m/44'/60'/0'/0/0"

// derivePrivateKey walks a BIP-32 HD derivation path from seed to a leaf
// ECDSA key.
func derivePrivateKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	key := masterKey
	for _, n := range path {
		key, err = key.NewChildKey(n)
		if err != nil {
			return nil, fmt.Errorf("derive child key: %w", err)
		}
	}

	privateKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, fmt.Errorf("convert to ecdsa key: %w", err)
	}
	return privateKey, nil
}

// NewMnemonicClientSigner derives a client signer from a BIP-39 mnemonic
// phrase using BIP-32 HD derivation. derivationPath defaults to the standard
// Ethereum path m/44'/60'/0'/0/0 when empty.
func NewMnemonicClientSigner(mnemonic string, derivationPath string) (x402evm.ClientEvmSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid bip-39 mnemonic")
	}
	if derivationPath == "" {
		derivationPath = defaultEthereumDerivationPath
	}

	path, err := accounts.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}

	seed := bip39.NewSeed(mnemonic, "")
	privateKey, err := derivePrivateKey(seed, path)
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}

	return &ClientSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}
