package evm

import (
	"testing"
)

// testMnemonic is the well-known Hardhat/Anvil default mnemonic, whose first
// derived account (m/44'/60'/0'/0/0) matches testPrivateKeyHex's address.
const testMnemonic = "test test test test test test test test test test test junk"

func TestNewMnemonicClientSignerDefaultPath(t *testing.T) {
	signer, err := NewMnemonicClientSigner(testMnemonic, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	if signer.Address() != want {
		t.Errorf("address = %s, want %s", signer.Address(), want)
	}
}

func TestNewMnemonicClientSignerExplicitPath(t *testing.T) {
	signer, err := NewMnemonicClientSigner(testMnemonic, "m/44'/60'/0'/0/0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signer.Address() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("unexpected address: %s", signer.Address())
	}
}

func TestNewMnemonicClientSignerDifferentIndexDifferentAddress(t *testing.T) {
	first, err := NewMnemonicClientSigner(testMnemonic, "m/44'/60'/0'/0/0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewMnemonicClientSigner(testMnemonic, "m/44'/60'/0'/0/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Address() == second.Address() {
		t.Error("expected different addresses for different derivation indices")
	}
}

func TestNewMnemonicClientSignerRejectsInvalidMnemonic(t *testing.T) {
	_, err := NewMnemonicClientSigner("not a valid mnemonic phrase at all", "")
	if err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}

func TestNewMnemonicClientSignerRejectsInvalidPath(t *testing.T) {
	_, err := NewMnemonicClientSigner(testMnemonic, "not-a-path")
	if err == nil {
		t.Error("expected error for invalid derivation path")
	}
}
