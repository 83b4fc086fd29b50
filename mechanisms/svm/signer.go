package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
)

// ClientSvmSigner is implemented by client-side Solana signers capable of
// partially signing a payment transaction with the payer's key.
type ClientSvmSigner interface {
	// Address returns the signer's public key.
	Address() solana.PublicKey

	// SignTransaction partially signs tx in place with this signer's key.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// FacilitatorSvmSigner is implemented by facilitator-side Solana providers:
// it exposes the fee-payer signing, simulation and submission surface the
// exact scheme needs to verify and settle a payment, independent of how RPC
// transport and fee-payer selection are implemented underneath.
type FacilitatorSvmSigner interface {
	// GetAddresses returns every fee-payer address this signer can use on
	// network, for load distribution across multiple funded wallets.
	GetAddresses(ctx context.Context, network string) []solana.PublicKey

	// SignTransaction co-signs tx in place as feePayer.
	SignTransaction(ctx context.Context, tx *solana.Transaction, feePayer solana.PublicKey, network string) error

	// SimulateTransaction dry-runs tx against network, returning an error if
	// it would fail (insufficient balance, missing accounts, etc).
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error

	// SendTransaction broadcasts the fully signed tx to network.
	SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error)

	// ConfirmTransaction blocks until sig reaches a confirmed commitment on network.
	ConfirmTransaction(ctx context.Context, sig solana.Signature, network string) error
}
