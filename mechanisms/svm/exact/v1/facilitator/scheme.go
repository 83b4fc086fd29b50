package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/qntx/x402"
	"github.com/qntx/x402/mechanisms/svm"
	"github.com/qntx/x402/types"
)

// ExactSvmSchemeV1 implements the SchemeNetworkFacilitatorV1 interface for SVM (Solana) exact payments (V1)
type ExactSvmSchemeV1 struct {
	signer svm.FacilitatorSvmSigner
	policy svm.InstructionPolicy
}

// NewExactSvmSchemeV1 creates a new ExactSvmSchemeV1. policy is optional;
// nil uses svm.DefaultInstructionPolicy.
func NewExactSvmSchemeV1(signer svm.FacilitatorSvmSigner, policy *svm.InstructionPolicy) *ExactSvmSchemeV1 {
	p := svm.DefaultInstructionPolicy()
	if policy != nil {
		p = *policy
	}
	return &ExactSvmSchemeV1{
		signer: signer,
		policy: p,
	}
}

// Scheme returns the scheme identifier
func (f *ExactSvmSchemeV1) Scheme() string {
	return svm.SchemeExact
}

// CaipFamily returns the CAIP family pattern this facilitator supports
func (f *ExactSvmSchemeV1) CaipFamily() string {
	return "solana:*"
}

// GetExtra returns mechanism-specific extra data for the supported kinds endpoint.
func (f *ExactSvmSchemeV1) GetExtra(network x402.Network) map[string]interface{} {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	if len(addresses) == 0 {
		return nil
	}
	return map[string]interface{}{
		"feePayer": addresses[rand.Intn(len(addresses))].String(),
	}
}

// GetSigners returns signer addresses used by this facilitator.
func (f *ExactSvmSchemeV1) GetSigners(network x402.Network) []string {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}

// Verify verifies a V1 payment payload against requirements
func (f *ExactSvmSchemeV1) Verify(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (*x402.VerifyResponse, error) {
	network := x402.Network(requirements.Network)

	if payload.Scheme != svm.SchemeExact || requirements.Scheme != svm.SchemeExact {
		return nil, x402.NewVerifyError(x402.ReasonUnsupportedScheme, "", network, nil)
	}

	if payload.Network != requirements.Network {
		return nil, x402.NewVerifyError(x402.ReasonChainIDMismatch, "", network, nil)
	}

	var extraMap map[string]interface{}
	if requirements.Extra != nil {
		if err := json.Unmarshal(*requirements.Extra, &extraMap); err != nil {
			return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
		}
	}

	feePayerStr, ok := extraMap["feePayer"].(string)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, fmt.Errorf("missing fee payer"))
	}

	signerAddresses := f.signer.GetAddresses(ctx, string(network))
	signerAddressStrs := make([]string, len(signerAddresses))
	for i, addr := range signerAddresses {
		signerAddressStrs[i] = addr.String()
	}

	feePayerManaged := false
	for _, addr := range signerAddressStrs {
		if addr == feePayerStr {
			feePayerManaged = true
			break
		}
	}
	if !feePayerManaged {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, fmt.Errorf("fee payer not managed by facilitator"))
	}

	solanaPayload, err := svm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	tx, err := svm.DecodeTransaction(solanaPayload.Transaction)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	const coreInstructionCount = 3
	if err := f.policy.Validate(tx, coreInstructionCount); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	if err := f.verifyComputeLimitInstruction(tx, tx.Message.Instructions[0]); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	if err := f.verifyComputePriceInstruction(tx, tx.Message.Instructions[1]); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	transferIdx, err := svm.FindTransferInstruction(tx, 2)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	payer, err := svm.GetTokenPayerFromTransaction(tx)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, payer, network, err)
	}

	// V1: required amount comes from MaxAmountRequired, not Amount.
	reqStruct := x402.PaymentRequirements{
		Scheme:  requirements.Scheme,
		Network: requirements.Network,
		Asset:   requirements.Asset,
		Amount:  requirements.MaxAmountRequired,
		PayTo:   requirements.PayTo,
	}

	if err := f.verifyTransferInstruction(tx, tx.Message.Instructions[transferIdx], reqStruct, signerAddressStrs); err != nil {
		return nil, x402.NewVerifyError(svmTransferInstructionReason(err), payer, network, err)
	}

	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, payer, network, err)
	}

	if err := f.policy.CheckFeePayerNotInInstructions(tx, feePayer); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, payer, network, err)
	}

	if err := f.signer.SignTransaction(ctx, tx, feePayer, requirements.Network); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonUnexpectedError, payer, network, err)
	}

	if err := f.signer.SimulateTransaction(ctx, tx, requirements.Network); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonTransactionSimulation, payer, network, err)
	}

	return &x402.VerifyResponse{
		IsValid: true,
		Payer:   payer,
	}, nil
}

// svmTransferInstructionReason maps a verifyTransferInstruction failure to
// the wire-level reason it corresponds to, since the internal error carries
// the specific structural complaint but callers only expose the closed enum.
func svmTransferInstructionReason(err error) string {
	switch {
	case strings.Contains(err.Error(), "amount"):
		return x402.ReasonInvalidPaymentAmount
	case strings.Contains(err.Error(), "mint_mismatch"):
		return x402.ReasonAssetMismatch
	case strings.Contains(err.Error(), "recipient_mismatch"):
		return x402.ReasonRecipientMismatch
	default:
		return x402.ReasonInvalidFormat
	}
}

// Settle settles a V1 payment by submitting the transaction.
func (f *ExactSvmSchemeV1) Settle(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (*x402.SettleResponse, error) {
	network := x402.Network(requirements.Network)

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		ve := &x402.VerifyError{}
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.Reason, ve.Payer, ve.Network, "", ve.Err)
		}
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, "", network, "", err)
	}

	solanaPayload, err := svm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	tx, err := svm.DecodeTransaction(solanaPayload.Transaction)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	var extraMap map[string]interface{}
	if requirements.Extra != nil {
		if err := json.Unmarshal(*requirements.Extra, &extraMap); err != nil {
			return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
		}
	}

	feePayerStr, ok := extraMap["feePayer"].(string)
	if !ok {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", fmt.Errorf("missing fee payer"))
	}

	expectedFeePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	actualFeePayer := tx.Message.AccountKeys[0]
	if actualFeePayer != expectedFeePayer {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "",
			fmt.Errorf("expected %s, got %s", expectedFeePayer, actualFeePayer))
	}

	if err := f.signer.SignTransaction(ctx, tx, expectedFeePayer, requirements.Network); err != nil {
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, "", err)
	}

	signature, err := f.signer.SendTransaction(ctx, tx, requirements.Network)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, "", err)
	}

	if err := f.signer.ConfirmTransaction(ctx, signature, requirements.Network); err != nil {
		return nil, x402.NewSettleError(x402.ReasonTransactionSimulation, verifyResp.Payer, network, signature.String(), err)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: signature.String(),
		Network:     network,
		Payer:       verifyResp.Payer,
	}, nil
}

func (f *ExactSvmSchemeV1) verifyComputeLimitInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 2 {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	limitInst, ok := decoded.Impl.(*computebudget.SetComputeUnitLimit)
	if !ok {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if limitInst.Units > svm.MaxComputeUnitLimit {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction_too_high")
	}
	return nil
}

func (f *ExactSvmSchemeV1) verifyComputePriceInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 3 {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	priceInst, ok := decoded.Impl.(*computebudget.SetComputeUnitPrice)
	if !ok {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if priceInst.MicroLamports > svm.MaxComputeUnitPriceMicrolamports {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction_too_high")
	}
	return nil
}

func (f *ExactSvmSchemeV1) verifyTransferInstruction(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirements,
	signerAddresses []string,
) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil || len(accounts) < 4 {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	authorityAddr := accounts[3].PublicKey.String()
	for _, signerAddr := range signerAddresses {
		if authorityAddr == signerAddr {
			return fmt.Errorf("invalid_exact_solana_payload_transaction_fee_payer_transferring_funds")
		}
	}

	mintAddr := accounts[1].PublicKey.String()
	if mintAddr != requirements.Asset {
		return fmt.Errorf("invalid_exact_solana_payload_mint_mismatch")
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_recipient_mismatch")
	}

	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_mint_mismatch")
	}

	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_recipient_mismatch")
	}

	destATA := transferChecked.GetDestinationAccount().PublicKey
	if destATA.String() != expectedDestATA.String() {
		return fmt.Errorf("invalid_exact_solana_payload_recipient_mismatch")
	}

	requiredAmount, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_amount_insufficient")
	}

	if *transferChecked.Amount != requiredAmount {
		return fmt.Errorf("invalid_exact_solana_payload_amount_mismatch")
	}

	return nil
}
