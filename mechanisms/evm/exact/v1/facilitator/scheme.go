package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/qntx/x402"
	"github.com/qntx/x402/mechanisms/evm"
	"github.com/qntx/x402/mechanisms/evm/erc4337"
	"github.com/qntx/x402/types"
)

// ExactEvmSchemeV1Config holds configuration for the ExactEvmSchemeV1 facilitator
type ExactEvmSchemeV1Config struct {
	// DeployERC4337WithEIP6492 enables automatic deployment of ERC-4337 smart wallets
	// via EIP-6492 when encountering undeployed contract signatures during settlement
	DeployERC4337WithEIP6492 bool

	// Multicall3 batches a counterfactual wallet's factory deployment and its
	// transferWithAuthorization call into one atomic transaction, and
	// simulates the same batch during verification. If nil, a client against
	// the canonical Multicall3 deployment is constructed on demand.
	Multicall3 *erc4337.Multicall3Client

	// Permit2ProxyAddress is the deployed IX402Permit2Proxy contract used to
	// settle the Permit2 payload variant. Required only if a payer ever
	// submits a Permit2 signature instead of an EIP-3009 authorization.
	Permit2ProxyAddress string
}

// ExactEvmSchemeV1 implements the SchemeNetworkFacilitatorV1 interface for EVM exact payments (V1)
type ExactEvmSchemeV1 struct {
	signer evm.FacilitatorEvmSigner
	config ExactEvmSchemeV1Config
}

// NewExactEvmSchemeV1 creates a new ExactEvmSchemeV1
// Args:
//
//	signer: The EVM signer for facilitator operations
//	config: Optional configuration (nil uses defaults)
//
// Returns:
//
//	Configured ExactEvmSchemeV1 instance
func NewExactEvmSchemeV1(signer evm.FacilitatorEvmSigner, config *ExactEvmSchemeV1Config) *ExactEvmSchemeV1 {
	cfg := ExactEvmSchemeV1Config{}
	if config != nil {
		cfg = *config
	}
	return &ExactEvmSchemeV1{
		signer: signer,
		config: cfg,
	}
}

// Scheme returns the scheme identifier
func (f *ExactEvmSchemeV1) Scheme() string {
	return evm.SchemeExact
}

// CaipFamily returns the CAIP family pattern this facilitator supports
func (f *ExactEvmSchemeV1) CaipFamily() string {
	return "eip155:*"
}

// GetExtra returns mechanism-specific extra data for the supported kinds endpoint.
// For EVM, no extra data is needed.
func (f *ExactEvmSchemeV1) GetExtra(_ x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns signer addresses used by this facilitator.
// Returns all addresses this facilitator can use for signing/settling transactions.
func (f *ExactEvmSchemeV1) GetSigners(_ x402.Network) []string {
	return f.signer.GetAddresses()
}

// multicall3 returns the configured Multicall3 client, or a client against
// the canonical deployment if none was configured.
func (f *ExactEvmSchemeV1) multicall3() *erc4337.Multicall3Client {
	if f.config.Multicall3 != nil {
		return f.config.Multicall3
	}
	return erc4337.NewMulticall3Client(f.signer, common.Address{})
}

// Verify verifies a V1 payment payload against requirements
func (f *ExactEvmSchemeV1) Verify(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (*x402.VerifyResponse, error) {
	network := x402.Network(requirements.Network)

	// Validate scheme (v1 has scheme at top level)
	if payload.Scheme != evm.SchemeExact || requirements.Scheme != evm.SchemeExact {
		return nil, x402.NewVerifyError(x402.ReasonUnsupportedScheme, "", network, nil)
	}

	// Validate network (v1 has network at top level)
	if payload.Network != requirements.Network {
		return nil, x402.NewVerifyError(x402.ReasonChainIDMismatch, "", network, nil)
	}

	if evm.IsPermit2Payload(payload.Payload) {
		return f.verifyPermit2(ctx, payload, requirements)
	}

	// Parse EVM payload
	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	// Validate signature exists
	if evmPayload.Signature == "" {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, fmt.Errorf("missing signature"))
	}

	// Get network configuration
	networkStr := string(requirements.Network)
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonUnsupportedChain, "", network, err)
	}

	// Get asset info
	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonAssetMismatch, "", network, err)
	}

	// Check EIP-712 domain parameters
	var extraMap map[string]interface{}
	if requirements.Extra != nil {
		if err := json.Unmarshal(*requirements.Extra, &extraMap); err != nil {
			return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, err)
		}
	}

	tokenName, _ := extraMap["name"].(string)
	tokenVersion, _ := extraMap["version"].(string)
	if tokenName == "" {
		tokenName = assetInfo.Name
	}
	if tokenVersion == "" {
		tokenVersion = assetInfo.Version
	}
	if tokenName == "" || tokenVersion == "" {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, fmt.Errorf("missing eip-712 domain name/version"))
	}

	// Validate authorization matches requirements
	if !strings.EqualFold(evmPayload.Authorization.To, requirements.PayTo) {
		return nil, x402.NewVerifyError(x402.ReasonRecipientMismatch, evmPayload.Authorization.From, network, nil)
	}

	// Parse and validate amount
	authValue, ok := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, fmt.Errorf("invalid value: %s", evmPayload.Authorization.Value))
	}

	// V1: Use MaxAmountRequired field
	requiredValue, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, fmt.Errorf("invalid amount: %s", requirements.MaxAmountRequired))
	}

	if authValue.Cmp(requiredValue) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonInvalidPaymentAmount, evmPayload.Authorization.From, network, nil)
	}

	// Validity window: validBefore must still be in the future by at least
	// the expiration grace, validAfter must not be in the future.
	now := time.Now().Unix()
	validBefore, ok := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, nil)
	}
	if validBefore.Cmp(big.NewInt(now+int64(evm.DefaultExpirationGrace.Seconds()))) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonInvalidPaymentExpired, evmPayload.Authorization.From, network, nil)
	}
	validAfter, ok := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, nil)
	}
	if validAfter.Cmp(big.NewInt(now)) > 0 {
		return nil, x402.NewVerifyError(x402.ReasonInvalidPaymentEarly, evmPayload.Authorization.From, network, nil)
	}

	// Check if nonce has been used
	nonceUsed, err := f.checkNonceUsed(ctx, evmPayload.Authorization.From, evmPayload.Authorization.Nonce, assetInfo.Address)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonUnexpectedError, evmPayload.Authorization.From, network, err)
	}
	if nonceUsed {
		return nil, x402.NewVerifyError(x402.ReasonNonceAlreadyUsed, evmPayload.Authorization.From, network, nil)
	}

	// Check balance
	balance, err := f.signer.GetBalance(ctx, evmPayload.Authorization.From, assetInfo.Address)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonUnexpectedError, evmPayload.Authorization.From, network, err)
	}
	if balance.Cmp(authValue) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonInsufficientFunds, evmPayload.Authorization.From, network, nil)
	}

	// Verify signature by simulating the real transferWithAuthorization call
	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, evmPayload.Authorization.From, network, err)
	}

	if err := f.simulateTransfer(ctx, evmPayload.Authorization, signatureBytes, assetInfo.Address, config.ChainID, tokenName, tokenVersion); err != nil {
		var ve *x402.VerifyError
		if errors.As(err, &ve) {
			ve.Payer = evmPayload.Authorization.From
			ve.Network = network
			return nil, ve
		}
		return nil, x402.NewVerifyError(x402.ReasonTransactionSimulation, evmPayload.Authorization.From, network, err)
	}

	return &x402.VerifyResponse{
		IsValid: true,
		Payer:   evmPayload.Authorization.From,
	}, nil
}

// checkNonceUsed checks if a nonce has already been used
func (f *ExactEvmSchemeV1) checkNonceUsed(ctx context.Context, from string, nonce string, tokenAddress string) (bool, error) {
	nonceBytes, err := evm.HexToBytes(nonce)
	if err != nil {
		return false, err
	}

	result, err := f.signer.ReadContract(
		ctx,
		tokenAddress,
		evm.AuthorizationStateABI,
		evm.FunctionAuthorizationState,
		common.HexToAddress(from),
		[32]byte(nonceBytes),
	)
	if err != nil {
		return false, err
	}

	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from authorizationState")
	}

	return used, nil
}

// transferAuthorizationArgs builds the two possible transferWithAuthorization
// argument lists (VRS and bytes overloads) for authorization, keyed by
// signature kind.
func transferAuthorizationArgs(
	authorization evm.ExactEIP3009Authorization,
	signature []byte,
	kind evm.SignatureKind,
) (abiJSON string, args []interface{}, err error) {
	value, ok := new(big.Int).SetString(authorization.Value, 10)
	if !ok {
		return "", nil, fmt.Errorf("invalid authorization value %q", authorization.Value)
	}
	validAfter, ok := new(big.Int).SetString(authorization.ValidAfter, 10)
	if !ok {
		return "", nil, fmt.Errorf("invalid validAfter %q", authorization.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(authorization.ValidBefore, 10)
	if !ok {
		return "", nil, fmt.Errorf("invalid validBefore %q", authorization.ValidBefore)
	}
	nonceBytes, err := evm.HexToBytes(authorization.Nonce)
	if err != nil {
		return "", nil, fmt.Errorf("invalid nonce: %w", err)
	}

	from := common.HexToAddress(authorization.From)
	to := common.HexToAddress(authorization.To)

	if kind == evm.SignatureKindEOA {
		r := signature[0:32]
		s := signature[32:64]
		v := signature[64]
		return evm.TransferWithAuthorizationVRSABI, []interface{}{
			from, to, value, validAfter, validBefore, [32]byte(nonceBytes),
			v, [32]byte(r), [32]byte(s),
		}, nil
	}

	return evm.TransferWithAuthorizationBytesABI, []interface{}{
		from, to, value, validAfter, validBefore, [32]byte(nonceBytes),
		signature,
	}, nil
}

// simulateTransfer classifies signature per spec 4.F.4 and simulates the
// exact on-chain call the classification implies: an EOA signature is
// checked by dry-running transferWithAuthorization's VRS overload, a
// deployed smart wallet's by dry-running the bytes overload, and an
// ERC-6492 wallet's (deployed or still counterfactual) by dry-running a
// Multicall3 aggregate of isValidSigWithSideEffects and the bytes overload
// together.
func (f *ExactEvmSchemeV1) simulateTransfer(
	ctx context.Context,
	authorization evm.ExactEIP3009Authorization,
	signature []byte,
	tokenAddress string,
	chainID *big.Int,
	tokenName string,
	tokenVersion string,
) error {
	kind, sigData, err := evm.ClassifySignature(signature)
	if err != nil {
		return x402.NewVerifyError(x402.ReasonInvalidSignature, "", "", err)
	}

	switch kind {
	case evm.SignatureKindEOA:
		abiJSON, args, err := transferAuthorizationArgs(authorization, signature, kind)
		if err != nil {
			return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
		}
		if _, err := f.signer.ReadContract(ctx, tokenAddress, abiJSON, evm.FunctionTransferWithAuthorization, args...); err != nil {
			return x402.NewVerifyError(x402.ReasonTransactionSimulation, "", "", err)
		}
		return nil

	case evm.SignatureKindEIP1271:
		hash32, err := authorizationHash(authorization, chainID, tokenAddress, tokenName, tokenVersion)
		if err != nil {
			return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
		}
		result, err := f.signer.ReadContract(ctx, authorization.From, evm.IsValidSignatureABI, evm.FunctionIsValidSignature, hash32, sigData.InnerSignature)
		if err != nil {
			return x402.NewVerifyError(x402.ReasonInvalidSignature, "", "", err)
		}
		if !isEIP1271Magic(result) {
			return x402.NewVerifyError(x402.ReasonInvalidSignature, "", "", fmt.Errorf("isValidSignature did not return the EIP-1271 magic value"))
		}

		abiJSON, args, err := transferAuthorizationArgs(authorization, sigData.InnerSignature, kind)
		if err != nil {
			return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
		}
		if _, err := f.signer.ReadContract(ctx, tokenAddress, abiJSON, evm.FunctionTransferWithAuthorization, args...); err != nil {
			return x402.NewVerifyError(x402.ReasonTransactionSimulation, "", "", err)
		}
		return nil

	case evm.SignatureKindEIP6492:
		return f.simulateEIP6492Transfer(ctx, authorization, signature, sigData, tokenAddress, chainID, tokenName, tokenVersion)

	default:
		return x402.NewVerifyError(x402.ReasonInvalidSignature, "", "", fmt.Errorf("unknown signature kind %d", kind))
	}
}

// simulateEIP6492Transfer dry-runs isValidSigWithSideEffects and the bytes
// overload of transferWithAuthorization as a single Multicall3 aggregate3
// batch, so an undeployed counterfactual wallet is "deployed" for the
// duration of the simulated call.
func (f *ExactEvmSchemeV1) simulateEIP6492Transfer(
	ctx context.Context,
	authorization evm.ExactEIP3009Authorization,
	signature []byte,
	sigData *evm.ERC6492SignatureData,
	tokenAddress string,
	chainID *big.Int,
	tokenName string,
	tokenVersion string,
) error {
	hash32, err := authorizationHash(authorization, chainID, tokenAddress, tokenName, tokenVersion)
	if err != nil {
		return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
	}

	validatorCalldata, err := erc4337.PackCall(
		evm.IsValidSigWithSideEffectsABI,
		evm.FunctionIsValidSigWithSideEffects,
		common.HexToAddress(authorization.From),
		hash32,
		signature,
	)
	if err != nil {
		return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
	}

	transferABI, transferArgs, err := transferAuthorizationArgs(authorization, sigData.InnerSignature, evm.SignatureKindEIP1271)
	if err != nil {
		return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
	}
	transferCalldata, err := erc4337.PackCall(transferABI, evm.FunctionTransferWithAuthorization, transferArgs...)
	if err != nil {
		return x402.NewVerifyError(x402.ReasonInvalidFormat, "", "", err)
	}

	results, err := f.multicall3().SimulateAggregate3(ctx, []erc4337.Call3{
		{Target: common.HexToAddress(evm.UniversalSigValidatorAddress), AllowFailure: false, CallData: validatorCalldata},
		{Target: common.HexToAddress(tokenAddress), AllowFailure: false, CallData: transferCalldata},
	})
	if err != nil {
		return x402.NewVerifyError(x402.ReasonTransactionSimulation, "", "", err)
	}
	if len(results) != 2 {
		return x402.NewVerifyError(x402.ReasonTransactionSimulation, "", "", fmt.Errorf("expected 2 simulated calls, got %d", len(results)))
	}
	if !results[0].Success {
		return x402.NewVerifyError(x402.ReasonInvalidSignature, "", "", fmt.Errorf("isValidSigWithSideEffects reverted"))
	}
	if !results[1].Success {
		return x402.NewVerifyError(x402.ReasonTransactionSimulation, "", "", fmt.Errorf("transferWithAuthorization simulation reverted"))
	}
	return nil
}

// authorizationHash hashes authorization the same way HashEIP3009Authorization
// does, wrapped for reuse by the signature-classification call sites that
// only need the hash.
func authorizationHash(
	authorization evm.ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([32]byte, error) {
	var out [32]byte
	hash, err := evm.HashEIP3009Authorization(authorization, chainID, verifyingContract, tokenName, tokenVersion)
	if err != nil {
		return out, err
	}
	copy(out[:], hash)
	return out, nil
}

// isEIP1271Magic reports whether result (the decoded return value of an
// isValidSignature call) equals the EIP-1271 magic value.
func isEIP1271Magic(result interface{}) bool {
	switch v := result.(type) {
	case [4]byte:
		return evm.BytesToHex(v[:]) == evm.EIP1271MagicValue
	case []byte:
		return len(v) == 4 && evm.BytesToHex(v) == evm.EIP1271MagicValue
	default:
		return false
	}
}

// verifyPermit2 verifies a Permit2 PermitTransferFrom payload by simulating
// the configured proxy's settle call, the Permit2 analogue of the EIP-3009
// authorization pipeline above.
func (f *ExactEvmSchemeV1) verifyPermit2(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (*x402.VerifyResponse, error) {
	network := x402.Network(requirements.Network)

	if f.config.Permit2ProxyAddress == "" {
		return nil, x402.NewVerifyError(x402.ReasonUnsupportedScheme, "", network, fmt.Errorf("permit2 variant not configured"))
	}

	permit2Payload, err := evm.Permit2PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, "", network, err)
	}

	if !strings.EqualFold(permit2Payload.Witness.To, requirements.PayTo) {
		return nil, x402.NewVerifyError(x402.ReasonRecipientMismatch, permit2Payload.Owner, network, nil)
	}
	if !strings.EqualFold(permit2Payload.Permit.Permitted.Token, requirements.Asset) {
		return nil, x402.NewVerifyError(x402.ReasonAssetMismatch, permit2Payload.Owner, network, nil)
	}

	amount, ok := new(big.Int).SetString(permit2Payload.Permit.Permitted.Amount, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, permit2Payload.Owner, network, nil)
	}
	requiredAmount, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, permit2Payload.Owner, network, nil)
	}
	if amount.Cmp(requiredAmount) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonInvalidPaymentAmount, permit2Payload.Owner, network, nil)
	}

	now := time.Now().Unix()
	deadline, ok := new(big.Int).SetString(permit2Payload.Permit.Deadline, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, permit2Payload.Owner, network, nil)
	}
	if deadline.Cmp(big.NewInt(now+int64(evm.DefaultExpirationGrace.Seconds()))) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonInvalidPaymentExpired, permit2Payload.Owner, network, nil)
	}
	validAfter, ok := new(big.Int).SetString(permit2Payload.Witness.ValidAfter, 10)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, permit2Payload.Owner, network, nil)
	}
	if validAfter.Cmp(big.NewInt(now)) > 0 {
		return nil, x402.NewVerifyError(x402.ReasonInvalidPaymentEarly, permit2Payload.Owner, network, nil)
	}

	// The owner's signature alone only authorizes up to whatever it has
	// separately approved Permit2 to move.
	allowanceResult, err := f.signer.ReadContract(
		ctx,
		permit2Payload.Permit.Permitted.Token,
		evm.ERC20AllowanceABI,
		evm.FunctionAllowance,
		common.HexToAddress(permit2Payload.Owner),
		common.HexToAddress(evm.Permit2Address),
	)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonUnexpectedError, permit2Payload.Owner, network, err)
	}
	allowance, ok := allowanceResult.(*big.Int)
	if !ok {
		return nil, x402.NewVerifyError(x402.ReasonUnexpectedError, permit2Payload.Owner, network, fmt.Errorf("unexpected allowance return type %T", allowanceResult))
	}
	if allowance.Cmp(amount) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonPermit2AllowanceInsufficient, permit2Payload.Owner, network, nil)
	}

	balance, err := f.signer.GetBalance(ctx, permit2Payload.Owner, permit2Payload.Permit.Permitted.Token)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonUnexpectedError, permit2Payload.Owner, network, err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, x402.NewVerifyError(x402.ReasonInsufficientFunds, permit2Payload.Owner, network, nil)
	}

	signatureBytes, err := evm.HexToBytes(permit2Payload.Signature)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, permit2Payload.Owner, network, err)
	}

	args, err := permit2SettleArgs(*permit2Payload, signatureBytes)
	if err != nil {
		return nil, x402.NewVerifyError(x402.ReasonInvalidFormat, permit2Payload.Owner, network, err)
	}
	if _, err := f.signer.ReadContract(ctx, f.config.Permit2ProxyAddress, evm.Permit2ProxySettleABI, evm.FunctionPermit2ProxySettle, args...); err != nil {
		return nil, x402.NewVerifyError(x402.ReasonTransactionSimulation, permit2Payload.Owner, network, err)
	}

	return &x402.VerifyResponse{
		IsValid: true,
		Payer:   permit2Payload.Owner,
	}, nil
}

// permit2SettleArgs packs the IX402Permit2Proxy.settle arguments from a
// decoded Permit2 payload and its signature bytes.
func permit2SettleArgs(payload evm.ExactPermit2Payload, signature []byte) ([]interface{}, error) {
	amount, ok := new(big.Int).SetString(payload.Permit.Permitted.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid permit amount %q", payload.Permit.Permitted.Amount)
	}
	nonce, ok := new(big.Int).SetString(payload.Permit.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("invalid permit nonce %q", payload.Permit.Nonce)
	}
	deadline, ok := new(big.Int).SetString(payload.Permit.Deadline, 10)
	if !ok {
		return nil, fmt.Errorf("invalid permit deadline %q", payload.Permit.Deadline)
	}
	validAfter, ok := new(big.Int).SetString(payload.Witness.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid witness validAfter %q", payload.Witness.ValidAfter)
	}
	extraBytes, err := evm.HexToBytes(payload.Witness.Extra)
	if err != nil {
		return nil, fmt.Errorf("invalid witness extra: %w", err)
	}
	var extra32 [32]byte
	copy(extra32[:], extraBytes)

	permitTuple := struct {
		Permitted struct {
			Token  common.Address
			Amount *big.Int
		}
		Nonce    *big.Int
		Deadline *big.Int
	}{}
	permitTuple.Permitted.Token = common.HexToAddress(payload.Permit.Permitted.Token)
	permitTuple.Permitted.Amount = amount
	permitTuple.Nonce = nonce
	permitTuple.Deadline = deadline

	witnessTuple := struct {
		To         common.Address
		ValidAfter *big.Int
		Extra      [32]byte
	}{
		To:         common.HexToAddress(payload.Witness.To),
		ValidAfter: validAfter,
		Extra:      extra32,
	}

	return []interface{}{
		permitTuple,
		common.HexToAddress(payload.Owner),
		witnessTuple,
		signature,
	}, nil
}

// Settle settles a V1 payment on-chain
func (f *ExactEvmSchemeV1) Settle(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (*x402.SettleResponse, error) {
	network := x402.Network(payload.Network)

	// First verify the payment
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		var ve *x402.VerifyError
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.Reason, ve.Payer, ve.Network, "", ve.Err)
		}
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, "", network, "", err)
	}

	if evm.IsPermit2Payload(payload.Payload) {
		return f.settlePermit2(ctx, payload, verifyResp)
	}

	// Parse EVM payload
	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	// Get asset info
	networkStr := string(requirements.Network)
	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonAssetMismatch, verifyResp.Payer, network, "", err)
	}

	// Parse signature
	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	kind, sigData, err := evm.ClassifySignature(signatureBytes)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidSignature, verifyResp.Payer, network, "", err)
	}

	// Check if wallet needs deployment (undeployed smart wallet with ERC-6492)
	needsDeployment := false
	if kind == evm.SignatureKindEIP6492 {
		code, err := f.signer.GetCode(ctx, evmPayload.Authorization.From)
		if err != nil {
			return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, "", err)
		}

		if len(code) == 0 {
			if !f.config.DeployERC4337WithEIP6492 {
				return nil, x402.NewSettleError(evm.ErrUndeployedSmartWallet, verifyResp.Payer, network, "", nil)
			}
			// Deployment is folded into the atomic Multicall3 batch below.
			needsDeployment = true
		}
	}

	transferKind := kind
	signatureForTransfer := signatureBytes
	if kind == evm.SignatureKindEIP6492 {
		transferKind = evm.SignatureKindEIP1271
		signatureForTransfer = sigData.InnerSignature
	}

	transferABI, transferArgs, err := transferAuthorizationArgs(evmPayload.Authorization, signatureForTransfer, transferKind)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	var txHash string
	if needsDeployment {
		factoryAddr := common.BytesToAddress(sigData.Factory[:])
		transferCalldata, packErr := erc4337.PackCall(transferABI, evm.FunctionTransferWithAuthorization, transferArgs...)
		if packErr != nil {
			return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", packErr)
		}
		txHash, err = f.multicall3().Aggregate3(ctx, []erc4337.Call3{
			{Target: factoryAddr, AllowFailure: true, CallData: sigData.FactoryCalldata},
			{Target: common.HexToAddress(assetInfo.Address), AllowFailure: false, CallData: transferCalldata},
		})
	} else {
		txHash, err = f.signer.WriteContract(ctx, assetInfo.Address, transferABI, evm.FunctionTransferWithAuthorization, transferArgs...)
	}

	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, "", err)
	}

	// Wait for transaction confirmation
	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, txHash, err)
	}

	if receipt.Status != evm.TxStatusSuccess {
		return nil, x402.NewSettleError(x402.ReasonTransactionSimulation, verifyResp.Payer, network, txHash, nil)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     network,
		Payer:       verifyResp.Payer,
	}, nil
}

// settlePermit2 submits the already-verified Permit2 payload via the
// configured proxy's settle function.
func (f *ExactEvmSchemeV1) settlePermit2(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	verifyResp *x402.VerifyResponse,
) (*x402.SettleResponse, error) {
	network := x402.Network(payload.Network)

	permit2Payload, err := evm.Permit2PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}
	signatureBytes, err := evm.HexToBytes(permit2Payload.Signature)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}
	args, err := permit2SettleArgs(*permit2Payload, signatureBytes)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonInvalidFormat, verifyResp.Payer, network, "", err)
	}

	txHash, err := f.signer.WriteContract(ctx, f.config.Permit2ProxyAddress, evm.Permit2ProxySettleABI, evm.FunctionPermit2ProxySettle, args...)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, "", err)
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, x402.NewSettleError(x402.ReasonUnexpectedError, verifyResp.Payer, network, txHash, err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return nil, x402.NewSettleError(x402.ReasonTransactionSimulation, verifyResp.Payer, network, txHash, nil)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     network,
		Payer:       verifyResp.Payer,
	}, nil
}

// deploySmartWallet deploys an ERC-4337 smart wallet using the ERC-6492 factory
//
// This function sends the pre-encoded factory calldata directly as a transaction.
// The factoryCalldata already contains the complete encoded function call with selector.
//
// Args:
//
//	ctx: Context for cancellation
//	sigData: Parsed ERC-6492 signature containing factory address and calldata
//
// Returns:
//
//	error if deployment fails
func (f *ExactEvmSchemeV1) deploySmartWallet(
	ctx context.Context,
	sigData *evm.ERC6492SignatureData,
) error {
	factoryAddr := common.BytesToAddress(sigData.Factory[:])

	// Send the factory calldata directly - it already contains the encoded function call
	txHash, err := f.signer.SendTransaction(
		ctx,
		factoryAddr.Hex(),
		sigData.FactoryCalldata,
	)
	if err != nil {
		return fmt.Errorf("factory deployment transaction failed: %w", err)
	}

	// Wait for deployment transaction
	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("failed to wait for deployment: %w", err)
	}

	if receipt.Status != evm.TxStatusSuccess {
		return fmt.Errorf("deployment transaction reverted")
	}

	return nil
}
