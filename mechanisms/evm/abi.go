package evm

// Function name constants for the EIP-3009 / EIP-1271 contract surface the
// exact scheme's facilitator calls via ReadContract/WriteContract.
const (
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionAuthorizationState        = "authorizationState"
	FunctionIsValidSignature          = "isValidSignature"
	FunctionIsValidSigWithSideEffects = "isValidSigWithSideEffects"
	FunctionPermit2ProxySettle        = "settle"
	FunctionAllowance                 = "allowance"
)

// UniversalSigValidatorAddress is the canonical deterministic-deployment
// address of the ERC-6492 UniversalSigValidator contract, used to validate a
// (possibly counterfactual) smart wallet's signature and simulate its
// downstream side effects in a single eth_call.
const UniversalSigValidatorAddress = "0xdAcD51A54883eb67D95FAEb2BBfdC4a9a6BD2a3B"

// Permit2Address is the canonical deterministic-deployment address of the
// Permit2 contract, identical across every chain it has been deployed to.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// Settlement error reasons surfaced through x402.SettleError.Reason.
const (
	ErrSmartWalletDeploymentFailed = "smart_wallet_deployment_failed"
	ErrUndeployedSmartWallet       = "undeployed_smart_wallet"
)

// EIP1271MagicValue is the 4-byte return value a contract wallet's
// isValidSignature must return to signal a valid signature.
const EIP1271MagicValue = "0x1626ba7e"

// AuthorizationStateABI is the EIP-3009 authorizationState(address,bytes32)
// view function, used to check whether a nonce has already been consumed.
const AuthorizationStateABI = `[{
	"constant": true,
	"inputs": [
		{"name": "authorizer", "type": "address"},
		{"name": "nonce", "type": "bytes32"}
	],
	"name": "authorizationState",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "view",
	"type": "function"
}]`

// TransferWithAuthorizationVRSABI is the EOA overload of
// transferWithAuthorization, taking a v/r/s signature triple.
const TransferWithAuthorizationVRSABI = `[{
	"constant": false,
	"inputs": [
		{"name": "from", "type": "address"},
		{"name": "to", "type": "address"},
		{"name": "value", "type": "uint256"},
		{"name": "validAfter", "type": "uint256"},
		{"name": "validBefore", "type": "uint256"},
		{"name": "nonce", "type": "bytes32"},
		{"name": "v", "type": "uint8"},
		{"name": "r", "type": "bytes32"},
		{"name": "s", "type": "bytes32"}
	],
	"name": "transferWithAuthorization",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// TransferWithAuthorizationBytesABI is the smart-wallet overload of
// transferWithAuthorization, taking an arbitrary-length signature blob
// validated by the wallet via EIP-1271.
const TransferWithAuthorizationBytesABI = `[{
	"constant": false,
	"inputs": [
		{"name": "from", "type": "address"},
		{"name": "to", "type": "address"},
		{"name": "value", "type": "uint256"},
		{"name": "validAfter", "type": "uint256"},
		{"name": "validBefore", "type": "uint256"},
		{"name": "nonce", "type": "bytes32"},
		{"name": "signature", "type": "bytes"}
	],
	"name": "transferWithAuthorization",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// IsValidSignatureABI is the EIP-1271 isValidSignature(bytes32,bytes) view
// function implemented by contract wallets.
const IsValidSignatureABI = `[{
	"constant": true,
	"inputs": [
		{"name": "hash", "type": "bytes32"},
		{"name": "signature", "type": "bytes"}
	],
	"name": "isValidSignature",
	"outputs": [{"name": "", "type": "bytes4"}],
	"stateMutability": "view",
	"type": "function"
}]`

// ERC20BalanceOfABI is the standard ERC-20 balanceOf(address) view function.
const ERC20BalanceOfABI = `[{
	"constant": true,
	"inputs": [{"name": "account", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

// ERC20AllowanceABI is the standard ERC-20 allowance(address,address) view
// function, used to check an owner's approval to the Permit2 contract before
// a Permit2 signature-transfer settlement is attempted.
const ERC20AllowanceABI = `[{
	"constant": true,
	"inputs": [
		{"name": "owner", "type": "address"},
		{"name": "spender", "type": "address"}
	],
	"name": "allowance",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

// IsValidSigWithSideEffectsABI is the UniversalSigValidator's
// isValidSigWithSideEffects(address,bytes32,bytes) function. Unlike a plain
// EIP-1271 isValidSignature call against the wallet itself, this entry point
// deploys an undeployed counterfactual wallet (via the ERC-6492 factory
// calldata embedded in signature) for the duration of the call, so it
// validates both deployed and counterfactual wallets through one code path.
// Called read-only (eth_call), its deployment side effects never persist.
const IsValidSigWithSideEffectsABI = `[{
	"inputs": [
		{"name": "_signer", "type": "address"},
		{"name": "_hash", "type": "bytes32"},
		{"name": "_signature", "type": "bytes"}
	],
	"name": "isValidSigWithSideEffects",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// Permit2ProxySettleABI is the IX402Permit2Proxy.settle entry point: given a
// Permit2 PermitTransferFrom signed by owner plus an x402 witness binding the
// transfer to a recipient and validity window, it calls Permit2's
// permitWitnessTransferFrom on the owner's behalf.
const Permit2ProxySettleABI = `[{
	"inputs": [
		{
			"components": [
				{
					"components": [
						{"name": "token", "type": "address"},
						{"name": "amount", "type": "uint256"}
					],
					"name": "permitted",
					"type": "tuple"
				},
				{"name": "nonce", "type": "uint256"},
				{"name": "deadline", "type": "uint256"}
			],
			"name": "permit",
			"type": "tuple"
		},
		{"name": "owner", "type": "address"},
		{
			"components": [
				{"name": "to", "type": "address"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "extra", "type": "bytes32"}
			],
			"name": "witness",
			"type": "tuple"
		},
		{"name": "signature", "type": "bytes"}
	],
	"name": "settle",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`
