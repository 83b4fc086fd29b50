package evm

import (
	"encoding/json"
	"fmt"
)

// Permit2TokenPermissions is the Permit2 PermitTransferFrom "permitted" leaf:
// the token and maximum amount the owner's signature authorizes moving.
type Permit2TokenPermissions struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Permit2Permit is the Permit2 PermitTransferFrom struct signed by the owner.
type Permit2Permit struct {
	Permitted Permit2TokenPermissions `json:"permitted"`
	Nonce     string                  `json:"nonce"`
	Deadline  string                  `json:"deadline"`
}

// Permit2Witness is the x402 extension data bound into the Permit2 signature
// via SignatureTransfer's witness mechanism, so a Permit2 signature commits
// to a specific recipient and validity window the way an EIP-3009
// authorization does natively.
type Permit2Witness struct {
	To         string `json:"to"`
	ValidAfter string `json:"validAfter"`
	Extra      string `json:"extra"`
}

// ExactPermit2Payload is the opaque "exact" scheme payload carried inside
// PaymentPayload.Payload when the payer signs a Permit2 PermitTransferFrom
// instead of an EIP-3009 authorization.
type ExactPermit2Payload struct {
	Signature string          `json:"signature"`
	Owner     string          `json:"owner"`
	Permit    Permit2Permit   `json:"permit"`
	Witness   Permit2Witness  `json:"witness"`
}

// IsPermit2Payload reports whether raw carries a Permit2 payload (identified
// by the presence of a "permit" field) rather than a plain EIP-3009
// authorization.
func IsPermit2Payload(raw map[string]interface{}) bool {
	_, ok := raw["permit"]
	return ok
}

// Permit2PayloadFromMap decodes the opaque payload map into an
// ExactPermit2Payload by round-tripping through JSON, the same pattern
// PayloadFromMap uses for EIP-3009 payloads.
func Permit2PayloadFromMap(raw map[string]interface{}) (*ExactPermit2Payload, error) {
	if raw == nil {
		return nil, fmt.Errorf("payload is empty")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var payload ExactPermit2Payload
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal evm permit2 payload: %w", err)
	}
	return &payload, nil
}
