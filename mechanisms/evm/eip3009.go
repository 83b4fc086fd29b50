package evm

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// ExactEIP3009Authorization is the EIP-3009 transferWithAuthorization message
// body, with all numeric fields kept as decimal strings for lossless JSON
// round-tripping.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEIP3009Payload is the opaque "exact" scheme payload carried inside
// PaymentPayload.Payload.
type ExactEIP3009Payload struct {
	Signature     string                     `json:"signature"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// ToMap converts the payload to the map[string]interface{} shape the
// protocol core stores in PaymentPayload.Payload.
func (p *ExactEIP3009Payload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"signature": p.Signature,
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
}

// PayloadFromMap decodes the opaque payload map back into an
// ExactEIP3009Payload by round-tripping through JSON, tolerating both
// map[string]interface{} and already-typed inputs.
func PayloadFromMap(raw map[string]interface{}) (*ExactEIP3009Payload, error) {
	if raw == nil {
		return nil, fmt.Errorf("payload is empty")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var payload ExactEIP3009Payload
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal evm exact payload: %w", err)
	}
	return &payload, nil
}

// CreateNonce generates a random 32-byte EIP-3009 nonce, hex-encoded.
func CreateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return BytesToHex(b), nil
}

// CreateValidityWindow returns (validAfter, validBefore) unix timestamps for
// an authorization that is valid starting skewTolerance before now, expiring
// after duration.
func CreateValidityWindow(duration, skewTolerance time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now()
	return big.NewInt(now.Add(-skewTolerance).Unix()), big.NewInt(now.Add(duration).Unix())
}
