package x402

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/qntx/x402/types"
)

// Mock V1 facilitator for testing
type mockSchemeNetworkFacilitatorV1 struct {
	scheme string
}

func (m *mockSchemeNetworkFacilitatorV1) Scheme() string {
	return m.scheme
}

func (m *mockSchemeNetworkFacilitatorV1) CaipFamily() string {
	return "test:*"
}

func (m *mockSchemeNetworkFacilitatorV1) GetExtra(_ Network) map[string]interface{} {
	return nil
}

func (m *mockSchemeNetworkFacilitatorV1) GetSigners(_ Network) []string {
	return []string{}
}

func (m *mockSchemeNetworkFacilitatorV1) Verify(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*VerifyResponse, error) {
	return &VerifyResponse{
		IsValid: true,
		Payer:   "0xmockpayer",
	}, nil
}

func (m *mockSchemeNetworkFacilitatorV1) Settle(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*SettleResponse, error) {
	return &SettleResponse{
		Success:     true,
		Transaction: "0xmocktx",
		Payer:       "0xmockpayer",
		Network:     Network(payload.Network),
	}, nil
}

// Mock V2 facilitator for testing (default, no suffix)
type mockSchemeNetworkFacilitator struct {
	scheme     string
	verifyFunc func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error)
	settleFunc func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*SettleResponse, error)
}

func (m *mockSchemeNetworkFacilitator) Scheme() string {
	return m.scheme
}

func (m *mockSchemeNetworkFacilitator) CaipFamily() string {
	return "test:*"
}

func (m *mockSchemeNetworkFacilitator) GetExtra(_ Network) map[string]interface{} {
	return nil
}

func (m *mockSchemeNetworkFacilitator) GetSigners(_ Network) []string {
	return []string{}
}

func (m *mockSchemeNetworkFacilitator) Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, payload, requirements)
	}
	return &VerifyResponse{
		IsValid: true,
		Payer:   "0xmockpayer",
	}, nil
}

func (m *mockSchemeNetworkFacilitator) Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*SettleResponse, error) {
	if m.settleFunc != nil {
		return m.settleFunc(ctx, payload, requirements)
	}
	return &SettleResponse{
		Success:     true,
		Transaction: "0xmocktx",
		Payer:       "0xmockpayer",
		Network:     Network(payload.Accepted.Network),
	}, nil
}

func TestNewx402Facilitator(t *testing.T) {
	facilitator := Newx402Facilitator()
	if facilitator == nil {
		t.Fatal("Expected facilitator to be created")
	}
	if facilitator.schemes == nil {
		t.Fatal("Expected schemes map to be initialized")
	}
	if facilitator.extensions == nil {
		t.Fatal("Expected extensions slice to be initialized")
	}
}

func TestFacilitatorRegister(t *testing.T) {
	facilitator := Newx402Facilitator()
	mockFacilitatorV2 := &mockSchemeNetworkFacilitator{scheme: "exact"}
	mockFacilitatorV1 := &mockSchemeNetworkFacilitatorV1{scheme: "exact"}

	// Test V2 registration (default)
	facilitator.Register([]Network{"eip155:1"}, mockFacilitatorV2)

	// Verify using GetSupported (no params needed - uses registered networks)
	supported := facilitator.GetSupported()
	v2Kinds := []SupportedKind{}
	for _, kind := range supported.Kinds {
		if kind.X402Version == 2 {
			v2Kinds = append(v2Kinds, kind)
		}
	}
	if len(v2Kinds) != 1 {
		t.Fatalf("Expected 1 V2 kind, got %d", len(v2Kinds))
	}
	if v2Kinds[0].Scheme != "exact" {
		t.Fatal("Expected exact scheme")
	}

	// Test V1 registration
	facilitator.RegisterV1([]Network{"eip155:1"}, mockFacilitatorV1)
	supported = facilitator.GetSupported()
	v1Kinds := []SupportedKind{}
	for _, kind := range supported.Kinds {
		if kind.X402Version == 1 {
			v1Kinds = append(v1Kinds, kind)
		}
	}
	if len(v1Kinds) != 1 {
		t.Fatalf("Expected 1 V1 kind, got %d", len(v1Kinds))
	}

	// Verify both V1 and V2 kinds are present
	if len(supported.Kinds) != 2 {
		t.Fatalf("Expected 2 total kinds, got %d", len(supported.Kinds))
	}
	v2Count := 0
	for _, kind := range supported.Kinds {
		if kind.X402Version == 2 {
			v2Count++
		}
	}
	if v2Count == 0 {
		t.Fatal("Expected V2 kinds to still be present")
	}
}

func TestFacilitatorRegisterExtension(t *testing.T) {
	facilitator := Newx402Facilitator()

	facilitator.RegisterExtension("bazaar")
	if len(facilitator.extensions) != 1 {
		t.Fatal("Expected 1 extension")
	}
	if facilitator.extensions[0] != "bazaar" {
		t.Fatal("Expected 'bazaar' extension")
	}

	// Test duplicate registration (should not add twice)
	facilitator.RegisterExtension("bazaar")
	if len(facilitator.extensions) != 1 {
		t.Fatal("Expected extension to not be duplicated")
	}

	facilitator.RegisterExtension("sign_in_with_x")
	if len(facilitator.extensions) != 2 {
		t.Fatal("Expected 2 extensions")
	}
}

func TestFacilitatorVerify(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()

	// Simple mock that always succeeds
	mockFacilitator := &mockSchemeNetworkFacilitator{scheme: "exact"}
	facilitator.Register([]Network{"eip155:1"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    requirements,
		Payload: map[string]interface{}{
			"signature": "test",
		},
	}

	// Marshal to bytes for facilitator API (network boundary)
	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	response, err := facilitator.Verify(ctx, payloadBytes, requirementsBytes)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !response.IsValid {
		t.Fatal("Expected valid verification")
	}
	if response.Payer != "0xmockpayer" {
		t.Fatalf("Expected payer '0xmockpayer', got %s", response.Payer)
	}
}

func TestFacilitatorVerifyValidation(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()
	mockFacilitator := &mockSchemeNetworkFacilitator{scheme: "exact"}
	facilitator.Register([]Network{"eip155:1"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	// Test invalid payload (missing scheme in accepted)
	invalidRequirements := types.PaymentRequirements{
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	invalidPayload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    invalidRequirements,
		Payload:     map[string]interface{}{},
	}

	// Marshal to bytes for facilitator API
	invalidPayloadBytes, _ := json.Marshal(invalidPayload)
	requirementsBytes, _ := json.Marshal(requirements)

	response, err := facilitator.Verify(ctx, invalidPayloadBytes, requirementsBytes)
	// With typed architecture, routing might fail earlier or mechanism validates
	// Test passes as long as it doesn't panic
	_ = response
	_ = err

	// Test valid payload with invalid requirements
	validPayload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    requirements,
		Payload:     map[string]interface{}{},
	}

	validPayloadBytes, _ := json.Marshal(validPayload)
	invalidReqsBytes, _ := json.Marshal(types.PaymentRequirements{
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	})

	_, _ = facilitator.Verify(ctx, validPayloadBytes, invalidReqsBytes)
	// Validation happens internally, mock returns success
	// This test needs the mock to actually validate if needed
}

func TestFacilitatorVerifySchemeMismatch(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()
	mockFacilitator := &mockSchemeNetworkFacilitator{
		scheme: "exact",
		verifyFunc: func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error) {
			// Validate that payload.Accepted.Scheme matches requirements.Scheme
			if payload.Accepted.Scheme != requirements.Scheme {
				return nil, NewVerifyError("scheme_mismatch", "", Network(requirements.Network), nil)
			}
			return &VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
		},
	}
	facilitator.Register([]Network{"eip155:1"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	mismatchedRequirements := types.PaymentRequirements{
		Scheme:  "transfer", // Different scheme
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    mismatchedRequirements,
		Payload:     map[string]interface{}{},
	}

	// Marshal to bytes for facilitator API
	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	response, err := facilitator.Verify(ctx, payloadBytes, requirementsBytes)

	// With new architecture, routing happens by requirements.Scheme
	// Mechanism validates and returns IsValid=false (not necessarily an error)
	if err != nil {
		// Error is acceptable for scheme mismatch
		var paymentErr *PaymentError
		if errors.As(err, &paymentErr) && paymentErr.Code != ErrCodeSchemeMismatch {
			t.Fatalf("Expected SchemeMismatch error, got: %s", paymentErr.Code)
		}
	} else if response.IsValid {
		t.Fatal("Expected invalid response for scheme mismatch")
	} else if response.InvalidReason != "scheme_mismatch" {
		t.Fatalf("Expected scheme_mismatch reason, got: %s", response.InvalidReason)
	}
}

func TestFacilitatorVerifyNetworkMismatch(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()
	mockFacilitator := &mockSchemeNetworkFacilitator{
		scheme: "exact",
		verifyFunc: func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error) {
			// Validate that payload.Accepted.Network matches requirements.Network
			if payload.Accepted.Network != requirements.Network {
				return nil, NewVerifyError("network_mismatch", "", Network(requirements.Network), nil)
			}
			return &VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
		},
	}
	facilitator.Register([]Network{"eip155:1"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	mismatchedNetworkRequirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:8453", // Different network
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    mismatchedNetworkRequirements,
		Payload:     map[string]interface{}{},
	}

	// Marshal to bytes
	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	response, err := facilitator.Verify(ctx, payloadBytes, requirementsBytes)

	// With new architecture, mechanism validates and returns IsValid=false
	if err != nil {
		// Error is acceptable for network mismatch
		var paymentErr *PaymentError
		if errors.As(err, &paymentErr) && paymentErr.Code != ErrCodeNetworkMismatch {
			t.Fatalf("Expected NetworkMismatch error, got: %s", paymentErr.Code)
		}
	} else if response.IsValid {
		t.Fatal("Expected invalid response for network mismatch")
	} else if response.InvalidReason != "network_mismatch" {
		t.Fatalf("Expected network_mismatch reason, got: %s", response.InvalidReason)
	}
}

func TestFacilitatorSettle(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()

	mockFacilitator := &mockSchemeNetworkFacilitator{
		scheme: "exact",
		settleFunc: func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*SettleResponse, error) {
			return &SettleResponse{
				Success:     true,
				Transaction: "0xsettledtx",
				Payer:       "0xpayer",
				Network:     Network(payload.Accepted.Network),
			}, nil
		},
	}

	facilitator.Register([]Network{"eip155:1"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    requirements,
		Payload: map[string]interface{}{
			"signature": "test",
		},
	}

	// Marshal to bytes
	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	response, err := facilitator.Settle(ctx, payloadBytes, requirementsBytes)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !response.Success {
		t.Fatal("Expected successful settlement")
	}
	if response.Transaction != "0xsettledtx" {
		t.Fatalf("Expected transaction '0xsettledtx', got %s", response.Transaction)
	}
}

func TestFacilitatorSettleReportsMechanismFailure(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()

	verifyCallCount := 0
	mockFacilitator := &mockSchemeNetworkFacilitator{
		scheme: "exact",
		verifyFunc: func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error) {
			verifyCallCount++
			return nil, NewVerifyError("invalid_signature", "", Network(requirements.Network), nil)
		},
		settleFunc: func(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*SettleResponse, error) {

			return nil, NewSettleError("invalid_signature", "", Network(requirements.Network), "", nil)
		},
	}

	facilitator.Register([]Network{"eip155:1"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    requirements,
		Payload:     map[string]interface{}{},
	}

	// Marshal to bytes
	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	response, err := facilitator.Settle(ctx, payloadBytes, requirementsBytes)

	// A failing mechanism settle must surface as an error or as Success=false
	if err != nil {
		// Error is acceptable
	} else if response.Success {
		t.Fatal("Expected failed settlement for invalid payment")
	}

	// The facilitator's Settle does not call Verify, and this mock's settleFunc
	// does not either, so verifyCallCount is not asserted here.
	_ = verifyCallCount
}

func TestFacilitatorGetSupported(t *testing.T) {
	facilitator := Newx402Facilitator()

	mockFacilitatorV2_1 := &mockSchemeNetworkFacilitator{scheme: "exact"}
	mockFacilitatorV2_2 := &mockSchemeNetworkFacilitator{scheme: "transfer"}
	mockFacilitatorV1_1 := &mockSchemeNetworkFacilitatorV1{scheme: "exact"}

	facilitator.Register([]Network{"eip155:1"}, mockFacilitatorV2_1)
	facilitator.Register([]Network{"eip155:8453"}, mockFacilitatorV2_2)
	facilitator.RegisterV1([]Network{"eip155:1"}, mockFacilitatorV1_1)
	facilitator.RegisterExtension("bazaar")

	supported := facilitator.GetSupported()

	totalKinds := len(supported.Kinds)
	if totalKinds != 3 {
		t.Fatalf("Expected 3 supported kinds total, got %d", totalKinds)
	}

	if len(supported.Extensions) != 1 {
		t.Fatalf("Expected 1 extension, got %d", len(supported.Extensions))
	}
	if supported.Extensions[0] != "bazaar" {
		t.Fatal("Expected 'bazaar' extension")
	}

	// Verify each kind (now flat array with version in each element)
	foundV2Exact := false
	foundV2Transfer := false
	foundV1Exact := false

	for _, kind := range supported.Kinds {
		if kind.X402Version == 2 {
			if kind.Scheme == "exact" && kind.Network == "eip155:1" {
				foundV2Exact = true
			}
			if kind.Scheme == "transfer" && kind.Network == "eip155:8453" {
				foundV2Transfer = true
			}
		}
		if kind.X402Version == 1 {
			if kind.Scheme == "exact" && kind.Network == "eip155:1" {
				foundV1Exact = true
			}
		}
	}

	if !foundV2Exact || !foundV2Transfer || !foundV1Exact {
		t.Fatal("Expected all registered schemes to be in supported kinds")
	}
}

// TestFacilitatorCanHandle - SKIPPED: CanHandle method removed in refactoring
// TODO: Reimplement if needed

// TestLocalFacilitatorClient - SKIPPED: NewLocalFacilitatorClient removed in refactoring
// TODO: Reimplement if needed

func TestFacilitatorNetworkPatternMatching(t *testing.T) {
	ctx := context.Background()
	facilitator := Newx402Facilitator()
	mockFacilitator := &mockSchemeNetworkFacilitator{scheme: "exact"}

	// Register with multiple networks (will auto-derive eip155:* pattern)
	facilitator.Register([]Network{"eip155:1", "eip155:8453"}, mockFacilitator)

	requirements := types.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:8453",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}

	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    requirements,
		Payload:     map[string]interface{}{},
	}

	// Marshal to bytes for facilitator API
	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	// Should match the wildcard pattern
	response, err := facilitator.Verify(ctx, payloadBytes, requirementsBytes)
	if err != nil {
		t.Fatalf("Expected pattern match to work: %v", err)
	}
	if !response.IsValid {
		t.Fatal("Expected valid verification with pattern match")
	}
}
