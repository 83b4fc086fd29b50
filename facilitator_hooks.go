package x402

import (
	"context"

	"github.com/qntx/x402/hooks"
)

// ============================================================================
// Facilitator Hook Context Types
// ============================================================================

// FacilitatorVerifyContext contains information passed to facilitator verify hooks
// Uses view interfaces for version-agnostic hooks
// PayloadBytes and RequirementsBytes provide escape hatch for extensions (e.g., Bazaar)
type FacilitatorVerifyContext struct {
	Ctx               context.Context
	Payload           PaymentPayloadView
	Requirements      PaymentRequirementsView
	PayloadBytes      []byte // Raw bytes for extensions needing full data
	RequirementsBytes []byte // Raw bytes for extensions needing full data
}

// FacilitatorVerifyResultContext contains facilitator verify operation result and context
type FacilitatorVerifyResultContext struct {
	FacilitatorVerifyContext
	Result *VerifyResponse
}

// FacilitatorVerifyFailureContext contains facilitator verify operation failure and context
type FacilitatorVerifyFailureContext struct {
	FacilitatorVerifyContext
	Error error
}

// FacilitatorSettleContext contains information passed to facilitator settle hooks
// Uses view interfaces for version-agnostic hooks
// PayloadBytes and RequirementsBytes provide escape hatch for extensions (e.g., Bazaar)
type FacilitatorSettleContext struct {
	Ctx               context.Context
	Payload           PaymentPayloadView
	Requirements      PaymentRequirementsView
	PayloadBytes      []byte // Raw bytes for extensions needing full data
	RequirementsBytes []byte // Raw bytes for extensions needing full data
}

// FacilitatorSettleResultContext contains facilitator settle operation result and context
type FacilitatorSettleResultContext struct {
	FacilitatorSettleContext
	Result *SettleResponse
}

// FacilitatorSettleFailureContext contains facilitator settle operation failure and context
type FacilitatorSettleFailureContext struct {
	FacilitatorSettleContext
	Error error
}

// ============================================================================
// Facilitator Hook Result Types
// ============================================================================

// FacilitatorBeforeHookResult represents the result of a facilitator "before" hook
// If Abort is true, the operation will be aborted with the given Reason
type FacilitatorBeforeHookResult struct {
	Abort  bool
	Reason string
}

// FacilitatorVerifyFailureHookResult represents the result of a facilitator verify failure hook
// If Recovered is true, the hook has recovered from the failure with the given result
type FacilitatorVerifyFailureHookResult struct {
	Recovered bool
	Result    *VerifyResponse
}

// FacilitatorSettleFailureHookResult represents the result of a facilitator settle failure hook
type FacilitatorSettleFailureHookResult struct {
	Recovered bool
	Result    *SettleResponse
}

// ============================================================================
// Facilitator Hook Function Types
// ============================================================================

// FacilitatorBeforeVerifyHook is called before facilitator payment verification
// If it returns a result with Abort=true, verification will be skipped
// and a *VerifyError carrying the provided reason will be returned
type FacilitatorBeforeVerifyHook func(FacilitatorVerifyContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterVerifyHook is called after successful facilitator payment verification
// Any error returned is discarded and does not affect the verification result
type FacilitatorAfterVerifyHook func(FacilitatorVerifyResultContext) error

// FacilitatorOnVerifyFailureHook is called when facilitator payment verification fails
// If it returns a result with Recovered=true, the provided VerifyResponse
// will be returned instead of the error
type FacilitatorOnVerifyFailureHook func(FacilitatorVerifyFailureContext) (*FacilitatorVerifyFailureHookResult, error)

// FacilitatorBeforeSettleHook is called before facilitator payment settlement
// If it returns a result with Abort=true, settlement will be aborted
// and an error will be returned with the provided reason
type FacilitatorBeforeSettleHook func(FacilitatorSettleContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterSettleHook is called after successful facilitator payment settlement
// Any error returned is discarded and does not affect the settlement result
type FacilitatorAfterSettleHook func(FacilitatorSettleResultContext) error

// FacilitatorOnSettleFailureHook is called when facilitator payment settlement fails
// If it returns a result with Recovered=true, the provided SettleResponse
// will be returned instead of the error
type FacilitatorOnSettleFailureHook func(FacilitatorSettleFailureContext) (*FacilitatorSettleFailureHookResult, error)

// ============================================================================
// hooks.Set adapters
// ============================================================================
//
// These convert the facilitator's registered hook slices into a single
// hooks.Set so Verify/Settle can run both protocol versions through the
// shared hooks.Run combinator instead of four hand-copied loops.

func (f *x402Facilitator) verifyHookSet() hooks.Set[FacilitatorVerifyContext, *VerifyResponse] {
	before := make([]func(FacilitatorVerifyContext) error, len(f.beforeVerifyHooks))
	for i, h := range f.beforeVerifyHooks {
		h := h
		before[i] = func(ctx FacilitatorVerifyContext) error {
			result, err := h(ctx)
			if err != nil {
				return err
			}
			if result != nil && result.Abort {
				return NewVerifyError(result.Reason, "", "", nil)
			}
			return nil
		}
	}

	after := make([]func(FacilitatorVerifyContext, *VerifyResponse), len(f.afterVerifyHooks))
	for i, h := range f.afterVerifyHooks {
		h := h
		after[i] = func(ctx FacilitatorVerifyContext, result *VerifyResponse) {
			_ = h(FacilitatorVerifyResultContext{FacilitatorVerifyContext: ctx, Result: result})
		}
	}

	onFailure := make([]func(FacilitatorVerifyContext, error) (*VerifyResponse, bool), len(f.onVerifyFailureHooks))
	for i, h := range f.onVerifyFailureHooks {
		h := h
		onFailure[i] = func(ctx FacilitatorVerifyContext, err error) (*VerifyResponse, bool) {
			result, _ := h(FacilitatorVerifyFailureContext{FacilitatorVerifyContext: ctx, Error: err})
			if result != nil && result.Recovered {
				return result.Result, true
			}
			return nil, false
		}
	}

	return hooks.Set[FacilitatorVerifyContext, *VerifyResponse]{Before: before, After: after, OnFailure: onFailure}
}

func (f *x402Facilitator) settleHookSet() hooks.Set[FacilitatorSettleContext, *SettleResponse] {
	before := make([]func(FacilitatorSettleContext) error, len(f.beforeSettleHooks))
	for i, h := range f.beforeSettleHooks {
		h := h
		before[i] = func(ctx FacilitatorSettleContext) error {
			result, err := h(ctx)
			if err != nil {
				return err
			}
			if result != nil && result.Abort {
				return NewSettleError(result.Reason, "", "", "", nil)
			}
			return nil
		}
	}

	after := make([]func(FacilitatorSettleContext, *SettleResponse), len(f.afterSettleHooks))
	for i, h := range f.afterSettleHooks {
		h := h
		after[i] = func(ctx FacilitatorSettleContext, result *SettleResponse) {
			_ = h(FacilitatorSettleResultContext{FacilitatorSettleContext: ctx, Result: result})
		}
	}

	onFailure := make([]func(FacilitatorSettleContext, error) (*SettleResponse, bool), len(f.onSettleFailureHooks))
	for i, h := range f.onSettleFailureHooks {
		h := h
		onFailure[i] = func(ctx FacilitatorSettleContext, err error) (*SettleResponse, bool) {
			result, _ := h(FacilitatorSettleFailureContext{FacilitatorSettleContext: ctx, Error: err})
			if result != nil && result.Recovered {
				return result.Result, true
			}
			return nil, false
		}
	}

	return hooks.Set[FacilitatorSettleContext, *SettleResponse]{Before: before, After: after, OnFailure: onFailure}
}
