package x402

import (
	"context"

	"github.com/qntx/x402/hooks"
)

// ============================================================================
// Client Hook Context Types
// ============================================================================

// PaymentCreationContext contains information passed to payment creation hooks
// Uses view interfaces for version-agnostic hooks
type PaymentCreationContext struct {
	Ctx                  context.Context
	Version              int // V1 or V2
	SelectedRequirements PaymentRequirementsView
}

// PaymentCreatedContext contains payment creation result and context
type PaymentCreatedContext struct {
	PaymentCreationContext
	Payload PaymentPayloadView
}

// PaymentCreationFailureContext contains payment creation failure and context
type PaymentCreationFailureContext struct {
	PaymentCreationContext
	Error error
}

// ============================================================================
// Client Hook Result Types
// ============================================================================

// BeforePaymentCreationHookResult represents the result of a "before payment creation" hook
// If Abort is true, the payment creation will be aborted with the given Reason
type BeforePaymentCreationHookResult struct {
	Abort  bool
	Reason string
}

// PaymentCreationFailureHookResult represents the result of a payment creation failure hook
// If Recovered is true, the hook has recovered from the failure with the given payload
type PaymentCreationFailureHookResult struct {
	Recovered bool
	Payload   PaymentPayloadView
}

// ============================================================================
// Client Hook Function Types
// ============================================================================

// BeforePaymentCreationHook is called before payment payload creation
// If it returns a result with Abort=true, payment creation will be aborted
// and an error will be returned with the provided reason
type BeforePaymentCreationHook func(PaymentCreationContext) (*BeforePaymentCreationHookResult, error)

// AfterPaymentCreationHook is called after successful payment payload creation
// Any error returned is discarded and does not affect the payment creation result
type AfterPaymentCreationHook func(PaymentCreatedContext) error

// OnPaymentCreationFailureHook is called when payment payload creation fails
// If it returns a result with Recovered=true, the provided PaymentPayload
// will be returned instead of the error
type OnPaymentCreationFailureHook func(PaymentCreationFailureContext) (*PaymentCreationFailureHookResult, error)

// ============================================================================
// Client Hook Registration Options
// ============================================================================

// WithBeforePaymentCreationHook registers a hook to execute before payment creation
func WithBeforePaymentCreationHook(hook BeforePaymentCreationHook) ClientOption {
	return func(c *x402Client) {
		c.beforePaymentCreationHooks = append(c.beforePaymentCreationHooks, hook)
	}
}

// WithAfterPaymentCreationHook registers a hook to execute after successful payment creation
func WithAfterPaymentCreationHook(hook AfterPaymentCreationHook) ClientOption {
	return func(c *x402Client) {
		c.afterPaymentCreationHooks = append(c.afterPaymentCreationHooks, hook)
	}
}

// WithOnPaymentCreationFailureHook registers a hook to execute when payment creation fails
func WithOnPaymentCreationFailureHook(hook OnPaymentCreationFailureHook) ClientOption {
	return func(c *x402Client) {
		c.onPaymentCreationFailureHooks = append(c.onPaymentCreationFailureHooks, hook)
	}
}

// ============================================================================
// hooks.Set adapter
// ============================================================================
//
// Converts the client's registered payment-creation hook slices into a single
// hooks.Set so CreatePaymentPayloadV1/CreatePaymentPayload can both run
// through the shared hooks.Run combinator.

func (c *x402Client) paymentCreationHookSet() hooks.Set[PaymentCreationContext, PaymentPayloadView] {
	before := make([]func(PaymentCreationContext) error, len(c.beforePaymentCreationHooks))
	for i, h := range c.beforePaymentCreationHooks {
		h := h
		before[i] = func(ctx PaymentCreationContext) error {
			result, err := h(ctx)
			if err != nil {
				return err
			}
			if result != nil && result.Abort {
				return &PaymentError{Code: ErrCodeInvalidPayment, Message: result.Reason}
			}
			return nil
		}
	}

	after := make([]func(PaymentCreationContext, PaymentPayloadView), len(c.afterPaymentCreationHooks))
	for i, h := range c.afterPaymentCreationHooks {
		h := h
		after[i] = func(ctx PaymentCreationContext, payload PaymentPayloadView) {
			_ = h(PaymentCreatedContext{PaymentCreationContext: ctx, Payload: payload})
		}
	}

	onFailure := make([]func(PaymentCreationContext, error) (PaymentPayloadView, bool), len(c.onPaymentCreationFailureHooks))
	for i, h := range c.onPaymentCreationFailureHooks {
		h := h
		onFailure[i] = func(ctx PaymentCreationContext, err error) (PaymentPayloadView, bool) {
			result, _ := h(PaymentCreationFailureContext{PaymentCreationContext: ctx, Error: err})
			if result != nil && result.Recovered {
				return result.Payload, true
			}
			return nil, false
		}
	}

	return hooks.Set[PaymentCreationContext, PaymentPayloadView]{Before: before, After: after, OnFailure: onFailure}
}
