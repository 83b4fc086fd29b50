package svm

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	x402svm "github.com/qntx/x402/mechanisms/svm"
)

// rpcEndpoint wraps one Solana RPC connection with its own rate limiter and
// circuit breaker, mirroring the EVM provider's per-endpoint fallback.
type rpcEndpoint struct {
	url     string
	client  *rpc.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// RPCURLs are tried in order on every call, falling back to the next
	// URL when an endpoint's circuit breaker is open or the call fails.
	RPCURLs []string

	// PrivateKeysBase58 are the facilitator's fee-payer keys; SignTransaction
	// and SendTransaction select among them by the requested fee payer.
	PrivateKeysBase58 []string

	// RateLimit and RateBurst bound requests per endpoint. Defaults: 20
	// req/s, burst 10.
	RateLimit rate.Limit
	RateBurst int

	// BreakerConsecutiveFailures trips an endpoint's breaker open after this
	// many consecutive failures. Default 5.
	BreakerConsecutiveFailures uint32
	// BreakerTimeout is how long the breaker stays open before allowing a
	// half-open probe. Default 30s.
	BreakerTimeout time.Duration

	Logger zerolog.Logger
}

// Provider implements x402svm.FacilitatorSvmSigner over a fallback pool of
// Solana RPC endpoints and a set of fee-payer keys.
type Provider struct {
	endpoints []*rpcEndpoint
	keys      map[solana.PublicKey]solana.PrivateKey
	addresses []solana.PublicKey
	log       zerolog.Logger
}

// NewProvider dials every configured RPC endpoint and parses every configured
// fee-payer key.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}
	if len(cfg.PrivateKeysBase58) == 0 {
		return nil, fmt.Errorf("at least one fee payer key is required")
	}

	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = rate.Limit(20)
	}
	rateBurst := cfg.RateBurst
	if rateBurst == 0 {
		rateBurst = 10
	}
	consecutiveFailures := cfg.BreakerConsecutiveFailures
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout == 0 {
		breakerTimeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = log.Logger
	}

	endpoints := make([]*rpcEndpoint, 0, len(cfg.RPCURLs))
	for _, url := range cfg.RPCURLs {
		breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        url,
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= consecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("svm rpc circuit breaker state change")
			},
		})
		endpoints = append(endpoints, &rpcEndpoint{
			url:     url,
			client:  rpc.New(url),
			limiter: rate.NewLimiter(rateLimit, rateBurst),
			breaker: breaker,
		})
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(cfg.PrivateKeysBase58))
	addresses := make([]solana.PublicKey, 0, len(cfg.PrivateKeysBase58))
	for _, keyB58 := range cfg.PrivateKeysBase58 {
		key, err := solana.PrivateKeyFromBase58(keyB58)
		if err != nil {
			return nil, fmt.Errorf("invalid fee payer key: %w", err)
		}
		pub := key.PublicKey()
		keys[pub] = key
		addresses = append(addresses, pub)
	}

	return &Provider{
		endpoints: endpoints,
		keys:      keys,
		addresses: addresses,
		log:       logger,
	}, nil
}

// call runs fn against the first endpoint whose rate limiter admits the
// request and whose circuit breaker is closed (or half-open), falling back
// to the next endpoint on any failure. No automatic retries beyond this
// single fallback sweep.
func (p *Provider) call(ctx context.Context, fn func(*rpc.Client) (interface{}, error)) (interface{}, error) {
	var lastErr error
	for _, ep := range p.endpoints {
		if err := ep.limiter.Wait(ctx); err != nil {
			lastErr = err
			continue
		}
		result, err := ep.breaker.Execute(func() (interface{}, error) {
			return fn(ep.client)
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		p.log.Debug().Str("endpoint", ep.url).Err(err).Msg("svm rpc call failed, trying next endpoint")
	}
	return nil, fmt.Errorf("all svm rpc endpoints failed: %w", lastErr)
}

// GetAddresses returns every fee-payer address this provider can sign with on
// network. All configured keys are assumed valid on every supported network.
func (p *Provider) GetAddresses(ctx context.Context, network string) []solana.PublicKey {
	return p.addresses
}

// SignTransaction co-signs tx as feePayer.
func (p *Provider) SignTransaction(ctx context.Context, tx *solana.Transaction, feePayer solana.PublicKey, network string) error {
	key, ok := p.keys[feePayer]
	if !ok {
		return fmt.Errorf("no fee payer key for %s", feePayer)
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	signature, err := key.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(feePayer)
	if err != nil {
		return fmt.Errorf("get account index: %w", err)
	}
	if len(tx.Signatures) <= int(accountIndex) {
		newSignatures := make([]solana.Signature, accountIndex+1)
		copy(newSignatures, tx.Signatures)
		tx.Signatures = newSignatures
	}
	tx.Signatures[accountIndex] = signature
	return nil
}

// SimulateTransaction dry-runs tx, failing if it would revert.
func (p *Provider) SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error {
	result, err := p.call(ctx, func(c *rpc.Client) (interface{}, error) {
		return c.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
			SigVerify:              true,
			ReplaceRecentBlockhash: false,
			Commitment:             x402svm.DefaultCommitment,
		})
	})
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	sim := result.(*rpc.SimulateTransactionResponse)
	if sim != nil && sim.Value != nil && sim.Value.Err != nil {
		return fmt.Errorf("simulation failed: transaction would fail on-chain")
	}
	return nil
}

// SendTransaction broadcasts tx, skipping preflight since SimulateTransaction
// already ran.
func (p *Provider) SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error) {
	result, err := p.call(ctx, func(c *rpc.Client) (interface{}, error) {
		return c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: x402svm.DefaultCommitment,
		})
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return result.(solana.Signature), nil
}

// ConfirmTransaction polls for sig's confirmation status, retrying up to
// x402svm.MaxConfirmAttempts times.
func (p *Provider) ConfirmTransaction(ctx context.Context, sig solana.Signature, network string) error {
	for attempt := 0; attempt < x402svm.MaxConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := p.call(ctx, func(c *rpc.Client) (interface{}, error) {
			return c.GetSignatureStatuses(ctx, true, sig)
		})
		if err == nil {
			statuses := result.(*rpc.GetSignatureStatusesResult)
			if statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
				status := statuses.Value[0]
				if status.Err != nil {
					return fmt.Errorf("transaction failed on-chain")
				}
				if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
					status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
					return nil
				}
			}
		}

		time.Sleep(x402svm.ConfirmRetryDelay)
	}
	return fmt.Errorf("transaction confirmation timed out after %d attempts", x402svm.MaxConfirmAttempts)
}
