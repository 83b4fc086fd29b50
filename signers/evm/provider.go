package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	x402evm "github.com/qntx/x402/mechanisms/evm"
)

// endpoint wraps one RPC connection with its own rate limiter and circuit
// breaker so a single flaky/overloaded node can't take the whole provider
// down; Provider.call falls back to the next endpoint on open-breaker or
// rate-limit-wait failure.
type endpoint struct {
	url     string
	client  *ethclient.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// RPCURLs are tried in order on every call, falling back to the next
	// URL when an endpoint's circuit breaker is open or the call fails.
	RPCURLs []string

	// PrivateKeysHex are the facilitator's signing keys; WriteContract and
	// SendTransaction round-robin across the addresses they derive.
	PrivateKeysHex []string

	// RateLimit and RateBurst bound requests per endpoint. Defaults: 20
	// req/s, burst 10.
	RateLimit rate.Limit
	RateBurst int

	// BreakerConsecutiveFailures trips an endpoint's breaker open after
	// this many consecutive failures. Default 5.
	BreakerConsecutiveFailures uint32
	// BreakerTimeout is how long the breaker stays open before allowing a
	// half-open probe. Default 30s.
	BreakerTimeout time.Duration

	// ReceiptPollInterval controls how often WaitForTransactionReceipt polls.
	ReceiptPollInterval time.Duration

	Logger zerolog.Logger
}

// Provider implements x402evm.FacilitatorEvmSigner over a fallback pool of
// JSON-RPC endpoints and a round-robin pool of signing keys.
type Provider struct {
	endpoints []*endpoint
	signers   map[common.Address]*ecdsa.PrivateKey
	pool      *x402evm.SignerPool
	nonces    *x402evm.NonceManager
	pollEvery time.Duration
	log       zerolog.Logger
}

// NewProvider dials every configured RPC endpoint and derives signer
// addresses from the configured private keys.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if len(cfg.RPCURLs) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}
	if len(cfg.PrivateKeysHex) == 0 {
		return nil, fmt.Errorf("at least one signing key is required")
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
	pollEvery := cfg.ReceiptPollInterval
	if pollEvery == 0 {
		pollEvery = 2 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = log.Logger
	}

	endpoints := make([]*endpoint, 0, len(cfg.RPCURLs))
	for _, url := range cfg.RPCURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("dial rpc %s: %w", url, err)
		}
		breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        url,
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= consecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("evm rpc circuit breaker state change")
			},
		})
		endpoints = append(endpoints, &endpoint{
			url:     url,
			client:  client,
			limiter: rate.NewLimiter(rateLimit, rateBurst),
			breaker: breaker,
		})
	}

	signers := make(map[common.Address]*ecdsa.PrivateKey, len(cfg.PrivateKeysHex))
	addresses := make([]string, 0, len(cfg.PrivateKeysHex))
	for _, keyHex := range cfg.PrivateKeysHex {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		signers[addr] = key
		addresses = append(addresses, addr.Hex())
	}

	pool, err := x402evm.NewSignerPool(addresses)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		endpoints: endpoints,
		signers:   signers,
		pool:      pool,
		pollEvery: pollEvery,
		log:       logger,
	}
	p.nonces = x402evm.NewNonceManager(func(ctx context.Context, account string) (uint64, error) {
		n, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) {
			return c.PendingNonceAt(ctx, common.HexToAddress(account))
		})
		if err != nil {
			return 0, err
		}
		return n.(uint64), nil
	})
	return p, nil
}

// call runs fn against the first endpoint whose rate limiter admits the
// request and whose circuit breaker is closed (or half-open), falling back
// to the next endpoint on any failure. No automatic retries are performed
// beyond this single fallback sweep.
func (p *Provider) call(ctx context.Context, fn func(*ethclient.Client) (interface{}, error)) (interface{}, error) {
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
		p.log.Debug().Str("endpoint", ep.url).Err(err).Msg("evm rpc call failed, trying next endpoint")
	}
	return nil, fmt.Errorf("all evm rpc endpoints failed: %w", lastErr)
}

// GetAddresses returns every address in the facilitator's signer pool.
func (p *Provider) GetAddresses() []string {
	return p.pool.Addresses()
}

// GetBalance returns token.balanceOf(account).
func (p *Provider) GetBalance(ctx context.Context, account string, token string) (*big.Int, error) {
	result, err := p.ReadContract(ctx, token, x402evm.ERC20BalanceOfABI, "balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", result)
	}
	return balance, nil
}

// GetCode returns the deployed bytecode at account.
func (p *Provider) GetCode(ctx context.Context, account string) ([]byte, error) {
	result, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) {
		return c.CodeAt(ctx, common.HexToAddress(account), nil)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// ReadContract performs an eth_call and decodes the single return value.
func (p *Provider) ReadContract(ctx context.Context, contract string, abiJSON string, function string, args ...interface{}) (interface{}, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	data, err := parsed.Pack(function, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", function, err)
	}

	to := common.HexToAddress(contract)
	result, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) {
		return c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, err
	}

	outputs, err := parsed.Unpack(function, result.([]byte))
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", function, err)
	}
	if len(outputs) == 0 {
		return nil, nil
	}
	return outputs[0], nil
}

// WriteContract signs and submits a state-changing transaction to contract,
// returning its transaction hash.
func (p *Provider) WriteContract(ctx context.Context, contract string, abiJSON string, function string, args ...interface{}) (string, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return "", fmt.Errorf("parse abi: %w", err)
	}
	data, err := parsed.Pack(function, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", function, err)
	}
	return p.sendRaw(ctx, common.HexToAddress(contract), data)
}

// SendTransaction submits a raw transaction with calldata data to to. Used
// for ERC-6492 factory deployment, where the calldata is already encoded.
func (p *Provider) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	return p.sendRaw(ctx, common.HexToAddress(to), data)
}

func (p *Provider) sendRaw(ctx context.Context, to common.Address, data []byte) (string, error) {
	fromHex := p.pool.Next()
	from := common.HexToAddress(fromHex)
	key, ok := p.signers[from]
	if !ok {
		return "", fmt.Errorf("no private key for signer %s", fromHex)
	}

	nonce, err := p.nonces.Next(ctx, fromHex)
	if err != nil {
		return "", err
	}

	chainID, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) { return c.ChainID(ctx) })
	if err != nil {
		p.nonces.Reset(fromHex)
		return "", err
	}
	gasPrice, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) { return c.SuggestGasPrice(ctx) })
	if err != nil {
		p.nonces.Reset(fromHex)
		return "", err
	}
	gasLimit, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) {
		return c.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	})
	if err != nil {
		p.nonces.Reset(fromHex)
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit.(uint64),
		GasPrice: gasPrice.(*big.Int),
		Data:     data,
	})

	signer := types.NewEIP155Signer(chainID.(*big.Int))
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		p.nonces.Reset(fromHex)
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if _, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) {
		return nil, c.SendTransaction(ctx, signedTx)
	}); err != nil {
		p.nonces.Reset(fromHex)
		return "", fmt.Errorf("send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls for txHash's receipt until it is mined or
// ctx expires.
func (p *Provider) WaitForTransactionReceipt(ctx context.Context, txHash string) (*x402evm.Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		result, err := p.call(ctx, func(c *ethclient.Client) (interface{}, error) {
			return c.TransactionReceipt(ctx, hash)
		})
		if err == nil {
			receipt := result.(*types.Receipt)
			return &x402evm.Receipt{TxHash: txHash, Status: receipt.Status}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
