package evm

import (
	"fmt"
	"sync/atomic"
)

// SignerPool round-robins transaction submission across a fixed set of
// facilitator signer addresses, spreading nonce contention and rate limits
// across multiple funded accounts instead of a single hot signer.
type SignerPool struct {
	addresses []string
	cursor    atomic.Uint64
}

// NewSignerPool creates a SignerPool over addresses, which must be non-empty.
func NewSignerPool(addresses []string) (*SignerPool, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("signer pool requires at least one address")
	}
	return &SignerPool{addresses: addresses}, nil
}

// Next returns the next address in round-robin order.
func (p *SignerPool) Next() string {
	idx := p.cursor.Add(1) - 1
	return p.addresses[idx%uint64(len(p.addresses))]
}

// Addresses returns every address in the pool, in order.
func (p *SignerPool) Addresses() []string {
	out := make([]string, len(p.addresses))
	copy(out, p.addresses)
	return out
}
