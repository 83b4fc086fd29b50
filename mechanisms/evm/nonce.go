package evm

import (
	"context"
	"fmt"
	"sync"
)

// PendingNonceFetcher returns the next usable transaction nonce for account,
// typically backed by eth_getTransactionCount(account, "pending").
type PendingNonceFetcher func(ctx context.Context, account string) (uint64, error)

// nonceSlot holds one account's cached nonce behind its own lock, so a slow
// RPC fetch for one signer never blocks a Next/Reset call for another.
type nonceSlot struct {
	mu  sync.Mutex
	set bool
	n   uint64
}

// NonceManager hands out sequential transaction nonces for a set of
// process-local signer accounts. The first request for an account fetches
// the pending nonce from the chain; subsequent requests increment it
// in-process, avoiding a round trip per transaction. A failed submission
// resets the account's slot so the next request re-fetches from the chain.
//
// The top-level map is guarded only long enough to find-or-create an
// account's slot; the slot's own lock, not the map lock, is held across the
// (possibly blocking) pending-nonce fetch, so concurrent signers never
// serialize behind one another's RPC round trip.
type NonceManager struct {
	fetch PendingNonceFetcher

	slotsMu sync.Mutex
	slots   map[string]*nonceSlot
}

// NewNonceManager creates a NonceManager that fetches starting nonces via fetch.
func NewNonceManager(fetch PendingNonceFetcher) *NonceManager {
	return &NonceManager{
		fetch: fetch,
		slots: make(map[string]*nonceSlot),
	}
}

// slotFor returns account's slot, creating it under the map lock if absent.
func (m *NonceManager) slotFor(account string) *nonceSlot {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()
	s, ok := m.slots[account]
	if !ok {
		s = &nonceSlot{}
		m.slots[account] = s
	}
	return s
}

// Next returns the next nonce to use for account, fetching the pending nonce
// from the chain on first use and incrementing the in-process value on
// every call thereafter.
func (m *NonceManager) Next(ctx context.Context, account string) (uint64, error) {
	s := m.slotFor(account)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set {
		n := s.n
		s.n++
		return n, nil
	}

	n, err := m.fetch(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("fetch pending nonce for %s: %w", account, err)
	}
	s.set = true
	s.n = n + 1
	return n, nil
}

// Reset discards the in-process nonce for account, forcing the next Next
// call to re-fetch from the chain. Call this after a transaction fails to
// submit so a stale nonce isn't reused.
func (m *NonceManager) Reset(account string) {
	s := m.slotFor(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = false
	s.n = 0
}
