// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"fmt"
	"sync"
)

// nonceKey identifies one NEAR access key's nonce sequence.
type nonceKey struct {
	accountID string
	publicKey string
}

// NonceManager reserves contiguous nonce ranges per (accountId,
// publicKey) so that a batch of transactions signed in one call gets
// sequential, non-colliding nonces without a round trip per transaction.
// A range can only be released if it is exactly the tail of what's been
// reserved so far (e.g. the broadcast failed before any transaction in
// the batch was accepted); once a later reservation has been made on top
// of it, the range is permanently consumed rather than reused, since the
// protocol itself offers no way to "return" a nonce that might already
// be partially visible to the network.
type NonceManager struct {
	mu   sync.Mutex
	next map[nonceKey]uint64
}

// NewNonceManager returns an empty manager; call SyncFromChain before the
// first reservation for a given key.
func NewNonceManager() *NonceManager {
	return &NonceManager{next: make(map[nonceKey]uint64)}
}

// SyncFromChain seeds (or fast-forwards) the next nonce for a key from
// the access key's on-chain nonce, never moving it backwards.
func (m *NonceManager) SyncFromChain(accountID, publicKey string, chainNonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := nonceKey{accountID, publicKey}
	if current, ok := m.next[key]; !ok || chainNonce+1 > current {
		m.next[key] = chainNonce + 1
	}
}

// Reserve allocates count consecutive nonces, returning the first one.
// The caller must have called SyncFromChain at least once for this key.
func (m *NonceManager) Reserve(accountID, publicKey string, count int) (uint64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("signerworker: reserve count must be positive, got %d", count)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := nonceKey{accountID, publicKey}
	start, ok := m.next[key]
	if !ok {
		return 0, fmt.Errorf("signerworker: nonce sequence for %s/%s not synced", accountID, publicKey)
	}
	m.next[key] = start + uint64(count)
	return start, nil
}

// Release returns a previously reserved [start, start+count) range to the
// pool, but only if it is exactly the current tail — otherwise the range
// is left consumed and ErrNonceRangeExhausted is returned.
func (m *NonceManager) Release(accountID, publicKey string, start uint64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := nonceKey{accountID, publicKey}
	current, ok := m.next[key]
	if !ok || start+uint64(count) != current {
		return ErrNonceRangeExhausted
	}
	m.next[key] = start
	return nil
}

// Peek reports the next nonce that would be handed out, for diagnostics.
func (m *NonceManager) Peek(accountID, publicKey string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.next[nonceKey{accountID, publicKey}]
	return v, ok
}
