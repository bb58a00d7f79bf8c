// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallettypes

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a SigningSession.
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionExhausted SessionState = "exhausted"
	SessionExpired   SessionState = "expired"
	SessionNotFound  SessionState = "not_found"
)

// SigningSession is keyed by a UUID sessionId. It owns the VRF-to-signer
// port pairing for its lifetime and bounds how many times the cached
// WrapKeySeed may be dispensed before DISPENSE_SESSION_KEY must fail with
// session_exhausted.
//
// remainingUses is decremented atomically on each successful dispense;
// mu additionally guards the cached seed and expiry so that expiry checks
// and use-counting observe a consistent snapshot.
type SigningSession struct {
	SessionID string

	mu             sync.Mutex
	seed           *WrapKeySeed
	vrfChallenge   *VRFChallenge
	expiresAt      time.Time
	remainingUses  int
}

// NewSigningSession mints a session id and sets the TTL/use bound.
func NewSigningSession(ttl time.Duration, remainingUses int) *SigningSession {
	return &SigningSession{
		SessionID:     uuid.NewString(),
		expiresAt:     time.Now().Add(ttl),
		remainingUses: remainingUses,
	}
}

// SetSeed installs the WrapKeySeed minted for this session, replacing any
// previous one after scrubbing it.
func (s *SigningSession) SetSeed(seed WrapKeySeed, challenge *VRFChallenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seed != nil {
		s.seed.Scrub()
	}
	cp := seed
	s.seed = &cp
	s.vrfChallenge = challenge
}

// Dispense atomically decrements remainingUses and returns the cached seed.
// Returns SessionExpired if now is past expiresAt (checked before the use
// count, regardless of remaining uses), SessionExhausted once remainingUses
// has reached zero, SessionNotFound if no seed has been minted yet.
func (s *SigningSession) Dispense(now time.Time) (WrapKeySeed, SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.expiresAt) {
		return WrapKeySeed{}, SessionExpired
	}
	if s.seed == nil {
		return WrapKeySeed{}, SessionNotFound
	}
	if s.remainingUses <= 0 {
		return WrapKeySeed{}, SessionExhausted
	}
	s.remainingUses--
	return *s.seed, SessionActive
}

// RemainingUses reports the current use budget without consuming it.
func (s *SigningSession) RemainingUses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingUses
}

// ExpiresAt reports the session's expiry time.
func (s *SigningSession) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// Close scrubs the cached seed. Idempotent.
func (s *SigningSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seed != nil {
		s.seed.Scrub()
		s.seed = nil
	}
}

// PendingRequest is kept by the router for every in-flight request, keyed
// by requestId externally. Resolve/Reject are safe to call at most once;
// subsequent calls are no-ops guarded by `done`.
type PendingRequest struct {
	RequestID  string
	Sticky     bool
	OnProgress func(payload any)

	mu      sync.Mutex
	done    bool
	resolve func(result any)
	reject  func(err error)
	timer   *time.Timer
}

// NewPendingRequest constructs a pending request wired to the given
// resolver/rejecter and arms a timeout that invokes onTimeout if it fires
// before Resolve/Reject/Cancel.
func NewPendingRequest(requestID string, sticky bool, onProgress func(any), resolve func(any), reject func(error), timeout time.Duration, onTimeout func()) *PendingRequest {
	p := &PendingRequest{
		RequestID:  requestID,
		Sticky:     sticky,
		OnProgress: onProgress,
		resolve:    resolve,
		reject:     reject,
	}
	p.timer = time.AfterFunc(timeout, func() {
		if p.markDone() {
			onTimeout()
		}
	})
	return p
}

func (p *PendingRequest) markDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.done = true
	return true
}

// ResetTimeout re-arms the timeout, called on every PROGRESS event for this
// request.
func (p *PendingRequest) ResetTimeout(timeout time.Duration, onTimeout func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(timeout, func() {
		if p.markDone() {
			onTimeout()
		}
	})
}

// Resolve completes the request successfully. No-op if already done.
func (p *PendingRequest) Resolve(result any) {
	if !p.markDone() {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resolve(result)
}

// Reject completes the request with an error. No-op if already done.
func (p *PendingRequest) Reject(err error) {
	if !p.markDone() {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.reject(err)
}

// Cancel marks the request done without invoking resolve/reject, clearing
// local state so a late child response is dropped.
func (p *PendingRequest) Cancel() {
	if !p.markDone() {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
}

// IsDone reports whether the request has already resolved, rejected, timed
// out, or been cancelled.
func (p *PendingRequest) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
