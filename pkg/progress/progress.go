// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package progress routes PROGRESS envelopes to their per-request
// subscriber and aggregates, across every in-flight request, whether the
// wallet overlay should be showing. It plays the role §4.3 assigns
// ProgressBus, generalizing the teacher's backend_walletconnect.go
// sessions map[string]*wcSession guarded by sync.RWMutex into a
// requestId-keyed subscriber table instead of a session-name-keyed
// session table.
package progress

import (
	"sync"

	"github.com/nearfi/passkeywallet/pkg/overlay"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
)

// Demand is what a single phase, on its own, says about overlay
// visibility.
type Demand int

const (
	DemandNone Demand = iota
	DemandShow
	DemandHide
)

// PhaseHeuristics maps a wire phase string to the Demand it expresses.
type PhaseHeuristics func(phase string) Demand

// showPhases are the phases around which the default heuristics demand
// the overlay be visible: the webauthn ceremonies and user-confirmation
// gates that need the passkey prompt on screen, plus the two
// device-linking phases a human is expected to be watching (scanning a
// QR code, authorizing a new device).
var showPhases = map[secureconfirm.Phase]bool{
	secureconfirm.PhaseRegWebauthnVerification:    true,
	secureconfirm.PhaseLoginWebauthnAssertion:     true,
	secureconfirm.PhaseSignUserConfirmation:       true,
	secureconfirm.PhaseSignWebauthnAuthentication: true,
	secureconfirm.PhaseExportConfirmation:         true,
	secureconfirm.PhaseDLScanning:                 true,
	secureconfirm.PhaseDLAuthorization:            true,
}

// DefaultPhaseHeuristics shows the overlay only around the phases in
// showPhases and hides it for every other phase this flow graph names,
// including its terminal/error phases; a phase string this package has
// never seen reports DemandNone so it can't override an existing
// request's demand.
func DefaultPhaseHeuristics(phase string) Demand {
	if showPhases[secureconfirm.Phase(phase)] {
		return DemandShow
	}
	if knownPhases[secureconfirm.Phase(phase)] {
		return DemandHide
	}
	return DemandNone
}

var knownPhases = buildKnownPhases()

func buildKnownPhases() map[secureconfirm.Phase]bool {
	all := []secureconfirm.Phase{
		secureconfirm.PhaseRegWebauthnVerification, secureconfirm.PhaseRegKeyGeneration,
		secureconfirm.PhaseRegAccessKeyAddition, secureconfirm.PhaseRegAccountVerification,
		secureconfirm.PhaseRegDatabaseStorage, secureconfirm.PhaseRegContractRegistration,
		secureconfirm.PhaseRegComplete, secureconfirm.PhaseRegError,
		secureconfirm.PhaseLoginPreparation, secureconfirm.PhaseLoginWebauthnAssertion,
		secureconfirm.PhaseLoginVRFUnlock, secureconfirm.PhaseLoginComplete, secureconfirm.PhaseLoginError,
		secureconfirm.PhaseSignPreparation, secureconfirm.PhaseSignUserConfirmation,
		secureconfirm.PhaseSignContractVerification, secureconfirm.PhaseSignWebauthnAuthentication,
		secureconfirm.PhaseSignAuthenticationComplete, secureconfirm.PhaseSignTransactionSigning,
		secureconfirm.PhaseSignTransactionComplete, secureconfirm.PhaseSignBroadcasting,
		secureconfirm.PhaseSignActionComplete, secureconfirm.PhaseSignError,
		secureconfirm.PhaseDLIdle, secureconfirm.PhaseDLQRCodeGenerated, secureconfirm.PhaseDLScanning,
		secureconfirm.PhaseDLAuthorization, secureconfirm.PhaseDLPolling, secureconfirm.PhaseDLAddKeyDetected,
		secureconfirm.PhaseDLRegistration, secureconfirm.PhaseDLLinkingComplete, secureconfirm.PhaseDLAutoLogin,
		secureconfirm.PhaseDLRegistrationError, secureconfirm.PhaseDLLoginError, secureconfirm.PhaseDLDeviceLinkingError,
		secureconfirm.PhaseExportConfirmation, secureconfirm.PhaseExportComplete, secureconfirm.PhaseExportError,
		secureconfirm.PhaseCancelled,
	}
	m := make(map[secureconfirm.Phase]bool, len(all))
	for _, p := range all {
		m[p] = true
	}
	return m
}

// subscriber is one in-flight request's progress sink: a FIFO buffer
// drained by a dedicated goroutine so a slow onProgress callback never
// blocks Dispatch, plus the latest demand this request has expressed.
type subscriber struct {
	requestID  string
	sticky     bool
	onProgress func(payload rpcenvelope.ProgressPayload)

	mu     sync.Mutex
	demand Demand

	queue  chan rpcenvelope.ProgressPayload
	done   chan struct{}
	closed bool
}

func newSubscriber(requestID string, sticky bool, onProgress func(payload rpcenvelope.ProgressPayload)) *subscriber {
	s := &subscriber{
		requestID:  requestID,
		sticky:     sticky,
		onProgress: onProgress,
		queue:      make(chan rpcenvelope.ProgressPayload, 32),
		done:       make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *subscriber) drain() {
	for {
		select {
		case p, ok := <-s.queue:
			if !ok {
				return
			}
			if s.onProgress != nil {
				s.onProgress(p)
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) push(p rpcenvelope.ProgressPayload) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.queue <- p:
	default:
		// Queue full: drop the oldest rather than block Dispatch, the
		// same best-effort posture PROGRESS already has on the wire.
		select {
		case <-s.queue:
		default:
		}
		s.queue <- p
	}
}

func (s *subscriber) setDemand(d Demand) {
	s.mu.Lock()
	s.demand = d
	s.mu.Unlock()
}

func (s *subscriber) currentDemand() Demand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demand
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

// Bus routes PROGRESS messages to their requestId's subscriber and keeps
// an overlay.Controller's visibility in sync with the aggregate demand
// across every active subscriber: visible while any one of them last
// reported DemandShow, hidden once all of them have moved past it,
// overridden permanently visible while the controller itself is sticky.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]*subscriber
	heuristics PhaseHeuristics
	overlay    *overlay.Controller
}

// New returns a Bus that drives ov according to heuristics. A nil
// heuristics defaults to DefaultPhaseHeuristics.
func New(ov *overlay.Controller, heuristics PhaseHeuristics) *Bus {
	if heuristics == nil {
		heuristics = DefaultPhaseHeuristics
	}
	return &Bus{subs: make(map[string]*subscriber), heuristics: heuristics, overlay: ov}
}

// Register starts tracking requestID, invoking onProgress (if non-nil)
// for every PROGRESS this request subsequently receives. sticky marks
// the request as one the caller intends to keep the overlay anchored
// for even between phases (passed straight from the request's
// RequestOptions.Sticky, the same flag the Router forwards on the wire).
func (b *Bus) Register(requestID string, sticky bool, onProgress func(payload rpcenvelope.ProgressPayload)) {
	s := newSubscriber(requestID, sticky, onProgress)
	b.mu.Lock()
	b.subs[requestID] = s
	b.mu.Unlock()
}

// Unregister stops tracking requestID and recomputes overlay demand
// without it, the counterpart call a Router makes once a PendingRequest
// resolves, rejects, or is cancelled.
func (b *Bus) Unregister(requestID string) {
	b.mu.Lock()
	s, ok := b.subs[requestID]
	if ok {
		delete(b.subs, requestID)
	}
	b.mu.Unlock()
	if ok {
		s.close()
	}
	b.recomputeOverlay()
}

// Dispatch routes msg (expected to be a TypeProgress Message) to its
// RequestID's subscriber, updates that subscriber's demand from the
// phase heuristics, and recomputes overlay visibility. Dispatch is a
// no-op, not an error, for a requestId with no registered subscriber:
// a PROGRESS can race Unregister on the losing side of a cancellation.
func (b *Bus) Dispatch(msg rpcenvelope.Message) error {
	if msg.Type != rpcenvelope.TypeProgress {
		return nil
	}
	payload, err := msg.DecodeProgress()
	if err != nil {
		return err
	}

	b.mu.RLock()
	s, ok := b.subs[msg.RequestID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	s.push(payload)
	if d := b.heuristics(payload.Phase); d != DemandNone {
		// A sticky request never has its demand downgraded to hide by a
		// later phase: Router.Call pins sticky for the whole operation,
		// so the bus honors that instead of flickering the overlay.
		if !(s.sticky && d == DemandHide) {
			s.setDemand(d)
		}
	}
	b.recomputeOverlay()
	return nil
}

// recomputeOverlay implements Testable Property 3: overlay visibility
// equals (there exists an active request whose latest phase heuristic is
// DemandShow) OR the controller is sticky. It never calls Hide while the
// controller is sticky; Hide is already a no-op then, but skipping the
// call avoids firing a spurious onChange notification with no actual
// transition.
func (b *Bus) recomputeOverlay() {
	if b.overlay == nil {
		return
	}
	if b.overlay.Sticky() {
		return
	}

	b.mu.RLock()
	show := false
	for _, s := range b.subs {
		if s.currentDemand() == DemandShow {
			show = true
			break
		}
	}
	b.mu.RUnlock()

	if show {
		b.overlay.ShowFullscreen()
	} else {
		b.overlay.Hide()
	}
}
