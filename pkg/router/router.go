// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router implements the parent-side typed RPC facade over a
// mounted transport.Transport Port: one method per operation, each
// assigning a requestId, registering a wallettypes.PendingRequest with a
// timeout and optional progress subscription, posting the request, and
// resolving or rejecting from whatever the child later sends back. It
// plays the role §4.4 assigns WalletIframeRouter, generalizing the
// teacher's backend_walletconnect.go sendRequest (a pendingRequests-style
// wait loop keyed by request id, armed against ctx.Done()) into a
// persistent demux goroutine shared across every call.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/overlay"
	"github.com/nearfi/passkeywallet/pkg/progress"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// overlayIntent describes how Call should treat the overlay around an
// operation: force it fullscreen up front (sticky through the whole
// call), leave it to the ProgressBus's per-phase heuristics, or never
// touch it at all.
type overlayIntent int

const (
	intentHeuristic overlayIntent = iota
	intentForceFullscreen
	intentNone
)

// overlayIntents maps each op this router can post to the overlay
// behavior it drives, per §4.4's "applies overlay intent" step. Ops not
// listed default to intentHeuristic.
var overlayIntents = map[rpcenvelope.Op]overlayIntent{
	rpcenvelope.OpRegister:                intentForceFullscreen,
	rpcenvelope.OpLogin:                   intentForceFullscreen,
	rpcenvelope.OpSignTxsWithActions:      intentHeuristic,
	rpcenvelope.OpSignAndSendTxs:          intentHeuristic,
	rpcenvelope.OpExecuteAction:           intentHeuristic,
	rpcenvelope.OpSendTransaction:         intentHeuristic,
	rpcenvelope.OpSignNep413:              intentHeuristic,
	rpcenvelope.OpExportNearKeypairUI:     intentForceFullscreen,
	rpcenvelope.OpLinkDeviceWithScannedQR: intentForceFullscreen,
	rpcenvelope.OpStartDevice2LinkingFlow: intentForceFullscreen,
	rpcenvelope.OpRecoverAccountFlow:      intentForceFullscreen,
	rpcenvelope.OpGetLoginState:           intentNone,
	rpcenvelope.OpViewAccessKeys:          intentNone,
	rpcenvelope.OpHasPasskey:              intentNone,
	rpcenvelope.OpGetRecentLogins:         intentNone,
	rpcenvelope.OpPrefetchBlockheight:     intentNone,
	rpcenvelope.OpShamir3PassEncrypt:      intentNone,
	rpcenvelope.OpShamir3PassDecrypt:      intentNone,
}

// DefaultTimeout bounds a Call with no caller-supplied timeout.
const DefaultTimeout = 60 * time.Second

// CallOptions customizes one Call invocation.
type CallOptions struct {
	// Sticky keeps the overlay pinned visible for the duration of this
	// request regardless of per-phase heuristics; forwarded on the wire
	// as RequestOptions.Sticky, the only field the Router does not strip.
	Sticky bool
	// Timeout overrides DefaultTimeout for this call.
	Timeout time.Duration
	// OnProgress, if non-nil, is invoked for every PROGRESS this request
	// receives.
	OnProgress func(payload rpcenvelope.ProgressPayload)
}

// Router is the typed RPC facade a host application calls into; it owns
// the demux goroutine reading the mounted Port and fanning PROGRESS/
// PM_RESULT/ERROR out to the right PendingRequest or ProgressBus
// subscriber.
type Router struct {
	port    rpcenvelope.Port
	overlay *overlay.Controller
	bus     *progress.Bus

	defaultTimeout time.Duration
	counter        int64

	mu      sync.Mutex
	pending map[string]*wallettypes.PendingRequest

	initMu   sync.Mutex
	initDone chan struct{}
	initErr  error
}

// New returns a Router posting over port, using ov/bus for overlay
// aggregation (bus may be nil, in which case PROGRESS is still delivered
// to per-call OnProgress callbacks but no overlay is driven).
func New(port rpcenvelope.Port, ov *overlay.Controller, bus *progress.Bus) *Router {
	if bus == nil {
		bus = progress.New(ov, nil)
	}
	return &Router{
		port:           port,
		overlay:        ov,
		bus:            bus,
		defaultTimeout: DefaultTimeout,
		pending:        make(map[string]*wallettypes.PendingRequest),
	}
}

// Serve runs the demux loop until ctx is done or the Port errors,
// routing every inbound Message to its RequestID's PendingRequest (for
// PM_RESULT/ERROR) or to the ProgressBus (for PROGRESS). It is meant to
// run in its own goroutine for the Router's lifetime.
func (r *Router) Serve(ctx context.Context) error {
	for {
		msg, err := r.port.Recv(ctx)
		if err != nil {
			r.mu.Lock()
			for id, p := range r.pending {
				delete(r.pending, id)
				p.Reject(fmt.Errorf("router: port closed: %w", err))
			}
			r.mu.Unlock()
			return err
		}
		r.route(msg)
	}
}

func (r *Router) route(msg rpcenvelope.Message) {
	switch msg.Type {
	case rpcenvelope.TypeProgress:
		_ = r.bus.Dispatch(msg)
		r.mu.Lock()
		p, ok := r.pending[msg.RequestID]
		r.mu.Unlock()
		if ok {
			p.ResetTimeout(r.defaultTimeout, func() { r.timeout(msg.RequestID) })
		}
	case rpcenvelope.TypeResult:
		r.mu.Lock()
		p, ok := r.pending[msg.RequestID]
		if ok {
			delete(r.pending, msg.RequestID)
		}
		r.mu.Unlock()
		if !ok {
			return
		}
		result, err := msg.DecodeResult()
		r.bus.Unregister(msg.RequestID)
		if err != nil {
			p.Reject(fmt.Errorf("router: decode result: %w", err))
			return
		}
		p.Resolve(result.Result)
	case rpcenvelope.TypeError:
		r.mu.Lock()
		p, ok := r.pending[msg.RequestID]
		if ok {
			delete(r.pending, msg.RequestID)
		}
		r.mu.Unlock()
		if !ok {
			return
		}
		r.bus.Unregister(msg.RequestID)
		errPayload, err := msg.DecodeError()
		if err != nil {
			p.Reject(fmt.Errorf("router: decode error: %w", err))
			return
		}
		p.Reject(fmt.Errorf("router: %s: %s", errPayload.Code, errPayload.Message))
	}
}

func (r *Router) timeout(requestID string) {
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
	r.bus.Unregister(requestID)
}

// nextRequestID assigns a monotonically distinguishable id, the nownano-
// counter scheme §4.4 specifies in place of a client-generated UUID.
func (r *Router) nextRequestID() string {
	n := atomic.AddInt64(&r.counter, 1)
	return strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatInt(n, 10)
}

// Init performs (if not already in flight or complete) the PM_SET_CONFIG
// handshake every other Call depends on, deduping concurrent callers
// onto the single in-flight attempt the way transport.Transport.Connect
// dedupes CONNECT.
func (r *Router) Init(ctx context.Context, cfg config.WalletConfig) error {
	r.initMu.Lock()
	if r.initDone != nil {
		done := r.initDone
		r.initMu.Unlock()
		<-done
		return r.initErr
	}
	done := make(chan struct{})
	r.initDone = done
	r.initMu.Unlock()

	_, err := r.Call(ctx, rpcenvelope.OpSetConfig, cfg, CallOptions{})
	r.initErr = err
	close(done)
	return err
}

// Call implements §4.4's five-step request contract: applies this op's
// overlay intent, strips opts down to the allowlisted RequestOptions,
// assigns a requestId, registers a PendingRequest with a timeout and
// optional progress bridge, and posts the request, blocking until the
// child resolves, rejects, or the timeout/ctx fires.
func (r *Router) Call(ctx context.Context, op rpcenvelope.Op, payload any, opts CallOptions) (json.RawMessage, error) {
	requestID := r.nextRequestID()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	r.applyOverlayIntent(op, opts.Sticky)

	resultCh := make(chan json.RawMessage, 1)
	errCh := make(chan error, 1)
	pr := wallettypes.NewPendingRequest(
		requestID, opts.Sticky, nil,
		func(result any) {
			raw, _ := result.(json.RawMessage)
			resultCh <- raw
		},
		func(err error) { errCh <- err },
		timeout,
		func() { errCh <- fmt.Errorf("router: %s timed out after %s", op, timeout) },
	)

	r.mu.Lock()
	r.pending[requestID] = pr
	r.mu.Unlock()

	r.bus.Register(requestID, opts.Sticky, opts.OnProgress)

	msg, err := rpcenvelope.NewRequest(op, requestID, payload, &rpcenvelope.RequestOptions{Sticky: opts.Sticky})
	if err != nil {
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
		r.bus.Unregister(requestID)
		return nil, fmt.Errorf("router: encode %s request: %w", op, err)
	}
	if err := r.port.Send(msg); err != nil {
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
		r.bus.Unregister(requestID)
		return nil, fmt.Errorf("router: send %s request: %w", op, err)
	}

	select {
	case result := <-resultCh:
		return result, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		r.Cancel(requestID)
		return nil, ctx.Err()
	}
}

// applyOverlayIntent drives the overlay ahead of posting a request whose
// op demands it be forced fullscreen for the whole call, pinning it
// sticky so the per-phase ProgressBus heuristics can't hide it mid-flow.
func (r *Router) applyOverlayIntent(op rpcenvelope.Op, sticky bool) {
	if r.overlay == nil {
		return
	}
	switch overlayIntents[op] {
	case intentForceFullscreen:
		r.overlay.SetSticky(true)
		r.overlay.ShowFullscreen()
	case intentNone:
		// Leave overlay state exactly as-is: these ops never demand it.
	default:
		if sticky {
			r.overlay.SetSticky(true)
		}
	}
}

// Cancel best-effort notifies the child to abandon requestID (posting
// PM_CANCEL is fire-and-forget; the child may already have finished) and
// locally rejects/cleans up the PendingRequest immediately rather than
// waiting on a response that may never come.
func (r *Router) Cancel(requestID string) {
	r.mu.Lock()
	p, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	p.Reject(fmt.Errorf("router: %s cancelled", requestID))
	r.bus.Unregister(requestID)
	_ = r.port.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpCancel.WireType()), RequestID: requestID})
}
