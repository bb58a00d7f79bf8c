// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport implements the parent side of the wallet-core
// handshake: mounting the wallet-core address space for an origin
// exactly once, then dialing it with a CONNECT/READY handshake that
// retries on a growing backoff schedule until the child answers or the
// overall timeout expires. It plays the role §4.1 assigns
// IframeTransport, generalizing the teacher's backend_walletconnect.go
// connect-once-per-session dial (sessions map[string]*wcSession guarded
// by a mutex, lazy connectRelay, sendRequest's ctx.Done()/default retry
// loop) from a single relay websocket to an arbitrary rpcenvelope.Port.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
)

// Backoff schedule for CONNECT retries, mirroring the teacher's
// wcConnectTimeout/wcHeartbeatPeriod constants generalized into three
// escalating bands instead of one fixed period.
const (
	backoffEarly    = 200 * time.Millisecond // attempts 1-10
	backoffMid      = 400 * time.Millisecond // attempts 11-20
	backoffLate     = 800 * time.Millisecond // attempts 21+
	earlyAttempts   = 10
	midAttempts     = 20

	// WildcardConnectAttempts is the number of leading CONNECT attempts
	// that count as origin-unverified. Connect does not read it: every
	// CONNECT is sent the same way over the mounted Port.
	WildcardConnectAttempts = 6

	loadWaitTimeout = 150 * time.Millisecond
)

// ErrMultipleWalletOrigins is returned by EnsureMounted when a second,
// distinct origin is requested while a different origin is already
// mounted and has not been disposed.
var ErrMultipleWalletOrigins = errors.New("transport: wallet iframe already mounted for a different origin")

// ErrHandshakeTimeout is returned by Connect when no READY arrives
// before the configured timeout.
var ErrHandshakeTimeout = errors.New("transport: wallet iframe READY timeout")

// Dialer opens a fresh Port to the wallet-core address space for the
// given origin. It is the Go analog of constructing and appending an
// `<iframe src="<origin>/...">` to the document: a single call that
// stands up the whole child side (in this module, pkg/host.Host served
// over a freshly dialed connection).
type Dialer func(ctx context.Context, origin string) (rpcenvelope.Port, error)

// Transport mounts at most one wallet origin at a time and hands out a
// single shared Port to it once the handshake completes.
type Transport struct {
	dial                    Dialer
	connectTimeout          time.Duration
	expectedProtocolVersion string

	mu              sync.Mutex
	origin          string
	mounted         bool
	port            rpcenvelope.Port
	protocolVersion string

	connectMu      sync.Mutex
	connectPending bool
	connectDone    chan struct{}
	connectPort    rpcenvelope.Port
	connectErr     error
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithExpectedProtocolVersion makes Connect reject a READY whose
// protocolVersion doesn't match exactly, resolving Open Question (b) in
// favor of strict string equality rather than semantic version ranges.
func WithExpectedProtocolVersion(v string) Option {
	return func(t *Transport) { t.expectedProtocolVersion = v }
}

// New returns a Transport that dials with dial and bounds the whole
// CONNECT/READY handshake to connectTimeout.
func New(dial Dialer, connectTimeout time.Duration, opts ...Option) *Transport {
	t := &Transport{dial: dial, connectTimeout: connectTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EnsureMounted dials origin's wallet-core address space exactly once.
// Calling it again with the same origin is a no-op; calling it with a
// different origin while one is already mounted fails with
// ErrMultipleWalletOrigins, resolving Open Question (c) in favor of one
// mounted origin at a time rather than silently replacing it.
func (t *Transport) EnsureMounted(ctx context.Context, origin string) error {
	t.mu.Lock()
	if t.mounted {
		if t.origin != origin {
			t.mu.Unlock()
			return ErrMultipleWalletOrigins
		}
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	port, err := t.dial(ctx, origin)
	if err != nil {
		return fmt.Errorf("transport: mount %s: %w", origin, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mounted {
		// Lost a race with a concurrent EnsureMounted for the same
		// origin; drop our redundant port rather than leak its dial.
		_ = port.Close()
		return nil
	}
	t.origin = origin
	t.port = port
	t.mounted = true
	return nil
}

// Connect performs the CONNECT/READY handshake over the mounted Port,
// deduping concurrent callers onto a single in-flight attempt the way
// §4.1 requires. It waits up to loadWaitTimeout before sending the
// first CONNECT (the Go stand-in for the iframe's load event, which
// this transport has no way to observe directly and so simply lets
// elapse), then posts CONNECT on the schedule above until a READY
// arrives or connectTimeout expires.
func (t *Transport) Connect(ctx context.Context) (rpcenvelope.Port, error) {
	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return nil, errors.New("transport: EnsureMounted must be called before Connect")
	}
	port := t.port
	t.mu.Unlock()

	t.connectMu.Lock()
	if t.connectPending {
		done := t.connectDone
		t.connectMu.Unlock()
		<-done
		return t.connectPort, t.connectErr
	}
	t.connectPending = true
	done := make(chan struct{})
	t.connectDone = done
	t.connectMu.Unlock()

	p, version, err := t.connectOnce(ctx, port)

	t.connectMu.Lock()
	t.connectPort, t.connectErr = p, err
	t.connectPending = false
	t.connectMu.Unlock()
	close(done)

	if err == nil {
		if t.expectedProtocolVersion != "" && version != t.expectedProtocolVersion {
			return nil, fmt.Errorf("transport: protocol version mismatch: got %q want %q", version, t.expectedProtocolVersion)
		}
		t.mu.Lock()
		t.protocolVersion = version
		t.mu.Unlock()
	}
	return p, err
}

// connectOnce runs the handshake and returns the connected Port along
// with the protocolVersion reported on its READY payload.
func (t *Transport) connectOnce(ctx context.Context, port rpcenvelope.Port) (rpcenvelope.Port, string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	select {
	case <-time.After(loadWaitTimeout):
	case <-ctx.Done():
	}

	readyCh := make(chan rpcenvelope.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := port.Recv(ctx)
			if err != nil {
				errCh <- err
				return
			}
			if msg.Type == rpcenvelope.TypeReady {
				readyCh <- msg
				return
			}
		}
	}()

	attempt := 0
	ticker := time.NewTicker(backoffEarly)
	defer ticker.Stop()
	if err := port.Send(rpcenvelope.Message{Type: rpcenvelope.TypeConnect}); err != nil {
		return nil, "", fmt.Errorf("transport: %w", err)
	}
	attempt++

	for {
		select {
		case msg := <-readyCh:
			ready, err := msg.DecodeReady()
			if err != nil {
				return nil, "", fmt.Errorf("transport: decode READY: %w", err)
			}
			return port, ready.ProtocolVersion, nil
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil, "", ErrHandshakeTimeout
			}
			return nil, "", fmt.Errorf("transport: %w", err)
		case <-ctx.Done():
			return nil, "", ErrHandshakeTimeout
		case <-ticker.C:
			attempt++
			ticker.Reset(backoffFor(attempt))
			if err := port.Send(rpcenvelope.Message{Type: rpcenvelope.TypeConnect}); err != nil {
				return nil, "", fmt.Errorf("transport: %w", err)
			}
		}
	}
}

func backoffFor(attempt int) time.Duration {
	switch {
	case attempt <= earlyAttempts:
		return backoffEarly
	case attempt <= midAttempts:
		return backoffMid
	default:
		return backoffLate
	}
}

// Dispose releases the mounted Port, clearing all state so a later
// EnsureMounted can mount a different origin.
func (t *Transport) Dispose() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.mounted {
		return nil
	}
	err := t.port.Close()
	t.mounted = false
	t.origin = ""
	t.port = nil
	t.protocolVersion = ""
	return err
}

// ProtocolVersion returns the protocolVersion reported on the last
// successful READY, or "" before any handshake has completed.
func (t *Transport) ProtocolVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protocolVersion
}
