// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package passkeymanager is the orchestrator core: it owns the VRF and
// signer workers, wires them through the secure-confirmation phase
// machine and the device-linking flows, and exposes one method per
// PM_* operation for pkg/host to dispatch into. It plays the role the
// teacher's pkg/application.Lux struct plays as "the central context
// that owns and wires subsystems", generalized from CLI command
// plumbing to per-request orchestration.
package passkeymanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/devicelink"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/vrfworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// ChainClient is the external-collaborator boundary this core consumes
// for every on-chain fact and effect: contract views, transaction
// broadcast, and access-key/block lookups. Satisfied by pkg/nearclient
// in production and by fakes in tests, mirroring how devicelink itself
// depends only on MappingViewer/Broadcaster.
type ChainClient interface {
	devicelink.MappingViewer
	devicelink.Broadcaster
	FetchTransactionContext(ctx context.Context, accountID wallettypes.AccountID, publicKey string) (wallettypes.TransactionContext, error)
}

// Store is the external-collaborator boundary for per-account
// client-side state (§6's IndexedDB "user"/"authenticator"/"nearKeys"
// stores, explicitly out of scope for this core). The host wires a
// concrete implementation; the core only ever reads/writes through this
// narrow interface.
type Store interface {
	SaveUser(ctx context.Context, data wallettypes.ClientUserData) error
	LoadUser(ctx context.Context, accountID wallettypes.AccountID) (wallettypes.ClientUserData, error)
	SetCurrentAccount(ctx context.Context, accountID wallettypes.AccountID) error
	CurrentAccount(ctx context.Context) (wallettypes.AccountID, error)
}

// ProgressFunc streams one PROGRESS event for the in-flight request;
// phase/status mirror secureconfirm.Phase/rpcenvelope.Status wire
// strings without importing rpcenvelope here, so this package stays
// reusable outside the RPC boundary (e.g. from cmd/walletd directly).
type ProgressFunc func(phase secureconfirm.Phase, status string, message string)

func noopProgress(secureconfirm.Phase, string, string) {}

// Manager wires the VRF worker, signer worker, device-linking flows and
// chain client into the register/login/sign/export/link operations.
type Manager struct {
	VRF    *vrfworker.Worker
	Signer *signerworker.Worker
	Chain  ChainClient
	Store  Store
	Conf   *config.WalletConfig
	Log    applog.Logger

	// dlMachines tracks the single secureconfirm.Machine spanning a
	// device-linking session's StartDeviceLink/PollForDeviceLink/
	// CompleteDeviceLink calls, keyed by the session's temporary NEAR
	// public key (stable for the session's lifetime, scrubbed only on a
	// terminal transition). A Machine validates only the immediate next
	// phase in its flow's graph, so the same instance must survive across
	// these otherwise-independent calls.
	dlMu       sync.Mutex
	dlMachines map[string]*secureconfirm.Machine
}

// New constructs a Manager. All fields are required except Log, which
// defaults to a no-op logger.
func New(vrf *vrfworker.Worker, signer *signerworker.Worker, chain ChainClient, store Store, conf *config.WalletConfig, log applog.Logger) *Manager {
	if log == nil {
		log = applog.NewNop()
	}
	return &Manager{VRF: vrf, Signer: signer, Chain: chain, Store: store, Conf: conf, Log: log, dlMachines: make(map[string]*secureconfirm.Machine)}
}

// dlMachine returns the in-flight machine for a device-linking session,
// constructing one at IDLE if none exists yet.
func (m *Manager) dlMachine(sessionKey string) *secureconfirm.Machine {
	m.dlMu.Lock()
	defer m.dlMu.Unlock()
	if mach, ok := m.dlMachines[sessionKey]; ok {
		return mach
	}
	mach := secureconfirm.New(secureconfirm.FlowDeviceLinking, func() {
		m.dlMu.Lock()
		delete(m.dlMachines, sessionKey)
		m.dlMu.Unlock()
	})
	m.dlMachines[sessionKey] = mach
	return mach
}

// defaultSessionTTL and defaultSessionUses are the defaults handed to
// MintSessionKeysAndSendToSigner when an operation doesn't negotiate its
// own budget, the same shape as the teacher's fixed wcSigningTimeout
// constant generalized into a use-counted session.
const (
	defaultSessionTTL  = 5 * time.Minute
	defaultSessionUses = 3
)

// gasDefault is the gas attached to the core's own FunctionCall actions
// (registration, device-linking) when the caller doesn't override it.
const gasDefault uint64 = 30_000_000_000_000

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("passkeymanager: %s: %w", op, err)
}
