// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package host implements the wallet-core side of the Port boundary: it
// reads PM_* request Messages, dispatches each to pkg/passkeymanager,
// streams PROGRESS messages back as the operation advances, and resolves
// with PM_RESULT or ERROR. It plays the role the teacher's
// backend_walletconnect.go session-request loop plays on its relay side,
// generalized from a single relayed call to the module's whole PM_*
// surface, the same design §4.5 calls out for the WalletHost component.
package host

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/passkeymanager"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/walleterrors"
)

// Host dispatches inbound PM_* requests on Port to Manager, one goroutine
// per in-flight request, and writes PROGRESS/PM_RESULT/ERROR back.
type Host struct {
	Port    rpcenvelope.Port
	Manager *passkeymanager.Manager
	Relayer passkeymanager.Relayer
	Log     applog.Logger

	mu      sync.Mutex
	pending map[string]context.CancelFunc
	wg      sync.WaitGroup

	// rollbacks holds AuthorizeDeviceLink's pre-signed rollback
	// transaction for a device that was authorized but hasn't yet
	// confirmed CompleteDeviceLink, keyed by "accountId/deviceNumber".
	// PendingRollback and ClearRollback are its only readers; cmd/walletd
	// does not call them, and no PM_* op reads this table.
	rbMu      sync.Mutex
	rollbacks map[string]wallettypes.SignedTransaction
}

// New constructs a Host. log defaults to a no-op logger if nil.
func New(port rpcenvelope.Port, manager *passkeymanager.Manager, relayer passkeymanager.Relayer, log applog.Logger) *Host {
	if log == nil {
		log = applog.NewNop()
	}
	return &Host{
		Port:      port,
		Manager:   manager,
		Relayer:   relayer,
		Log:       log,
		pending:   make(map[string]context.CancelFunc),
		rollbacks: make(map[string]wallettypes.SignedTransaction),
	}
}

func rollbackKey(accountID string, deviceNumber uint32) string {
	return fmt.Sprintf("%s/%d", accountID, deviceNumber)
}

// trackRollback records rollback as the undo transaction for the device
// AuthorizeDeviceLink just authorized.
func (h *Host) trackRollback(accountID string, deviceNumber uint32, rollback wallettypes.SignedTransaction) {
	h.rbMu.Lock()
	defer h.rbMu.Unlock()
	h.rollbacks[rollbackKey(accountID, deviceNumber)] = rollback
}

// PendingRollback returns the rollback transaction tracked for a device,
// if one is still outstanding.
func (h *Host) PendingRollback(accountID string, deviceNumber uint32) (wallettypes.SignedTransaction, bool) {
	h.rbMu.Lock()
	defer h.rbMu.Unlock()
	tx, ok := h.rollbacks[rollbackKey(accountID, deviceNumber)]
	return tx, ok
}

// ClearRollback drops a tracked rollback transaction once its device has
// confirmed linking (or the rollback itself has been applied).
func (h *Host) ClearRollback(accountID string, deviceNumber uint32) {
	h.rbMu.Lock()
	defer h.rbMu.Unlock()
	delete(h.rollbacks, rollbackKey(accountID, deviceNumber))
}

// Serve reads Messages from Port until ctx is cancelled or the port
// closes, dispatching every PM_<OP> request to its own goroutine so a
// slow operation (e.g. a device-linking poll) never blocks unrelated
// requests. It returns once every dispatched handler has finished.
func (h *Host) Serve(ctx context.Context) error {
	defer h.wg.Wait()
	for {
		msg, err := h.Port.Recv(ctx)
		if err != nil {
			return err
		}
		h.handle(ctx, msg)
	}
}

func (h *Host) handle(ctx context.Context, msg rpcenvelope.Message) {
	op, ok := opFromWireType(msg.Type)
	if !ok {
		switch msg.Type {
		case rpcenvelope.TypeConnect:
			_ = h.Port.Send(rpcenvelope.NewReady(protocolVersion))
		default:
			if strings.HasPrefix(string(msg.Type), "PM_") && msg.Type != rpcenvelope.TypeResult {
				h.sendError(msg.RequestID, walleterrors.New(walleterrors.KindValidation, walleterrors.CodeUnknown, "unsupported operation"))
				return
			}
			h.Log.Warnf("host: ignoring unrecognized message type %q", msg.Type)
		}
		return
	}

	if op == rpcenvelope.OpCancel {
		h.cancel(msg.RequestID)
		return
	}

	// STOP shares its requestId with the START it aborts: cancel START's
	// context before STOP's own registration replaces it.
	if op == rpcenvelope.OpStopDevice2LinkingFlow {
		h.cancel(msg.RequestID)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.pending[msg.RequestID] = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.clearPending(msg.RequestID)
		h.dispatch(reqCtx, op, msg)
	}()
}

func (h *Host) cancel(requestID string) {
	h.mu.Lock()
	cancel, ok := h.pending[requestID]
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

func (h *Host) clearPending(requestID string) {
	h.mu.Lock()
	delete(h.pending, requestID)
	h.mu.Unlock()
}

// protocolVersion is echoed on READY after a CONNECT handshake.
const protocolVersion = "1"

// opFromWireType strips the "PM_" wire prefix a request Type carries and
// reports whether msgType names a known PM_* operation.
func opFromWireType(msgType rpcenvelope.Type) (rpcenvelope.Op, bool) {
	const prefix = "PM_"
	s := string(msgType)
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	op := rpcenvelope.Op(s[len(prefix):])
	if _, known := knownOps[op]; !known {
		return "", false
	}
	return op, true
}

var knownOps = map[rpcenvelope.Op]struct{}{
	rpcenvelope.OpCancel:                  {},
	rpcenvelope.OpRegister:                {},
	rpcenvelope.OpLogin:                   {},
	rpcenvelope.OpLogout:                  {},
	rpcenvelope.OpGetLoginState:           {},
	rpcenvelope.OpSignTxsWithActions:      {},
	rpcenvelope.OpSignAndSendTxs:          {},
	rpcenvelope.OpExportNearKeypairUI:     {},
	rpcenvelope.OpStartDevice2LinkingFlow: {},
	rpcenvelope.OpStopDevice2LinkingFlow:  {},
	rpcenvelope.OpLinkDeviceWithScannedQR: {},
	rpcenvelope.OpSetConfig:               {},
	rpcenvelope.OpShamir3PassEncrypt:      {},
	rpcenvelope.OpShamir3PassDecrypt:      {},
}

// dispatch routes op to its handler and resolves the request with the
// handler's result or error. A handler panic — e.g. a malformed payload
// tripping an unrecovered type assertion deep in a dependency — is
// converted into an ERROR instead of taking the whole host down, since
// one bad request must never affect its neighbors.
func (h *Host) dispatch(ctx context.Context, op rpcenvelope.Op, msg rpcenvelope.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.sendError(msg.RequestID, walleterrors.New(walleterrors.KindWalletTransport, walleterrors.CodeUnknown, "internal error handling request"))
		}
	}()

	var (
		result any
		err    error
	)
	switch op {
	case rpcenvelope.OpRegister:
		result, err = h.handleRegister(ctx, msg)
	case rpcenvelope.OpLogin:
		result, err = h.handleLogin(ctx, msg)
	case rpcenvelope.OpLogout:
		h.Manager.Logout()
		result, err = struct{}{}, nil
	case rpcenvelope.OpGetLoginState:
		result, err = h.handleGetLoginState(ctx, msg)
	case rpcenvelope.OpSignTxsWithActions:
		result, err = h.handleSign(ctx, msg, false)
	case rpcenvelope.OpSignAndSendTxs:
		result, err = h.handleSign(ctx, msg, true)
	case rpcenvelope.OpExportNearKeypairUI:
		result, err = h.handleExport(msg)
	case rpcenvelope.OpStartDevice2LinkingFlow:
		result, err = h.handleStartDevice2LinkingFlow(ctx, msg)
	case rpcenvelope.OpStopDevice2LinkingFlow:
		h.cancel(msg.RequestID)
		result, err = struct{}{}, nil
	case rpcenvelope.OpLinkDeviceWithScannedQR:
		result, err = h.handleLinkDeviceWithScannedQR(ctx, msg)
	case rpcenvelope.OpSetConfig:
		result, err = h.handleSetConfig(msg)
	case rpcenvelope.OpShamir3PassEncrypt:
		result, err = h.handleShamir3PassEncrypt(ctx, msg)
	case rpcenvelope.OpShamir3PassDecrypt:
		result, err = h.handleShamir3PassDecrypt(ctx, msg)
	default:
		err = walleterrors.New(walleterrors.KindValidation, walleterrors.CodeUnknown, "unsupported operation")
	}

	if err != nil {
		h.sendError(msg.RequestID, err)
		return
	}
	h.sendResult(msg.RequestID, result)
}
