// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"context"
	"fmt"
	"time"

	"github.com/nearfi/passkeywallet/pkg/devicelink"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// defaultQRMaxAge bounds how long a Device2 QR code (and the temporary
// key it advertises) stays valid before the session must be restarted.
const defaultQRMaxAge = 2 * time.Minute

// device1 and device2 lazily construct their devicelink.Device1/Device2
// drivers from the Manager's own Signer/Chain/Log, so callers never need
// to wire those up themselves.
func (m *Manager) device2() *devicelink.Device2 {
	return devicelink.NewDevice2(m.Signer, m.Chain, m.Chain, m.Log)
}

func (m *Manager) device1() *devicelink.Device1 {
	return devicelink.NewDevice1(m.Signer, m.Chain, m.Chain, m.Log)
}

// StartDeviceLinkParams is the caller-supplied input to StartDeviceLink.
// AccountID is nil for the "scan first, learn the account later" path.
type StartDeviceLinkParams struct {
	AccountID *wallettypes.AccountID
	Now       time.Time
}

// StartDeviceLink begins the new-device (Device2) side of linking: it
// generates a temporary keypair and returns the session plus the QR
// payload string the caller renders. It also opens the session's
// secureconfirm.Machine, which PollForDeviceLink and CompleteDeviceLink
// continue across their own, later calls.
func (m *Manager) StartDeviceLink(p StartDeviceLinkParams, report ProgressFunc) (*wallettypes.DeviceLinkingSession, string, error) {
	if report == nil {
		report = noopProgress
	}
	session, qr, err := m.device2().StartSession(p.Now, defaultQRMaxAge, p.AccountID)
	if err != nil {
		report(secureconfirm.PhaseDLRegistrationError, "error", err.Error())
		return nil, "", wrapErr("start device link", err)
	}
	machine := m.dlMachine(session.NearPublicKey)
	if err := machine.Advance(secureconfirm.PhaseDLQRCodeGenerated); err != nil {
		return nil, "", m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "start device link", err)
	}
	report(secureconfirm.PhaseDLQRCodeGenerated, "progress", "qr code ready")
	return session, qr, nil
}

// CompleteDeviceLinkParams is the caller-supplied input to
// CompleteDeviceLink, run after StartDeviceLink's session finds its
// mapping via PollForDeviceLink.
type CompleteDeviceLinkParams struct {
	Session     *wallettypes.DeviceLinkingSession
	Mapping     devicelink.DeviceMapping
	PRFFirst    []byte
	WrapKeySalt []byte
	Challenge   *wallettypes.VRFChallenge
}

// PollForDeviceLink polls until Device1 has authorized the session's
// temporary key, the session expires, or the account is confirmed not to
// exist. Scanning and Authorization are Device1's own steps, invisible
// from this side; this call passes the local machine through them so its
// later Advance(PhaseDLPolling) (inside pkg/devicelink) lands on the
// graph's actual next phase instead of rejecting the transition.
func (m *Manager) PollForDeviceLink(ctx context.Context, session *wallettypes.DeviceLinkingSession, report ProgressFunc) (devicelink.DeviceMapping, error) {
	if report == nil {
		report = noopProgress
	}
	machine := m.dlMachine(session.NearPublicKey)
	if err := machine.Advance(secureconfirm.PhaseDLScanning); err != nil {
		return devicelink.DeviceMapping{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "poll device link", err)
	}
	if err := machine.Advance(secureconfirm.PhaseDLAuthorization); err != nil {
		return devicelink.DeviceMapping{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "poll device link", err)
	}
	report(secureconfirm.PhaseDLPolling, "progress", "waiting for authorization")
	mapping, err := m.device2().PollForMapping(ctx, session, machine)
	if err != nil {
		report(secureconfirm.PhaseDLDeviceLinkingError, "error", err.Error())
		return devicelink.DeviceMapping{}, wrapErr("poll device link", err)
	}
	report(secureconfirm.PhaseDLAddKeyDetected, "progress", "account mapping found")
	return mapping, nil
}

// CompleteDeviceLink finishes the Device2 side: mints session keys from
// the PRF output, derives the permanent key, swaps it in for the
// temporary one, and registers the device with the linking contract.
func (m *Manager) CompleteDeviceLink(ctx context.Context, p CompleteDeviceLinkParams, report ProgressFunc) (*RegisterResult, error) {
	if report == nil {
		report = noopProgress
	}
	machine := m.dlMachine(p.Session.NearPublicKey)

	sessionID, wrapKeySeed, _, err := m.VRF.MintSessionKeysAndSendToSigner(p.PRFFirst, p.WrapKeySalt, defaultSessionTTL, defaultSessionUses, p.Challenge)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "complete device link", err)
	}

	txCtx, err := m.Chain.FetchTransactionContext(ctx, p.Mapping.AccountID, p.Session.NearPublicKey)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "complete device link", err)
	}

	report(secureconfirm.PhaseDLRegistration, "progress", "swapping in permanent key")
	if err := machine.Advance(secureconfirm.PhaseDLRegistration); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "complete device link", err)
	}
	if err := m.device2().CompleteKeySwap(ctx, p.Session, p.Mapping, wrapKeySeed, p.WrapKeySalt, txCtx, nil); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "complete device link", err)
	}

	record, err := m.Signer.LoadKeyData(p.Mapping.AccountID, p.Mapping.DeviceNumber)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "complete device link", err)
	}

	if err := machine.Advance(secureconfirm.PhaseDLLinkingComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "complete device link", err)
	}
	report(secureconfirm.PhaseDLLinkingComplete, "success", "device linked")

	return &RegisterResult{AccountID: p.Mapping.AccountID, NearPublicKey: record.PublicKey, SessionID: sessionID}, nil
}

// AuthorizeDeviceLinkParams is the caller-supplied input to
// AuthorizeDeviceLink, the existing-device (Device1) side of linking.
type AuthorizeDeviceLinkParams struct {
	AccountID       wallettypes.AccountID
	OwnDeviceNumber uint32
	QREncoded       string
	PRFFirst        []byte
	WrapKeySalt     []byte
	Now             time.Time
}

// AuthorizeDeviceLink scans a Device2 QR code and submits the on-chain
// authorization batch, returning the new device's assigned number and a
// pre-signed rollback transaction the caller should retain until
// CompleteDeviceLink is confirmed to have succeeded on Device2's side.
func (m *Manager) AuthorizeDeviceLink(ctx context.Context, p AuthorizeDeviceLinkParams, report ProgressFunc) (newDeviceNumber uint32, rollback wallettypes.SignedTransaction, err error) {
	if report == nil {
		report = noopProgress
	}
	machine := secureconfirm.New(secureconfirm.FlowDeviceLinking, func() {})

	// PhaseDLQRCodeGenerated is Device2's own step, invisible here; pass
	// the local machine through it so the following Advance lands on the
	// graph's actual next phase.
	if err := machine.Advance(secureconfirm.PhaseDLQRCodeGenerated); err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}
	report(secureconfirm.PhaseDLScanning, "progress", "decoding qr code")
	if err := machine.Advance(secureconfirm.PhaseDLScanning); err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}

	_, wrapKeySeed, _, err := m.VRF.MintSessionKeysAndSendToSigner(p.PRFFirst, p.WrapKeySalt, defaultSessionTTL, defaultSessionUses, nil)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}

	keyRecord, err := m.Signer.LoadKeyData(p.AccountID, p.OwnDeviceNumber)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}
	txCtx, err := m.Chain.FetchTransactionContext(ctx, p.AccountID, keyRecord.PublicKey)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}

	report(secureconfirm.PhaseDLAuthorization, "progress", "authorizing new device")
	newDeviceNumber, rollback, err = m.device1().AuthorizeDevice2(ctx, wrapKeySeed, p.AccountID, p.OwnDeviceNumber, p.QREncoded, p.Now, defaultQRMaxAge, txCtx)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}
	if err := machine.Advance(secureconfirm.PhaseDLAuthorization); err != nil {
		return 0, wallettypes.SignedTransaction{}, m.fail(machine, secureconfirm.PhaseDLDeviceLinkingError, report, "authorize device link", err)
	}
	report(secureconfirm.PhaseDLAuthorization, "success", fmt.Sprintf("device %d authorized", newDeviceNumber))

	return newDeviceNumber, rollback, nil
}

// RollbackDeviceLink revokes a previously authorized device's access key
// after it fails to complete registration within its retry budget.
func (m *Manager) RollbackDeviceLink(ctx context.Context, rollback wallettypes.SignedTransaction) error {
	if err := m.device1().Rollback(ctx, rollback); err != nil {
		return wrapErr("rollback device link", err)
	}
	return nil
}
