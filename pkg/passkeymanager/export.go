// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// ExportParams is the caller-supplied input to Export. SessionID must
// name a session still holding at least one dispense use — this is the
// narrowest flow, gated on a single confirmation rather than a fresh
// WebAuthn ceremony, since the session itself already proved
// possession of the passkey.
type ExportParams struct {
	SessionID    string
	AccountID    wallettypes.AccountID
	DeviceNumber uint32
}

// ExportResult carries the decrypted NEAR keypair in its wire string
// form. Callers must not log or persist this value.
type ExportResult struct {
	AccountID     wallettypes.AccountID
	NearPublicKey string
	NearPrivateKey string
}

// Export runs the key-export flow's two phases: dispense the session's
// WrapKeySeed (standing in for the confirmation gate — a session only
// exists because its owner already completed a WebAuthn ceremony) and
// decrypt the persisted key record under it.
func (m *Manager) Export(p ExportParams, report ProgressFunc) (*ExportResult, error) {
	if report == nil {
		report = noopProgress
	}
	machine := secureconfirm.New(secureconfirm.FlowExport, func() {})

	report(secureconfirm.PhaseExportConfirmation, "progress", "confirming export")
	wrapKeySeed, err := m.VRF.DispenseSessionKey(p.SessionID)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseExportError, report, "export", err)
	}
	record, err := m.Signer.LoadKeyData(p.AccountID, p.DeviceNumber)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseExportError, report, "export", err)
	}
	if err := machine.Advance(secureconfirm.PhaseExportConfirmation); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseExportError, report, "export", err)
	}

	seed, err := m.Signer.DecryptPrivateKeyWithWrapKeySeed(wrapKeySeed, record)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseExportError, report, "export", err)
	}
	defer wallettypes.ScrubBytes(seed)
	if len(seed) == 0 {
		return nil, m.fail(machine, secureconfirm.PhaseExportError, report, "export", fmt.Errorf("decrypted key material is empty"))
	}
	privateKey := signerworker.FormatPrivateKey(seed)

	if err := machine.Advance(secureconfirm.PhaseExportComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseExportError, report, "export", err)
	}
	report(secureconfirm.PhaseExportComplete, "success", "key material exported")

	return &ExportResult{AccountID: p.AccountID, NearPublicKey: record.PublicKey, NearPrivateKey: privateKey}, nil
}
