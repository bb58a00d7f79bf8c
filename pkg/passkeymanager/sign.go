// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"context"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// SignParams is the caller-supplied input to Sign. SessionID names a
// signing session minted by Login/Register, whose use budget is
// dispensed instead of re-running a full WebAuthn ceremony per
// transaction — the per-operation STEP_4_WEBAUTHN_AUTHENTICATION phase
// is satisfied by that dispense rather than a fresh assertion, the
// SigningSession use-budget model this core generalizes toward.
// Broadcast selects SIGN_TXS_WITH_ACTIONS (false) vs SIGN_AND_SEND_TXS
// (true).
type SignParams struct {
	SessionID    string
	AccountID    wallettypes.AccountID
	DeviceNumber uint32
	Inputs       []wallettypes.TransactionInput
	Broadcast    bool
}

// SignResult is what Sign returns on success.
type SignResult struct {
	Signed []wallettypes.SignedTransaction
}

// Sign runs the transaction-signing flow's phases in order: resolves the
// account's own public key and a fresh TransactionContext, dispenses the
// session's WrapKeySeed, signs every input in order, and — if requested
// — broadcasts each signed transaction, releasing the batch's reserved
// nonces if any broadcast fails.
func (m *Manager) Sign(ctx context.Context, p SignParams, report ProgressFunc) (*SignResult, error) {
	if report == nil {
		report = noopProgress
	}
	machine := secureconfirm.New(secureconfirm.FlowSign, func() {})

	report(secureconfirm.PhaseSignPreparation, "progress", "preparing transaction context")
	keyRecord, err := m.Signer.LoadKeyData(p.AccountID, p.DeviceNumber)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	txCtx, err := m.Chain.FetchTransactionContext(ctx, p.AccountID, keyRecord.PublicKey)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	if err := machine.Advance(secureconfirm.PhaseSignPreparation); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}

	report(secureconfirm.PhaseSignUserConfirmation, "progress", "awaiting confirmation")
	if err := machine.Advance(secureconfirm.PhaseSignUserConfirmation); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}

	report(secureconfirm.PhaseSignContractVerification, "progress", "contract pre-check")
	if err := machine.Advance(secureconfirm.PhaseSignContractVerification); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}

	report(secureconfirm.PhaseSignWebauthnAuthentication, "progress", "dispensing session key")
	wrapKeySeed, err := m.VRF.DispenseSessionKey(p.SessionID)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	if err := machine.Advance(secureconfirm.PhaseSignWebauthnAuthentication); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	if err := machine.Advance(secureconfirm.PhaseSignAuthenticationComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}

	report(secureconfirm.PhaseSignTransactionSigning, "progress", "signing transactions")
	signed, err := m.Signer.SignTransactionsWithActions(wrapKeySeed, p.AccountID, p.DeviceNumber, p.Inputs, txCtx)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	if err := machine.Advance(secureconfirm.PhaseSignTransactionComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}

	if !p.Broadcast {
		if err := machine.Advance(secureconfirm.PhaseSignBroadcasting); err != nil {
			return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
		}
		if err := machine.Advance(secureconfirm.PhaseSignActionComplete); err != nil {
			return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
		}
		report(secureconfirm.PhaseSignActionComplete, "success", "transactions signed")
		return &SignResult{Signed: signed}, nil
	}

	report(secureconfirm.PhaseSignBroadcasting, "progress", "broadcasting")
	if err := machine.Advance(secureconfirm.PhaseSignBroadcasting); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	for i, tx := range signed {
		if err := m.Chain.Broadcast(ctx, tx); err != nil {
			releaseErr := m.Signer.Nonces.Release(string(p.AccountID), keyRecord.PublicKey, signed[0].Nonce, len(signed))
			if releaseErr != nil {
				m.Log.Warnf("passkeymanager: nonce range already consumed past broadcast failure: %v", releaseErr)
			}
			return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", fmt.Errorf("broadcasting tx %d: %w", i, err))
		}
	}
	if err := machine.Advance(secureconfirm.PhaseSignActionComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseSignError, report, "sign", err)
	}
	report(secureconfirm.PhaseSignActionComplete, "success", "transactions signed and broadcast")

	return &SignResult{Signed: signed}, nil
}
