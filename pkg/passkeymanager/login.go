// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"bytes"
	"context"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/webauthnbridge"
)

// LoginParams is the caller-supplied input to Login: the account to
// unlock and the already-completed WebAuthn assertion carrying its PRF
// first output.
type LoginParams struct {
	AccountID  wallettypes.AccountID
	RPID       string
	Assertion  webauthnbridge.AssertionResponse
}

// LoginResult is what Login returns on success.
type LoginResult struct {
	AccountID wallettypes.AccountID
	SessionID string
}

// PrepareLogin mints a fresh VRF challenge to feed as the WebAuthn
// assertion's challenge, and the CredentialRequestOptions the caller
// forwards through pkg/webauthnbridge.
func (m *Manager) PrepareLogin(ctx context.Context, accountID wallettypes.AccountID, rpID string, blockHeight uint64, blockHash []byte) (*wallettypes.VRFChallenge, webauthnbridge.CredentialRequestOptions, error) {
	userData, err := m.Store.LoadUser(ctx, accountID)
	if err != nil {
		return nil, webauthnbridge.CredentialRequestOptions{}, wrapErr("prepare login", err)
	}
	challenge, err := m.VRF.BootstrapGenerate(string(accountID), rpID, blockHeight, blockHash)
	if err != nil {
		return nil, webauthnbridge.CredentialRequestOptions{}, wrapErr("prepare login", err)
	}
	opts := webauthnbridge.CredentialRequestOptions{
		Challenge: challenge.VRFOutput,
		RPID:      rpID,
		AllowCredentials: []webauthnbridge.PublicKeyCredentialDescriptor{
			{Type: "public-key", ID: string(userData.Credential.CredentialID), Transports: userData.Credential.Transports},
		},
		PRF: &webauthnbridge.PRFExtensionInputs{EvalFirst: prfEvalFirst, EvalSecond: prfEvalSecond},
	}
	return challenge, opts, nil
}

// Login runs the login flow's phases in order: loads the client record,
// verifies the assertion matches it and carries a PRF first output, then
// unlocks the VRF keypair and mints a fresh signing session.
func (m *Manager) Login(ctx context.Context, p LoginParams, report ProgressFunc) (*LoginResult, error) {
	if report == nil {
		report = noopProgress
	}
	machine := secureconfirm.New(secureconfirm.FlowLogin, func() {})

	report(secureconfirm.PhaseLoginPreparation, "progress", "loading account")
	userData, err := m.Store.LoadUser(ctx, p.AccountID)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}
	if err := machine.Advance(secureconfirm.PhaseLoginPreparation); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}

	report(secureconfirm.PhaseLoginWebauthnAssertion, "progress", "verifying assertion")
	if p.Assertion.PRF == nil || len(p.Assertion.PRF.First) == 0 {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", fmt.Errorf("missing PRF output in assertion"))
	}
	if !bytes.Equal(p.Assertion.CredentialID, userData.Credential.CredentialID) {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", fmt.Errorf("assertion credential does not match stored credential"))
	}
	if err := machine.Advance(secureconfirm.PhaseLoginWebauthnAssertion); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}

	report(secureconfirm.PhaseLoginVRFUnlock, "progress", "unlocking vrf keypair")
	if err := m.VRF.UnlockVRF(p.Assertion.PRF.First, p.AccountID, userData.EncryptedVRFKeypair); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}
	keyRecord, err := m.Signer.LoadKeyData(p.AccountID, userData.DeviceNumber)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}
	sessionID, _, _, err := m.VRF.MintSessionKeysAndSendToSigner(p.Assertion.PRF.First, keyRecord.WrapKeySalt, defaultSessionTTL, defaultSessionUses, nil)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}
	if err := machine.Advance(secureconfirm.PhaseLoginVRFUnlock); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}

	if err := m.Store.SetCurrentAccount(ctx, p.AccountID); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}
	if err := machine.Advance(secureconfirm.PhaseLoginComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseLoginError, report, "login", err)
	}
	report(secureconfirm.PhaseLoginComplete, "success", "login complete")

	return &LoginResult{AccountID: p.AccountID, SessionID: sessionID}, nil
}

// GetLoginState reports the currently active account, if any.
func (m *Manager) GetLoginState(ctx context.Context) (wallettypes.AccountID, error) {
	return m.Store.CurrentAccount(ctx)
}

// Logout clears every in-memory VRF session and keypair. Per-account
// persisted state in Store is untouched.
func (m *Manager) Logout() {
	m.VRF.Logout()
}
