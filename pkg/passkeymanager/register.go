// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"context"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/webauthnbridge"
)

// prfEvalFirst and prfEvalSecond are the fixed PRF extension evaluation
// points this core requests on every ceremony: First feeds the
// WrapKeySeed derivation (VRF worker), Second feeds the NEAR keypair
// derivation (signer worker). Fixed, not random, because the same
// account + authenticator must always re-derive the same two secrets.
var (
	prfEvalFirst  = []byte("passkeywallet/prf/wrapkeyseed")
	prfEvalSecond = []byte("passkeywallet/prf/near-keypair")
)

// Relayer is the external-collaborator boundary for the gas-sponsoring
// HTTP endpoint (§1's "faucet/relayer HTTP endpoints", explicitly out of
// scope) that adds a brand-new device's access key to an account that
// has none yet, since no key exists locally to self-sign that first
// transaction.
type Relayer interface {
	AddKeyForNewAccount(ctx context.Context, accountID wallettypes.AccountID, publicKey string) error
}

// RegisterParams is the caller-supplied input to Register: the account
// being registered, the device slot it occupies, and the already-
// completed WebAuthn attestation (collected via pkg/webauthnbridge
// before this call — the ceremony itself is the external collaborator).
type RegisterParams struct {
	AccountID    wallettypes.AccountID
	DeviceNumber uint32
	RPID         string
	Attestation  webauthnbridge.AttestationResponse
	Challenge    *wallettypes.VRFChallenge
}

// RegisterResult is what Register returns on success.
type RegisterResult struct {
	AccountID     wallettypes.AccountID
	NearPublicKey string
	SessionID     string
}

// PrepareRegistration mints a bootstrap VRF challenge and the
// CredentialCreationOptions the caller forwards to navigator.credentials
// .create() through pkg/webauthnbridge, requesting both PRF evaluation
// points this core needs.
func (m *Manager) PrepareRegistration(accountID wallettypes.AccountID, rpID string, blockHeight uint64, blockHash []byte) (*wallettypes.VRFChallenge, webauthnbridge.CredentialCreationOptions, error) {
	challenge, err := m.VRF.BootstrapGenerate(string(accountID), rpID, blockHeight, blockHash)
	if err != nil {
		return nil, webauthnbridge.CredentialCreationOptions{}, wrapErr("prepare registration", err)
	}
	opts := webauthnbridge.CredentialCreationOptions{
		RP:               webauthnbridge.RelyingParty{ID: rpID},
		User:             webauthnbridge.UserEntity{ID: []byte(accountID), Name: string(accountID)},
		Challenge:        challenge.VRFOutput,
		PubKeyCredParams: webauthnbridge.DefaultPubKeyCredParams(),
		PRF:              &webauthnbridge.PRFExtensionInputs{EvalFirst: prfEvalFirst, EvalSecond: prfEvalSecond},
	}
	return challenge, opts, nil
}

// Register runs the registration flow's phases in order: verifies the
// attestation carries both requested PRF outputs, derives the VRF and
// NEAR keypairs from them, adds the new access key (via the relayer,
// since no local key can self-sign yet), persists the client record, and
// registers the account with the linking contract.
func (m *Manager) Register(ctx context.Context, relayer Relayer, p RegisterParams, report ProgressFunc) (*RegisterResult, error) {
	if report == nil {
		report = noopProgress
	}
	machine := secureconfirm.New(secureconfirm.FlowRegister, func() {})

	report(secureconfirm.PhaseRegWebauthnVerification, "progress", "verifying attestation")
	if p.Attestation.PRF == nil || len(p.Attestation.PRF.First) == 0 || len(p.Attestation.PRF.Second) == 0 {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", fmt.Errorf("missing PRF outputs in attestation"))
	}
	if err := machine.Advance(secureconfirm.PhaseRegWebauthnVerification); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}

	report(secureconfirm.PhaseRegKeyGeneration, "progress", "deriving keys")
	vrfBlob, vrfPublicKey, err := m.VRF.DeriveVRFFromPRF(p.Attestation.PRF.First, p.Attestation.PRF.Second, p.AccountID)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	sessionID, wrapKeySeed, wrapKeySalt, err := m.VRF.MintSessionKeysAndSendToSigner(p.Attestation.PRF.First, nil, defaultSessionTTL, defaultSessionUses, p.Challenge)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	record, err := m.Signer.DeriveNearKeypairAndEncrypt(wrapKeySeed, wrapKeySalt, p.AccountID, p.DeviceNumber)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := machine.Advance(secureconfirm.PhaseRegKeyGeneration); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}

	report(secureconfirm.PhaseRegAccessKeyAddition, "progress", "adding access key")
	if err := relayer.AddKeyForNewAccount(ctx, p.AccountID, record.PublicKey); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := machine.Advance(secureconfirm.PhaseRegAccessKeyAddition); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}

	report(secureconfirm.PhaseRegAccountVerification, "progress", "verifying account")
	txCtx, err := m.Chain.FetchTransactionContext(ctx, p.AccountID, record.PublicKey)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := machine.Advance(secureconfirm.PhaseRegAccountVerification); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}

	report(secureconfirm.PhaseRegDatabaseStorage, "progress", "saving client record")
	userData := wallettypes.ClientUserData{
		AccountID:           p.AccountID,
		ClientNearPublicKey: record.PublicKey,
		EncryptedVRFKeypair: vrfBlob,
		DeviceNumber:        p.DeviceNumber,
		Credential:          wallettypes.PasskeyCredentialDescriptor{CredentialID: p.Attestation.CredentialID, RPID: p.RPID, Transports: p.Attestation.Transports},
	}
	if err := m.Store.SaveUser(ctx, userData); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := m.Store.SetCurrentAccount(ctx, p.AccountID); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := machine.Advance(secureconfirm.PhaseRegDatabaseStorage); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	// vrfPublicKey is not persisted: UnlockVRF recovers it from the
	// decrypted keypair, so ClientUserData only needs the ciphertext.

	report(secureconfirm.PhaseRegContractRegistration, "progress", "registering with contract")
	// txCtx.NextNonce is already chainNonce+1 (§FetchTransactionContext); undo
	// that so SyncFromChain sees the raw on-chain nonce it expects.
	m.Signer.Nonces.SyncFromChain(string(p.AccountID), record.PublicKey, txCtx.NextNonce-1)
	input := wallettypes.TransactionInput{
		ReceiverID: p.AccountID,
		Actions: []wallettypes.Action{
			{Kind: wallettypes.ActionFunctionCall, MethodName: "register_account", GasLimit: gasDefault, DepositYocto: "0"},
		},
	}
	signed, err := m.Signer.SignTransactionsWithActions(wrapKeySeed, p.AccountID, p.DeviceNumber, []wallettypes.TransactionInput{input}, txCtx)
	if err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := m.Chain.Broadcast(ctx, signed[0]); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	if err := machine.Advance(secureconfirm.PhaseRegContractRegistration); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}

	if err := machine.Advance(secureconfirm.PhaseRegComplete); err != nil {
		return nil, m.fail(machine, secureconfirm.PhaseRegError, report, "registration", err)
	}
	report(secureconfirm.PhaseRegComplete, "success", "registration complete")

	return &RegisterResult{AccountID: p.AccountID, NearPublicKey: record.PublicKey, SessionID: sessionID}, nil
}

// fail advances the machine to its error phase (best-effort — Advance
// may itself reject an already-terminal machine, which is fine since we
// only use this for its cleanup side effect), reports a terminal
// PROGRESS, and returns a wrapped error.
func (m *Manager) fail(machine *secureconfirm.Machine, errorPhase secureconfirm.Phase, report ProgressFunc, op string, err error) error {
	_ = machine.Advance(errorPhase)
	report(errorPhase, "error", err.Error())
	return wrapErr(op, err)
}
