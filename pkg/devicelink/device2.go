// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// Device2 drives the new-device side of the linking protocol: generate a
// temporary keypair, display it as a QR code, poll for Device1's
// authorization, then swap the temporary key for a permanent one.
type Device2 struct {
	Signer   *signerworker.Worker
	Mapping  MappingViewer
	Broadcast Broadcaster
	Retry    RetryPolicy
	Log      applog.Logger

	PollInterval time.Duration
}

// NewDevice2 constructs a Device2 with the package's default poll
// interval and retry policy.
func NewDevice2(signer *signerworker.Worker, mapping MappingViewer, broadcast Broadcaster, log applog.Logger) *Device2 {
	return &Device2{
		Signer: signer, Mapping: mapping, Broadcast: broadcast,
		Retry: DefaultRetryPolicy(), Log: log,
		PollInterval: 3 * time.Second,
	}
}

// StartSession generates a random temporary ed25519 keypair, opens a
// DeviceLinkingSession expiring after maxAge, and returns the QR payload
// string to display. accountID is nil for the "Option F" path where the
// account isn't known up front.
func (d *Device2) StartSession(now time.Time, maxAge time.Duration, accountID *wallettypes.AccountID) (*wallettypes.DeviceLinkingSession, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("devicelink: generate temp keypair: %w", err)
	}

	session := wallettypes.NewDeviceLinkingSession(now, maxAge)
	session.SetTempPrivateKey(priv.Seed())
	session.NearPublicKey = signerworker.FormatPublicKey(pub)
	if accountID != nil {
		session.AccountID = *accountID
	}
	session.Phase = wallettypes.DLPhaseQRCodeGenerated

	var acctStr *string
	if accountID != nil {
		s := string(*accountID)
		acctStr = &s
	}
	payload := newQRPayload(session.NearPublicKey, acctStr, now)
	encoded, err := EncodeQRPayload(payload)
	if err != nil {
		session.Scrub()
		return nil, "", err
	}
	return session, encoded, nil
}

// PollForMapping polls Mapping.ViewDeviceMapping every PollInterval until
// it finds the mapping, the session expires, Device1 reports the account
// doesn't exist (ErrAccountNotFound, a terminal poll failure), or ctx is
// cancelled.
func (d *Device2) PollForMapping(ctx context.Context, session *wallettypes.DeviceLinkingSession, machine *secureconfirm.Machine) (DeviceMapping, error) {
	session.Phase = wallettypes.DLPhasePolling
	_ = machine.Advance(secureconfirm.PhaseDLPolling)

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		if session.Expired(time.Now()) {
			return DeviceMapping{}, ErrQRExpired
		}
		mapping, found, err := d.Mapping.ViewDeviceMapping(ctx, session.NearPublicKey)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return DeviceMapping{}, ErrAccountNotFound
			}
			d.Log.Warnf("devicelink: poll error, will retry: %v", err)
		} else if found {
			session.Phase = wallettypes.DLPhaseAddKeyDetected
			_ = machine.Advance(secureconfirm.PhaseDLAddKeyDetected)
			return mapping, nil
		}

		select {
		case <-ctx.Done():
			return DeviceMapping{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CompleteKeySwap re-derives the permanent PRF-backed keypair, atomically
// submits [AddKey(permanent), DeleteKey(temp)] signed with the temporary
// key, and only on success signs the registration transaction with the
// permanent key. The temporary key is scrubbed from session regardless of
// outcome. Registration is retried per d.Retry, classifying errors from
// classify into retryable vs terminal.
func (d *Device2) CompleteKeySwap(ctx context.Context, session *wallettypes.DeviceLinkingSession, mapping DeviceMapping, wrapKeySeed wallettypes.WrapKeySeed, wrapKeySalt []byte, txCtx wallettypes.TransactionContext, classify func(error) error) error {
	defer session.Scrub()

	tempSeed := session.TempPrivateKey()
	if tempSeed == nil {
		return fmt.Errorf("devicelink: temporary key already scrubbed")
	}
	tempPriv := ed25519.NewKeyFromSeed(tempSeed)

	record, addKeyAction, err := d.Signer.RegisterDevice2WithDerivedKey(wrapKeySeed, wrapKeySalt, mapping.AccountID, mapping.DeviceNumber, "", nil, "")
	if err != nil {
		return fmt.Errorf("devicelink: derive permanent key: %w", err)
	}

	deleteTempAction := wallettypes.Action{Kind: wallettypes.ActionDeleteKey, PublicKey: session.NearPublicKey}
	swapInput := wallettypes.TransactionInput{
		ReceiverID: mapping.AccountID,
		Actions:    []wallettypes.Action{addKeyAction, deleteTempAction},
	}
	swapTx, err := signerworker.SignTransactionWithKeyPair(tempPriv, mapping.AccountID, txCtx.NextNonce, swapInput, txCtx.TxBlockHash)
	if err != nil {
		return fmt.Errorf("devicelink: assemble key-swap transaction: %w", err)
	}
	if err := d.Broadcast.Broadcast(ctx, swapTx); err != nil {
		if classify != nil {
			return classify(err)
		}
		return err
	}

	session.Phase = wallettypes.DLPhaseRegistration
	err = d.Retry.Run(ctx, func(attemptNum int) error {
		regErr := d.registerDevice2(ctx, record, mapping, wrapKeySeed)
		if regErr == nil {
			return nil
		}
		if classify != nil {
			return classify(regErr)
		}
		return regErr
	})
	if err != nil {
		session.Phase = wallettypes.DLPhaseRegistrationError
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	session.Phase = wallettypes.DLPhaseLinkingComplete
	return nil
}

// registerDevice2 signs and broadcasts the device-2 registration
// transaction with the now-persisted permanent key.
func (d *Device2) registerDevice2(ctx context.Context, record wallettypes.EncryptedKeyData, mapping DeviceMapping, wrapKeySeed wallettypes.WrapKeySeed) error {
	input := wallettypes.TransactionInput{
		ReceiverID: mapping.AccountID,
		Actions: []wallettypes.Action{
			{Kind: wallettypes.ActionFunctionCall, MethodName: "confirm_device_link", GasLimit: 30_000_000_000_000, DepositYocto: "0"},
		},
	}
	// A freshly added access key starts its nonce sequence at 0.
	d.Signer.Nonces.SyncFromChain(string(mapping.AccountID), record.PublicKey, 0)

	txCtx := wallettypes.TransactionContext{TxBlockHash: make([]byte, 32)}
	signed, err := d.Signer.SignTransactionsWithActions(wrapKeySeed, mapping.AccountID, mapping.DeviceNumber, []wallettypes.TransactionInput{input}, txCtx)
	if err != nil {
		return err
	}
	return d.Broadcast.Broadcast(ctx, signed[0])
}
