// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"bytes"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// RegisterDevice2WithDerivedKey derives and persists a new device's NEAR
// keypair, and returns the AddKey action the caller submits against the
// existing account to authorize it — either full access (restrictTo
// empty) or a function-call-restricted key scoped to restrictTo and
// methodNames.
func (w *Worker) RegisterDevice2WithDerivedKey(wrapKeySeed wallettypes.WrapKeySeed, wrapKeySalt []byte, accountID wallettypes.AccountID, deviceNumber uint32, restrictTo string, methodNames []string, allowanceYocto string) (wallettypes.EncryptedKeyData, wallettypes.Action, error) {
	record, err := w.DeriveNearKeypairAndEncrypt(wrapKeySeed, wrapKeySalt, accountID, deviceNumber)
	if err != nil {
		return wallettypes.EncryptedKeyData{}, wallettypes.Action{}, err
	}
	action := wallettypes.Action{
		Kind:           wallettypes.ActionAddKey,
		PublicKey:      record.PublicKey,
		ReceiverID:     restrictTo,
		MethodNames:    methodNames,
		AllowanceYocto: allowanceYocto,
	}
	return record, action, nil
}

// RecoverKeypairFromPasskey re-derives a device's NEAR keypair from a
// freshly re-authenticated WrapKeySeed and confirms it against the
// persisted record's wrapKeySalt and public key, re-persisting only if
// no local record exists yet (the device lost its local storage but the
// account and its salt are recoverable from the passkey alone).
func (w *Worker) RecoverKeypairFromPasskey(wrapKeySeed wallettypes.WrapKeySeed, wrapKeySalt []byte, accountID wallettypes.AccountID, deviceNumber uint32) (wallettypes.EncryptedKeyData, error) {
	existing, err := w.LoadKeyData(accountID, deviceNumber)
	if err == nil {
		if !bytes.Equal(existing.WrapKeySalt, wrapKeySalt) {
			return wallettypes.EncryptedKeyData{}, fmt.Errorf("signerworker: recovered wrapKeySalt does not match persisted record")
		}
		priv, pub, derr := derivePrivateKey(wrapKeySeed, accountID, deviceNumber)
		if derr != nil {
			return wallettypes.EncryptedKeyData{}, derr
		}
		wallettypes.ScrubBytes(priv)
		if FormatPublicKey(pub) != existing.PublicKey {
			return wallettypes.EncryptedKeyData{}, fmt.Errorf("signerworker: recovered public key does not match persisted record")
		}
		return existing, nil
	}
	if err != ErrKeyNotFound {
		return wallettypes.EncryptedKeyData{}, err
	}
	return w.DeriveNearKeypairAndEncrypt(wrapKeySeed, wrapKeySalt, accountID, deviceNumber)
}
