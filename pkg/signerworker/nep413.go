// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/nearfi/passkeywallet/pkg/signerworker/borsh"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// nep413Tag is NEP-413's fixed prefix tag (2^31 + 413), which domain-
// separates off-chain message signing from on-chain transaction signing
// so a signed message can never be replayed as a transaction.
const nep413Tag uint32 = (1 << 31) + 413

// SignNep413Message signs an off-chain message per NEP-413: Borsh-encodes
// {tag, message, nonce, recipient, callbackUrl?}, hashes it, and signs
// with the account's decrypted ed25519 key.
func (w *Worker) SignNep413Message(wrapKeySeed wallettypes.WrapKeySeed, accountID wallettypes.AccountID, deviceNumber uint32, message, recipient string, nonce [32]byte, callbackURL string) (signature []byte, publicKey string, err error) {
	record, err := w.LoadKeyData(accountID, deviceNumber)
	if err != nil {
		return nil, "", err
	}
	seed, err := w.DecryptPrivateKeyWithWrapKeySeed(wrapKeySeed, record)
	if err != nil {
		return nil, "", err
	}
	defer wallettypes.ScrubBytes(seed)
	priv := ed25519.NewKeyFromSeed(seed)

	payload := encodeNep413Payload(message, recipient, nonce, callbackURL)
	hash := sha256.Sum256(payload)
	sig := ed25519.Sign(priv, hash[:])
	return sig, record.PublicKey, nil
}

func encodeNep413Payload(message, recipient string, nonce [32]byte, callbackURL string) []byte {
	w := borsh.NewWriter()
	w.WriteU32(nep413Tag)
	w.WriteString(message)
	w.WriteFixedBytes(nonce[:], 32)
	w.WriteString(recipient)
	w.WriteBool(callbackURL != "")
	if callbackURL != "" {
		w.WriteString(callbackURL)
	}
	return w.Bytes()
}
