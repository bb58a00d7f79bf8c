// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
)

const ed25519PublicKeyPrefix = "ed25519:"

func ed25519KeypairFromSeed(seed []byte) (priv, pub []byte, err error) {
	key := ed25519.NewKeyFromSeed(seed)
	return key.Seed(), key.Public().(ed25519.PublicKey), nil
}

// ParsePublicKey decodes a "ed25519:<hex>" public key string.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(s, ed25519PublicKeyPrefix) {
		return nil, ErrInvalidPublicKey
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, ed25519PublicKeyPrefix))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(raw), nil
}

// FormatPublicKey renders an ed25519 public key in the module's
// "ed25519:<hex>" wire form.
func FormatPublicKey(pub ed25519.PublicKey) string {
	return ed25519PublicKeyPrefix + hex.EncodeToString(pub)
}

// FormatPrivateKey renders a decrypted ed25519 seed as a full keypair in
// the module's "ed25519:<hex>" wire form, the same shape FormatPublicKey
// uses, so an exported key round-trips through ParsePublicKey-style
// tooling without a second format to support.
func FormatPrivateKey(seed []byte) string {
	key := ed25519.NewKeyFromSeed(seed)
	return ed25519PublicKeyPrefix + hex.EncodeToString(key)
}
