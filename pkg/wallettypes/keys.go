// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallettypes

import "time"

// EncryptedKeyData is the per (accountId, deviceNumber) record owned by the
// signer worker's persistent store. The NEAR private key is never present
// in plaintext outside the signer worker's address space; only its
// ciphertext and the parameters needed to re-derive the wrap key are kept
// here.
type EncryptedKeyData struct {
	AccountID    AccountID
	DeviceNumber uint32

	Ciphertext   []byte
	Nonce        []byte
	WrapKeySalt  []byte // base64url on the wire, raw bytes in memory
	PublicKey    string // "ed25519:<hex>"
	Version      uint8
}

// EncryptedVRFKeypair is the AEAD-encrypted VRF secret key blob held in
// ClientUserData, plus its nonce.
type EncryptedVRFKeypair struct {
	Ciphertext []byte
	Nonce      []byte
}

// ServerEncryptedVRFKeypair is the Shamir 3-pass blob produced when the VRF
// secret key has been re-encrypted under a remote relay server key.
type ServerEncryptedVRFKeypair struct {
	Blob       []byte
	ServerKeyID string
}

// PasskeyCredentialDescriptor identifies the WebAuthn credential associated
// with an account/device, without holding any secret material.
type PasskeyCredentialDescriptor struct {
	CredentialID []byte
	RPID         string
	Transports   []string
}

// ClientUserData is the per-account record used by the VRF worker and the
// registration/login flows. Invariant: exactly one EncryptedVRFKeypair per
// (account, device).
type ClientUserData struct {
	AccountID               AccountID
	ClientNearPublicKey     string
	EncryptedVRFKeypair     EncryptedVRFKeypair
	ServerEncryptedVRFKeypair *ServerEncryptedVRFKeypair
	DeviceNumber            uint32
	Credential              PasskeyCredentialDescriptor
	Preferences             map[string]string
	UpdatedAt               time.Time
}

// WrapKeySeed is the ephemeral 32-byte secret derived inside the VRF worker
// as HKDF(PRF.first, wrapKeySalt). It is never serialized to storage, never
// logged, and never crosses the boundary into the host-facing RPC: the type
// deliberately has no exported accessor other than Bytes, and no json/zap
// marshaling methods, so a stray log.Infof("%+v", seed) or json.Marshal
// cannot leak it.
type WrapKeySeed struct {
	b [32]byte
}

// NewWrapKeySeed wraps a 32-byte secret. Copies the input so the caller's
// buffer can be scrubbed independently.
func NewWrapKeySeed(secret []byte) WrapKeySeed {
	var w WrapKeySeed
	copy(w.b[:], secret)
	return w
}

// Bytes returns the seed's 32 raw bytes. Callers must not retain the slice
// past the scrub point of the owning session.
func (w WrapKeySeed) Bytes() []byte {
	return w.b[:]
}

// Scrub overwrites the seed in place. Safe to call multiple times.
func (w *WrapKeySeed) Scrub() {
	for i := range w.b {
		w.b[i] = 0
	}
}

// String implements fmt.Stringer without revealing the secret, so that
// accidental interpolation into a log line is harmless.
func (w WrapKeySeed) String() string {
	return "wrapkeyseed(redacted)"
}
