// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import "errors"

var (
	// ErrKeyNotFound is returned when no persisted key record exists for
	// the requested (accountId, deviceNumber) pair.
	ErrKeyNotFound = errors.New("signerworker: key not found")
	// ErrDecryptFailed is returned when a key record fails to decrypt
	// under the supplied WrapKeySeed, e.g. after a PRF mismatch.
	ErrDecryptFailed = errors.New("signerworker: decrypt failed")
	// ErrInvalidPublicKey is returned when a "ed25519:<hex>" public key
	// string fails to parse.
	ErrInvalidPublicKey = errors.New("signerworker: invalid public key")
	// ErrNonceRangeExhausted is returned when a NonceManager release call
	// doesn't match the tail of its last reservation.
	ErrNonceRangeExhausted = errors.New("signerworker: nonce range not releasable")
)
