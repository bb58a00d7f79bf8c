// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallettypes

// VRFChallenge is produced by the VRF worker and used as the WebAuthn
// challenge; it must be fresh against the on-chain block-height max-age
// rule enforced by the caller.
type VRFChallenge struct {
	VRFInput    []byte
	VRFOutput   []byte
	VRFProof    []byte
	VRFPublicKey []byte
	UserID      string
	RPID        string
	BlockHeight uint64
	BlockHash   []byte
}

// TransactionContext is fetched per signing session.
type TransactionContext struct {
	TxBlockHeight uint64
	TxBlockHash   []byte
	NextNonce     uint64
}
