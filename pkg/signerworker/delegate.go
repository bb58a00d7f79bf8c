// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/nearfi/passkeywallet/pkg/signerworker/borsh"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// SignedDelegateAction is a NEP-366 meta-transaction: a DelegateAction
// plus the sender's signature over it, ready for a relayer to wrap in
// its own outer transaction and pay the gas for.
type SignedDelegateAction struct {
	SenderID       wallettypes.AccountID
	ReceiverID     wallettypes.AccountID
	Nonce          uint64
	MaxBlockHeight uint64
	PublicKey      string
	Signature      []byte
	BorshBytes     []byte // the DelegateAction body, unsigned
}

// SignDelegateAction decrypts the account's key under wrapKeySeed and
// signs a DelegateAction for relayed (gas-sponsored) execution. nonce
// must be reserved by the caller the same way SignTransactionsWithActions
// reserves nonces for direct submission, since a delegate action still
// consumes one nonce on the access key once the relayer broadcasts it.
func (w *Worker) SignDelegateAction(wrapKeySeed wallettypes.WrapKeySeed, accountID wallettypes.AccountID, deviceNumber uint32, receiverID wallettypes.AccountID, actions []wallettypes.Action, nonce, maxBlockHeight uint64) (SignedDelegateAction, error) {
	record, err := w.LoadKeyData(accountID, deviceNumber)
	if err != nil {
		return SignedDelegateAction{}, err
	}
	seed, err := w.DecryptPrivateKeyWithWrapKeySeed(wrapKeySeed, record)
	if err != nil {
		return SignedDelegateAction{}, err
	}
	defer wallettypes.ScrubBytes(seed)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	body := borsh.NewWriter()
	body.WriteString(string(accountID))
	body.WriteString(string(receiverID))
	body.WriteU32(uint32(len(actions)))
	for _, action := range actions {
		if err := writeAction(body, action); err != nil {
			return SignedDelegateAction{}, err
		}
	}
	body.WriteU64(nonce)
	body.WriteU64(maxBlockHeight)
	body.WriteU8(0) // public key type: ed25519
	body.WriteFixedBytes(pub, ed25519.PublicKeySize)

	hash := sha256.Sum256(body.Bytes())
	sig := ed25519.Sign(priv, hash[:])

	return SignedDelegateAction{
		SenderID:       accountID,
		ReceiverID:     receiverID,
		Nonce:          nonce,
		MaxBlockHeight: maxBlockHeight,
		PublicKey:      record.PublicKey,
		Signature:      sig,
		BorshBytes:     body.Bytes(),
	}, nil
}
