// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/signerworker/borsh"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// NEAR action enum discriminants, in on-chain order.
const (
	actionTagCreateAccount uint8 = iota
	actionTagDeployContract
	actionTagFunctionCall
	actionTagTransfer
	actionTagStake
	actionTagAddKey
	actionTagDeleteKey
	actionTagDeleteAccount
)

const accessKeyPermissionFunctionCall uint8 = 0
const accessKeyPermissionFullAccess uint8 = 1

// SignTransactionsWithActions decrypts the account's key under
// wrapKeySeed, reserves one contiguous nonce per input, and returns one
// signed, Borsh-serialized transaction per input in order. On any
// per-input assembly error the whole batch is rejected and the reserved
// nonce range is released back to the pool.
func (w *Worker) SignTransactionsWithActions(wrapKeySeed wallettypes.WrapKeySeed, accountID wallettypes.AccountID, deviceNumber uint32, inputs []wallettypes.TransactionInput, txCtx wallettypes.TransactionContext) ([]wallettypes.SignedTransaction, error) {
	record, err := w.LoadKeyData(accountID, deviceNumber)
	if err != nil {
		return nil, err
	}
	seed, err := w.DecryptPrivateKeyWithWrapKeySeed(wrapKeySeed, record)
	if err != nil {
		return nil, err
	}
	defer wallettypes.ScrubBytes(seed)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	pubKeyStr := record.PublicKey

	start, err := w.Nonces.Reserve(string(accountID), pubKeyStr, len(inputs))
	if err != nil {
		return nil, err
	}

	out := make([]wallettypes.SignedTransaction, 0, len(inputs))
	for i, input := range inputs {
		nonce := start + uint64(i)
		signed, err := signOneTransaction(priv, pub, accountID, nonce, input, txCtx.TxBlockHash)
		if err != nil {
			_ = w.Nonces.Release(string(accountID), pubKeyStr, start, len(inputs))
			return nil, fmt.Errorf("signerworker: assembling tx %d: %w", i, err)
		}
		out = append(out, signed)
	}
	return out, nil
}

// SignTransactionWithKeyPair assembles and signs a single transaction
// with an already-unwrapped ed25519 keypair, used by flows (e.g. device
// linking) that temporarily hold a raw key outside the persisted store.
func SignTransactionWithKeyPair(priv ed25519.PrivateKey, signerID wallettypes.AccountID, nonce uint64, input wallettypes.TransactionInput, blockHash []byte) (wallettypes.SignedTransaction, error) {
	pub := priv.Public().(ed25519.PublicKey)
	return signOneTransaction(priv, pub, signerID, nonce, input, blockHash)
}

func signOneTransaction(priv ed25519.PrivateKey, pub ed25519.PublicKey, signerID wallettypes.AccountID, nonce uint64, input wallettypes.TransactionInput, blockHash []byte) (wallettypes.SignedTransaction, error) {
	unsigned := borsh.NewWriter()
	if err := writeTransactionBody(unsigned, signerID, pub, nonce, input.ReceiverID, blockHash, input.Actions); err != nil {
		return wallettypes.SignedTransaction{}, err
	}
	hash := sha256.Sum256(unsigned.Bytes())
	sig := ed25519.Sign(priv, hash[:])

	signed := borsh.NewWriter()
	if err := writeTransactionBody(signed, signerID, pub, nonce, input.ReceiverID, blockHash, input.Actions); err != nil {
		return wallettypes.SignedTransaction{}, err
	}
	signed.WriteU8(0) // signature key type: ed25519
	signed.WriteFixedBytes(sig, ed25519.SignatureSize)

	return wallettypes.SignedTransaction{
		SignerID:   signerID,
		ReceiverID: input.ReceiverID,
		Nonce:      nonce,
		Hash:       hash,
		BorshBytes: signed.Bytes(),
	}, nil
}

func writeTransactionBody(w *borsh.Writer, signerID wallettypes.AccountID, pub ed25519.PublicKey, nonce uint64, receiverID wallettypes.AccountID, blockHash []byte, actions []wallettypes.Action) error {
	w.WriteString(string(signerID))
	w.WriteU8(0) // public key type: ed25519
	w.WriteFixedBytes(pub, ed25519.PublicKeySize)
	w.WriteU64(nonce)
	w.WriteString(string(receiverID))
	w.WriteFixedBytes(blockHash, 32)
	w.WriteU32(uint32(len(actions)))
	for _, action := range actions {
		if err := writeAction(w, action); err != nil {
			return err
		}
	}
	return nil
}

func writeAction(w *borsh.Writer, a wallettypes.Action) error {
	switch a.Kind {
	case wallettypes.ActionCreateAccount:
		w.WriteU8(actionTagCreateAccount)
	case wallettypes.ActionDeployContract:
		w.WriteU8(actionTagDeployContract)
		w.WriteBytes(a.WASMCode)
	case wallettypes.ActionFunctionCall:
		w.WriteU8(actionTagFunctionCall)
		w.WriteString(a.MethodName)
		w.WriteBytes(a.Args)
		w.WriteU64(a.GasLimit)
		if err := w.WriteU128(a.DepositYocto); err != nil {
			return err
		}
	case wallettypes.ActionTransfer:
		w.WriteU8(actionTagTransfer)
		if err := w.WriteU128(a.DepositYocto); err != nil {
			return err
		}
	case wallettypes.ActionStake:
		w.WriteU8(actionTagStake)
		if err := w.WriteU128(a.StakeYocto); err != nil {
			return err
		}
		pub, err := ParsePublicKey(a.PublicKey)
		if err != nil {
			return err
		}
		w.WriteU8(0)
		w.WriteFixedBytes(pub, ed25519.PublicKeySize)
	case wallettypes.ActionAddKey:
		w.WriteU8(actionTagAddKey)
		pub, err := ParsePublicKey(a.PublicKey)
		if err != nil {
			return err
		}
		w.WriteU8(0)
		w.WriteFixedBytes(pub, ed25519.PublicKeySize)
		w.WriteU64(0) // access key nonce always starts at 0 on creation
		if a.ReceiverID == "" {
			w.WriteU8(accessKeyPermissionFullAccess)
			break
		}
		w.WriteU8(accessKeyPermissionFunctionCall)
		w.WriteBool(a.AllowanceYocto != "")
		if a.AllowanceYocto != "" {
			if err := w.WriteU128(a.AllowanceYocto); err != nil {
				return err
			}
		}
		w.WriteString(a.ReceiverID)
		w.WriteStringVec(a.MethodNames)
	case wallettypes.ActionDeleteKey:
		w.WriteU8(actionTagDeleteKey)
		pub, err := ParsePublicKey(a.PublicKey)
		if err != nil {
			return err
		}
		w.WriteU8(0)
		w.WriteFixedBytes(pub, ed25519.PublicKeySize)
	case wallettypes.ActionDeleteAccount:
		w.WriteU8(actionTagDeleteAccount)
		w.WriteString(a.ReceiverID) // beneficiary account id
	default:
		return fmt.Errorf("signerworker: unsupported action kind %q", a.Kind)
	}
	return nil
}
