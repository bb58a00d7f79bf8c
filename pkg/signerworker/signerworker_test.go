// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signerworker

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

func testSeed(b byte) wallettypes.WrapKeySeed {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return wallettypes.NewWrapKeySeed(raw)
}

func TestDeriveNearKeypairAndEncryptPersistsAndReloads(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(7)

	record, err := w.DeriveNearKeypairAndEncrypt(seed, []byte("salt-1"), account, 0)
	require.NoError(err)
	require.NotEmpty(record.PublicKey)

	loaded, err := w.LoadKeyData(account, 0)
	require.NoError(err)
	require.Equal(record.PublicKey, loaded.PublicKey)
	require.Equal(record.Ciphertext, loaded.Ciphertext)
}

func TestDeriveNearKeypairIsDeterministicForSameSeed(t *testing.T) {
	require := require.New(t)
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(9)

	w1 := New(t.TempDir(), applog.NewNop())
	r1, err := w1.DeriveNearKeypairAndEncrypt(seed, []byte("salt"), account, 0)
	require.NoError(err)

	w2 := New(t.TempDir(), applog.NewNop())
	r2, err := w2.DeriveNearKeypairAndEncrypt(seed, []byte("salt"), account, 0)
	require.NoError(err)

	require.Equal(r1.PublicKey, r2.PublicKey)
}

func TestDecryptPrivateKeyWithWrongSeedFails(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")

	record, err := w.DeriveNearKeypairAndEncrypt(testSeed(1), nil, account, 0)
	require.NoError(err)

	_, err = w.DecryptPrivateKeyWithWrapKeySeed(testSeed(2), record)
	require.ErrorIs(err, ErrDecryptFailed)
}

func TestLoadKeyDataMissingReturnsErrKeyNotFound(t *testing.T) {
	w := New(t.TempDir(), applog.NewNop())
	_, err := w.LoadKeyData(wallettypes.AccountID("nobody.testnet"), 0)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSignTransactionsWithActionsAssignsSequentialNonces(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(3)

	record, err := w.DeriveNearKeypairAndEncrypt(seed, nil, account, 0)
	require.NoError(err)
	w.Nonces.SyncFromChain(string(account), record.PublicKey, 99)

	inputs := []wallettypes.TransactionInput{
		{ReceiverID: "bob.testnet", Actions: []wallettypes.Action{{Kind: wallettypes.ActionTransfer, DepositYocto: "1000000000000000000000000"}}},
		{ReceiverID: "carol.testnet", Actions: []wallettypes.Action{{Kind: wallettypes.ActionTransfer, DepositYocto: "1"}}},
	}
	txCtx := wallettypes.TransactionContext{TxBlockHash: make([]byte, 32)}

	signed, err := w.SignTransactionsWithActions(seed, account, 0, inputs, txCtx)
	require.NoError(err)
	require.Len(signed, 2)
	require.Equal(uint64(100), signed[0].Nonce)
	require.Equal(uint64(101), signed[1].Nonce)
	require.NotEmpty(signed[0].BorshBytes)
	require.NotEqual(signed[0].Hash, signed[1].Hash)
}

func TestSignTransactionsWithActionsRejectsUnknownActionKind(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(4)

	record, err := w.DeriveNearKeypairAndEncrypt(seed, nil, account, 0)
	require.NoError(err)
	w.Nonces.SyncFromChain(string(account), record.PublicKey, 0)

	inputs := []wallettypes.TransactionInput{
		{ReceiverID: "bob.testnet", Actions: []wallettypes.Action{{Kind: "Bogus"}}},
	}
	_, err = w.SignTransactionsWithActions(seed, account, 0, inputs, wallettypes.TransactionContext{TxBlockHash: make([]byte, 32)})
	require.Error(err)

	// The nonce range reserved for the failed batch must be released.
	next, ok := w.Nonces.Peek(string(account), record.PublicKey)
	require.True(ok)
	require.Equal(uint64(1), next)
}

func TestSignNep413MessageProducesVerifiableSignature(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(5)

	record, err := w.DeriveNearKeypairAndEncrypt(seed, nil, account, 0)
	require.NoError(err)

	sig, pubKeyStr, err := w.SignNep413Message(seed, account, 0, "hello world", "example.com", [32]byte{1, 2, 3}, "")
	require.NoError(err)
	require.Equal(record.PublicKey, pubKeyStr)

	pub, err := ParsePublicKey(pubKeyStr)
	require.NoError(err)

	payload := encodeNep413Payload("hello world", "example.com", [32]byte{1, 2, 3}, "")
	hash := sha256.Sum256(payload)
	require.True(ed25519.Verify(pub, hash[:], sig))
}

func TestRegisterDevice2WithDerivedKeyProducesAddKeyAction(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(6)

	record, action, err := w.RegisterDevice2WithDerivedKey(seed, []byte("salt"), account, 1, "", nil, "")
	require.NoError(err)
	require.Equal(wallettypes.ActionAddKey, action.Kind)
	require.Equal(record.PublicKey, action.PublicKey)
	require.Empty(action.ReceiverID)
}

func TestRecoverKeypairFromPasskeyRejectsSaltMismatch(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(8)

	_, err := w.DeriveNearKeypairAndEncrypt(seed, []byte("original-salt"), account, 0)
	require.NoError(err)

	_, err = w.RecoverKeypairFromPasskey(seed, []byte("different-salt"), account, 0)
	require.Error(err)
}

func TestRecoverKeypairFromPasskeyRederivesWhenMissing(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(10)

	record, err := w.RecoverKeypairFromPasskey(seed, []byte("salt"), account, 0)
	require.NoError(err)
	require.NotEmpty(record.PublicKey)
}

func TestSignDelegateActionProducesSignature(t *testing.T) {
	require := require.New(t)
	w := New(t.TempDir(), applog.NewNop())
	account := wallettypes.AccountID("alice.testnet")
	seed := testSeed(11)

	_, err := w.DeriveNearKeypairAndEncrypt(seed, nil, account, 0)
	require.NoError(err)

	delegate, err := w.SignDelegateAction(seed, account, 0, "relayer.testnet", []wallettypes.Action{
		{Kind: wallettypes.ActionFunctionCall, MethodName: "do_thing", GasLimit: 30_000_000_000_000, DepositYocto: "0"},
	}, 5, 1000)
	require.NoError(err)
	require.NotEmpty(delegate.Signature)
	require.Equal(uint64(5), delegate.Nonce)
}

func TestNonceManagerReserveAndRelease(t *testing.T) {
	require := require.New(t)
	m := NewNonceManager()
	m.SyncFromChain("alice.testnet", "pk", 10)

	start, err := m.Reserve("alice.testnet", "pk", 3)
	require.NoError(err)
	require.Equal(uint64(11), start)

	require.NoError(m.Release("alice.testnet", "pk", start, 3))
	next, ok := m.Peek("alice.testnet", "pk")
	require.True(ok)
	require.Equal(uint64(11), next)
}

func TestNonceManagerReleaseFailsIfNotTail(t *testing.T) {
	require := require.New(t)
	m := NewNonceManager()
	m.SyncFromChain("alice.testnet", "pk", 0)

	start1, err := m.Reserve("alice.testnet", "pk", 2)
	require.NoError(err)
	_, err = m.Reserve("alice.testnet", "pk", 2)
	require.NoError(err)

	err = m.Release("alice.testnet", "pk", start1, 2)
	require.ErrorIs(err, ErrNonceRangeExhausted)
}
