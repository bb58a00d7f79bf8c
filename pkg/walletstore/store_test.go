// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package walletstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

func testUser(accountID wallettypes.AccountID) wallettypes.ClientUserData {
	return wallettypes.ClientUserData{
		AccountID:           accountID,
		ClientNearPublicKey: "ed25519:abc",
		EncryptedVRFKeypair: wallettypes.EncryptedVRFKeypair{Ciphertext: []byte("ct"), Nonce: []byte("nonce")},
		DeviceNumber:        0,
		Credential: wallettypes.PasskeyCredentialDescriptor{
			CredentialID: []byte("cred-1"),
			RPID:         "example.near",
			Transports:   []string{"internal"},
		},
		Preferences: map[string]string{"theme": "dark"},
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveUserAndLoadUserRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New(t.TempDir())
	account := wallettypes.AccountID("alice.testnet")
	user := testUser(account)

	require.NoError(s.SaveUser(ctx, user))

	loaded, err := s.LoadUser(ctx, account)
	require.NoError(err)
	require.Equal(user.AccountID, loaded.AccountID)
	require.Equal(user.ClientNearPublicKey, loaded.ClientNearPublicKey)
	require.Equal(user.EncryptedVRFKeypair, loaded.EncryptedVRFKeypair)
	require.Equal(user.Credential, loaded.Credential)
	require.True(user.UpdatedAt.Equal(loaded.UpdatedAt))
}

func TestLoadUserMissingReturnsErrUserNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.LoadUser(context.Background(), wallettypes.AccountID("nobody.testnet"))
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCurrentAccountDefaultsToZeroValue(t *testing.T) {
	require := require.New(t)
	s := New(t.TempDir())

	account, err := s.CurrentAccount(context.Background())
	require.NoError(err)
	require.True(account.IsZero())
}

func TestSetCurrentAccountPersists(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New(t.TempDir())
	account := wallettypes.AccountID("bob.testnet")

	require.NoError(s.SetCurrentAccount(ctx, account))

	got, err := s.CurrentAccount(ctx)
	require.NoError(err)
	require.Equal(account, got)
}

func TestSaveUserOverwritesExistingRecord(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New(t.TempDir())
	account := wallettypes.AccountID("alice.testnet")

	first := testUser(account)
	require.NoError(s.SaveUser(ctx, first))

	second := first
	second.DeviceNumber = 1
	second.ClientNearPublicKey = "ed25519:def"
	require.NoError(s.SaveUser(ctx, second))

	loaded, err := s.LoadUser(ctx, account)
	require.NoError(err)
	require.Equal(uint32(1), loaded.DeviceNumber)
	require.Equal("ed25519:def", loaded.ClientNearPublicKey)
}
