// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/devicelink"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/vrfworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/webauthnbridge"
)

type fakeChainClient struct {
	mapping      devicelink.DeviceMapping
	mappingFound bool
	mappingErr   error
	broadcastErr error
	broadcasts   []wallettypes.SignedTransaction
}

func (f *fakeChainClient) ViewDeviceMapping(_ context.Context, _ string) (devicelink.DeviceMapping, bool, error) {
	return f.mapping, f.mappingFound, f.mappingErr
}

func (f *fakeChainClient) NextDeviceNumber(_ context.Context, _ wallettypes.AccountID) (uint32, error) {
	return 1, nil
}

func (f *fakeChainClient) Broadcast(_ context.Context, tx wallettypes.SignedTransaction) error {
	if f.broadcastErr != nil {
		return f.broadcastErr
	}
	f.broadcasts = append(f.broadcasts, tx)
	return nil
}

func (f *fakeChainClient) FetchTransactionContext(_ context.Context, _ wallettypes.AccountID, _ string) (wallettypes.TransactionContext, error) {
	return wallettypes.TransactionContext{NextNonce: 1, TxBlockHash: make([]byte, 32)}, nil
}

type fakeUserStore struct {
	users   map[wallettypes.AccountID]wallettypes.ClientUserData
	current wallettypes.AccountID
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[wallettypes.AccountID]wallettypes.ClientUserData)}
}

func (f *fakeUserStore) SaveUser(_ context.Context, data wallettypes.ClientUserData) error {
	f.users[data.AccountID] = data
	return nil
}

func (f *fakeUserStore) LoadUser(_ context.Context, accountID wallettypes.AccountID) (wallettypes.ClientUserData, error) {
	data, ok := f.users[accountID]
	if !ok {
		return wallettypes.ClientUserData{}, errors.New("fakeUserStore: user not found")
	}
	return data, nil
}

func (f *fakeUserStore) SetCurrentAccount(_ context.Context, accountID wallettypes.AccountID) error {
	f.current = accountID
	return nil
}

func (f *fakeUserStore) CurrentAccount(_ context.Context) (wallettypes.AccountID, error) {
	return f.current, nil
}

type fakeRelayer struct {
	err error
}

func (f fakeRelayer) AddKeyForNewAccount(_ context.Context, _ wallettypes.AccountID, _ string) error {
	return f.err
}

func newTestManager(t *testing.T) (*Manager, *fakeChainClient, *fakeUserStore) {
	t.Helper()
	chain := &fakeChainClient{}
	store := newFakeUserStore()
	conf := config.DefaultWalletConfig()
	manager := New(vrfworker.New(), signerworker.New(t.TempDir(), applog.NewNop()), chain, store, &conf, applog.NewNop())
	return manager, chain, store
}

func validAttestation() webauthnbridge.AttestationResponse {
	return webauthnbridge.AttestationResponse{
		CredentialID: []byte("credential-1"),
		Transports:   []string{"internal"},
		PRF: &webauthnbridge.PRFExtensionOutputs{
			First:  []byte("prf-first-bytes-0123456789"),
			Second: []byte("prf-second-bytes-0123456789"),
		},
	}
}

func TestRegisterSucceedsAndPersistsUser(t *testing.T) {
	manager, _, store := newTestManager(t)

	result, err := manager.Register(context.Background(), fakeRelayer{}, RegisterParams{
		AccountID:    wallettypes.AccountID("alice.testnet"),
		DeviceNumber: 1,
		RPID:         "example.com",
		Attestation:  validAttestation(),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, wallettypes.AccountID("alice.testnet"), result.AccountID)
	require.NotEmpty(t, result.NearPublicKey)
	require.NotEmpty(t, result.SessionID)

	require.Equal(t, wallettypes.AccountID("alice.testnet"), store.current)
	saved, ok := store.users[wallettypes.AccountID("alice.testnet")]
	require.True(t, ok)
	require.Equal(t, result.NearPublicKey, saved.ClientNearPublicKey)
}

func TestRegisterFailsWithoutPRFOutputs(t *testing.T) {
	manager, _, _ := newTestManager(t)

	attestation := validAttestation()
	attestation.PRF = nil

	_, err := manager.Register(context.Background(), fakeRelayer{}, RegisterParams{
		AccountID:    wallettypes.AccountID("alice.testnet"),
		DeviceNumber: 1,
		RPID:         "example.com",
		Attestation:  attestation,
	}, nil)
	require.ErrorContains(t, err, "missing PRF outputs")
}

func TestRegisterFailsWhenRelayerRefuses(t *testing.T) {
	manager, _, _ := newTestManager(t)

	_, err := manager.Register(context.Background(), fakeRelayer{err: errors.New("allowance exhausted")}, RegisterParams{
		AccountID:    wallettypes.AccountID("alice.testnet"),
		DeviceNumber: 1,
		RPID:         "example.com",
		Attestation:  validAttestation(),
	}, nil)
	require.ErrorContains(t, err, "allowance exhausted")
}

func registerTestAccount(t *testing.T, manager *Manager, accountID wallettypes.AccountID) *RegisterResult {
	t.Helper()
	result, err := manager.Register(context.Background(), fakeRelayer{}, RegisterParams{
		AccountID:    accountID,
		DeviceNumber: 1,
		RPID:         "example.com",
		Attestation:  validAttestation(),
	}, nil)
	require.NoError(t, err)
	return result
}

func TestLoginSucceedsAfterRegister(t *testing.T) {
	manager, _, _ := newTestManager(t)
	accountID := wallettypes.AccountID("alice.testnet")
	registerTestAccount(t, manager, accountID)

	result, err := manager.Login(context.Background(), LoginParams{
		AccountID: accountID,
		RPID:      "example.com",
		Assertion: webauthnbridge.AssertionResponse{
			CredentialID: []byte("credential-1"),
			PRF: &webauthnbridge.PRFExtensionOutputs{
				First: []byte("prf-first-bytes-0123456789"),
			},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, accountID, result.AccountID)
	require.NotEmpty(t, result.SessionID)
}

func TestLoginFailsOnCredentialMismatch(t *testing.T) {
	manager, _, _ := newTestManager(t)
	accountID := wallettypes.AccountID("alice.testnet")
	registerTestAccount(t, manager, accountID)

	_, err := manager.Login(context.Background(), LoginParams{
		AccountID: accountID,
		RPID:      "example.com",
		Assertion: webauthnbridge.AssertionResponse{
			CredentialID: []byte("some-other-credential"),
			PRF: &webauthnbridge.PRFExtensionOutputs{
				First: []byte("prf-first-bytes-0123456789"),
			},
		},
	}, nil)
	require.ErrorContains(t, err, "does not match")
}

func TestSignWithoutBroadcastReturnsSignedTransactions(t *testing.T) {
	// Register itself broadcasts one "register_account" transaction, so
	// broadcast counts below are measured relative to that baseline.
	manager, chain, _ := newTestManager(t)
	accountID := wallettypes.AccountID("alice.testnet")
	result := registerTestAccount(t, manager, accountID)
	baseline := len(chain.broadcasts)

	signResult, err := manager.Sign(context.Background(), SignParams{
		SessionID:    result.SessionID,
		AccountID:    accountID,
		DeviceNumber: 1,
		Inputs: []wallettypes.TransactionInput{
			{ReceiverID: accountID, Actions: []wallettypes.Action{{Kind: wallettypes.ActionFunctionCall, MethodName: "noop", GasLimit: 1, DepositYocto: "0"}}},
		},
		Broadcast: false,
	}, nil)
	require.NoError(t, err)
	require.Len(t, signResult.Signed, 1)
	require.Len(t, chain.broadcasts, baseline)
}

func TestSignWithBroadcastCallsChain(t *testing.T) {
	manager, chain, _ := newTestManager(t)
	accountID := wallettypes.AccountID("alice.testnet")
	result := registerTestAccount(t, manager, accountID)
	baseline := len(chain.broadcasts)

	_, err := manager.Sign(context.Background(), SignParams{
		SessionID:    result.SessionID,
		AccountID:    accountID,
		DeviceNumber: 1,
		Inputs: []wallettypes.TransactionInput{
			{ReceiverID: accountID, Actions: []wallettypes.Action{{Kind: wallettypes.ActionFunctionCall, MethodName: "noop", GasLimit: 1, DepositYocto: "0"}}},
		},
		Broadcast: true,
	}, nil)
	require.NoError(t, err)
	require.Len(t, chain.broadcasts, baseline+1)
}

func TestSignFailsOnExhaustedSession(t *testing.T) {
	manager, _, _ := newTestManager(t)
	accountID := wallettypes.AccountID("alice.testnet")
	result := registerTestAccount(t, manager, accountID)

	params := SignParams{
		SessionID:    result.SessionID,
		AccountID:    accountID,
		DeviceNumber: 1,
		Inputs: []wallettypes.TransactionInput{
			{ReceiverID: accountID, Actions: []wallettypes.Action{{Kind: wallettypes.ActionFunctionCall, MethodName: "noop", GasLimit: 1, DepositYocto: "0"}}},
		},
	}
	for i := 0; i < defaultSessionUses; i++ {
		_, err := manager.Sign(context.Background(), params, nil)
		require.NoError(t, err)
	}
	_, err := manager.Sign(context.Background(), params, nil)
	require.Error(t, err)
}

func TestDeviceLinkingEndToEnd(t *testing.T) {
	accountID := wallettypes.AccountID("alice.testnet")
	chain := &fakeChainClient{}
	conf := config.DefaultWalletConfig()

	device1 := New(vrfworker.New(), signerworker.New(t.TempDir(), applog.NewNop()), chain, newFakeUserStore(), &conf, applog.NewNop())
	registerTestAccount(t, device1, accountID)

	device2 := New(vrfworker.New(), signerworker.New(t.TempDir(), applog.NewNop()), chain, newFakeUserStore(), &conf, applog.NewNop())

	session, qrEncoded, err := device2.StartDeviceLink(StartDeviceLinkParams{Now: time.Now()}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, qrEncoded)

	newDeviceNumber, rollback, err := device1.AuthorizeDeviceLink(context.Background(), AuthorizeDeviceLinkParams{
		AccountID:       accountID,
		OwnDeviceNumber: 1,
		QREncoded:       qrEncoded,
		PRFFirst:        []byte("device1-prf-first-0123456789"),
		WrapKeySalt:     []byte("device1-wrap-key-salt-1234567"),
		Now:             time.Now(),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), newDeviceNumber)

	chain.mapping = devicelink.DeviceMapping{AccountID: accountID, DeviceNumber: newDeviceNumber}
	chain.mappingFound = true

	mapping, err := device2.PollForDeviceLink(context.Background(), session, nil)
	require.NoError(t, err)
	require.Equal(t, accountID, mapping.AccountID)

	result, err := device2.CompleteDeviceLink(context.Background(), CompleteDeviceLinkParams{
		Session:     session,
		Mapping:     mapping,
		PRFFirst:    []byte("device2-prf-first-0123456789"),
		WrapKeySalt: []byte("device2-wrap-key-salt-1234567"),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, accountID, result.AccountID)
	require.NotEmpty(t, result.NearPublicKey)

	require.NoError(t, device1.RollbackDeviceLink(context.Background(), rollback))
}

func TestExportReturnsDecryptedKeyMaterial(t *testing.T) {
	manager, _, _ := newTestManager(t)
	accountID := wallettypes.AccountID("alice.testnet")
	result := registerTestAccount(t, manager, accountID)

	exportResult, err := manager.Export(ExportParams{
		SessionID:    result.SessionID,
		AccountID:    accountID,
		DeviceNumber: 1,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, accountID, exportResult.AccountID)
	require.Equal(t, result.NearPublicKey, exportResult.NearPublicKey)
	require.NotEmpty(t, exportResult.NearPrivateKey)
}
