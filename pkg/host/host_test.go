// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/devicelink"
	"github.com/nearfi/passkeywallet/pkg/passkeymanager"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/vrfworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

type fakeChain struct {
	mapping      devicelink.DeviceMapping
	mappingFound bool
	mappingErr   error
	blockForever bool
}

func (f *fakeChain) ViewDeviceMapping(ctx context.Context, devicePublicKey string) (devicelink.DeviceMapping, bool, error) {
	if f.blockForever {
		<-ctx.Done()
		return devicelink.DeviceMapping{}, false, ctx.Err()
	}
	return f.mapping, f.mappingFound, f.mappingErr
}

func (f *fakeChain) NextDeviceNumber(ctx context.Context, accountID wallettypes.AccountID) (uint32, error) {
	return 1, nil
}

func (f *fakeChain) Broadcast(ctx context.Context, tx wallettypes.SignedTransaction) error {
	return nil
}

func (f *fakeChain) FetchTransactionContext(ctx context.Context, accountID wallettypes.AccountID, publicKey string) (wallettypes.TransactionContext, error) {
	return wallettypes.TransactionContext{NextNonce: 1, TxBlockHash: make([]byte, 32)}, nil
}

type fakeStore struct {
	current wallettypes.AccountID
}

func (f *fakeStore) SaveUser(ctx context.Context, data wallettypes.ClientUserData) error { return nil }
func (f *fakeStore) LoadUser(ctx context.Context, accountID wallettypes.AccountID) (wallettypes.ClientUserData, error) {
	return wallettypes.ClientUserData{}, nil
}
func (f *fakeStore) SetCurrentAccount(ctx context.Context, accountID wallettypes.AccountID) error {
	f.current = accountID
	return nil
}
func (f *fakeStore) CurrentAccount(ctx context.Context) (wallettypes.AccountID, error) {
	return f.current, nil
}

type fakeRelayer struct{}

func (fakeRelayer) AddKeyForNewAccount(ctx context.Context, accountID wallettypes.AccountID, publicKey string) error {
	return nil
}

func newTestHost(t *testing.T, chain *fakeChain) (*Host, *rpcenvelope.ChanPort) {
	t.Helper()
	conf := config.DefaultWalletConfig()
	manager := passkeymanager.New(vrfworker.New(), signerworker.New(t.TempDir(), applog.NewNop()), chain, &fakeStore{}, &conf, applog.NewNop())
	parent, child := rpcenvelope.NewChanPortPair(8)
	h := New(child, manager, fakeRelayer{}, applog.NewNop())
	return h, parent
}

func TestOpFromWireType(t *testing.T) {
	op, ok := opFromWireType(rpcenvelope.Type("PM_SET_CONFIG"))
	require.True(t, ok)
	require.Equal(t, rpcenvelope.OpSetConfig, op)

	_, ok = opFromWireType(rpcenvelope.Type("PROGRESS"))
	require.False(t, ok)

	_, ok = opFromWireType(rpcenvelope.Type("PM_NOT_A_REAL_OP"))
	require.False(t, ok)
}

func TestHandleSetConfigAppliesValidConfig(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	payload, err := json.Marshal(config.WalletConfig{
		Theme:       config.ThemeDark,
		NearRPCURL:  "https://rpc.testnet.near.org",
		NearNetwork: config.NetworkTestnet,
		ContractID:  "linking.testnet",
	})
	require.NoError(t, err)
	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpSetConfig.WireType()), RequestID: "req-1", Payload: payload}))

	msg := recvUntil(t, parent, rpcenvelope.TypeResult)
	result, err := msg.DecodeResult()
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, "linking.testnet", h.Manager.Conf.ContractID)
}

func TestHandleSetConfigRejectsInvalidConfig(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	payload, err := json.Marshal(config.WalletConfig{NearNetwork: config.NetworkTestnet})
	require.NoError(t, err)
	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpSetConfig.WireType()), RequestID: "req-2", Payload: payload}))

	msg := recvUntil(t, parent, rpcenvelope.TypeError)
	errPayload, err := msg.DecodeError()
	require.NoError(t, err)
	require.NotEmpty(t, errPayload.Code)
}

func TestHandleGetLoginStateWhenLoggedOut(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpGetLoginState.WireType()), RequestID: "req-3"}))

	msg := recvUntil(t, parent, rpcenvelope.TypeResult)
	result, err := msg.DecodeResult()
	require.NoError(t, err)
	var state loginStateResponse
	require.NoError(t, json.Unmarshal(result.Result, &state))
	require.False(t, state.LoggedIn)
}

func TestUnknownOperationReturnsError(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type("PM_SET_THEME"), RequestID: "req-4"}))
	msg := recvUntil(t, parent, rpcenvelope.TypeError)
	errPayload, err := msg.DecodeError()
	require.NoError(t, err)
	require.NotEmpty(t, errPayload.Code)
}

func TestCancelStopsInFlightDeviceLinkingPoll(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{blockForever: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	payload, err := json.Marshal(startDevice2LinkingRequest{PRFFirst: []byte("prf-first"), WrapKeySalt: []byte("salt")})
	require.NoError(t, err)
	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpStartDevice2LinkingFlow.WireType()), RequestID: "req-5", Payload: payload}))

	// Drain the QR-ready progress before cancelling.
	_ = recvUntil(t, parent, rpcenvelope.TypeProgress)

	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpCancel.WireType()), RequestID: "req-5"}))

	msg := recvUntil(t, parent, rpcenvelope.TypeError)
	errPayload, err := msg.DecodeError()
	require.NoError(t, err)
	require.NotEmpty(t, errPayload.Code)
}

func recvUntil(t *testing.T, port *rpcenvelope.ChanPort, want rpcenvelope.Type) rpcenvelope.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		msg, err := port.Recv(ctx)
		require.NoError(t, err)
		if msg.Type == want {
			return msg
		}
	}
}
