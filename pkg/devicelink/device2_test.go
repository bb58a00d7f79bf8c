// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

type fakeMappingViewer struct {
	mu           sync.Mutex
	pollsBefore  int
	calls        int
	mapping      DeviceMapping
	accountError error
}

func (f *fakeMappingViewer) ViewDeviceMapping(ctx context.Context, pubKey string) (DeviceMapping, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.accountError != nil {
		return DeviceMapping{}, false, f.accountError
	}
	if f.calls <= f.pollsBefore {
		return DeviceMapping{}, false, nil
	}
	return f.mapping, true, nil
}

func (f *fakeMappingViewer) NextDeviceNumber(ctx context.Context, accountID wallettypes.AccountID) (uint32, error) {
	return 2, nil
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []wallettypes.SignedTransaction
	fail error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, tx wallettypes.SignedTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, tx)
	return nil
}

func testWrapKeySeed(b byte) wallettypes.WrapKeySeed {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return wallettypes.NewWrapKeySeed(raw)
}

func TestDevice2StartSessionProducesDecodableQR(t *testing.T) {
	require := require.New(t)
	signer := signerworker.New(t.TempDir(), applog.NewNop())
	d2 := NewDevice2(signer, &fakeMappingViewer{}, &fakeBroadcaster{}, applog.NewNop())

	now := time.Now()
	session, encoded, err := d2.StartSession(now, time.Minute, nil)
	require.NoError(err)
	require.NotNil(session)
	require.NotEmpty(session.NearPublicKey)

	decoded, err := DecodeQRPayload(encoded, now, time.Minute)
	require.NoError(err)
	require.Equal(session.NearPublicKey, decoded.Device2PublicKey)
	require.Nil(decoded.AccountID)
}

func TestDevice2PollForMappingFindsMappingAfterRetries(t *testing.T) {
	require := require.New(t)
	signer := signerworker.New(t.TempDir(), applog.NewNop())
	mapping := &fakeMappingViewer{pollsBefore: 2, mapping: DeviceMapping{AccountID: "alice.testnet", DeviceNumber: 2}}
	d2 := NewDevice2(signer, mapping, &fakeBroadcaster{}, applog.NewNop())
	d2.PollInterval = time.Millisecond

	session, _, err := d2.StartSession(time.Now(), time.Minute, nil)
	require.NoError(err)
	machine := secureconfirm.New(secureconfirm.FlowDeviceLinking, nil)

	found, err := d2.PollForMapping(context.Background(), session, machine)
	require.NoError(err)
	require.Equal(DeviceMapping{AccountID: "alice.testnet", DeviceNumber: 2}, found)
	require.Equal(wallettypes.DLPhaseAddKeyDetected, session.Phase)
}

func TestDevice2PollForMappingStopsOnExpiry(t *testing.T) {
	require := require.New(t)
	signer := signerworker.New(t.TempDir(), applog.NewNop())
	mapping := &fakeMappingViewer{pollsBefore: 1000}
	d2 := NewDevice2(signer, mapping, &fakeBroadcaster{}, applog.NewNop())
	d2.PollInterval = time.Millisecond

	session, _, err := d2.StartSession(time.Now().Add(-time.Hour), time.Minute, nil)
	require.NoError(err)
	machine := secureconfirm.New(secureconfirm.FlowDeviceLinking, nil)

	_, err = d2.PollForMapping(context.Background(), session, machine)
	require.ErrorIs(err, ErrQRExpired)
}

func TestDevice2PollForMappingStopsOnAccountNotFound(t *testing.T) {
	require := require.New(t)
	signer := signerworker.New(t.TempDir(), applog.NewNop())
	mapping := &fakeMappingViewer{accountError: ErrAccountNotFound}
	d2 := NewDevice2(signer, mapping, &fakeBroadcaster{}, applog.NewNop())
	d2.PollInterval = time.Millisecond

	session, _, err := d2.StartSession(time.Now(), time.Minute, nil)
	require.NoError(err)
	machine := secureconfirm.New(secureconfirm.FlowDeviceLinking, nil)

	_, err = d2.PollForMapping(context.Background(), session, machine)
	require.ErrorIs(err, ErrAccountNotFound)
}

func TestDevice2CompleteKeySwapScrubsTempKeyAndBroadcastsBoth(t *testing.T) {
	require := require.New(t)
	signer := signerworker.New(t.TempDir(), applog.NewNop())
	broadcaster := &fakeBroadcaster{}
	d2 := NewDevice2(signer, &fakeMappingViewer{}, broadcaster, applog.NewNop())

	session, _, err := d2.StartSession(time.Now(), time.Minute, nil)
	require.NoError(err)

	seed := testWrapKeySeed(1)
	mapping := DeviceMapping{AccountID: "alice.testnet", DeviceNumber: 2}
	txCtx := wallettypes.TransactionContext{TxBlockHash: make([]byte, 32)}

	err = d2.CompleteKeySwap(context.Background(), session, mapping, seed, []byte("salt"), txCtx, nil)
	require.NoError(err)
	require.Nil(session.TempPrivateKey())
	require.Len(broadcaster.sent, 2)
	require.Equal(wallettypes.DLPhaseLinkingComplete, session.Phase)
}

func TestDevice2CompleteKeySwapMarksRegistrationErrorOnExhaustedRetries(t *testing.T) {
	require := require.New(t)
	signer := signerworker.New(t.TempDir(), applog.NewNop())
	broadcaster := &fakeBroadcaster{}
	d2 := NewDevice2(signer, &fakeMappingViewer{}, broadcaster, applog.NewNop())
	d2.Retry = RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}

	session, _, err := d2.StartSession(time.Now(), time.Minute, nil)
	require.NoError(err)

	seed := testWrapKeySeed(2)
	mapping := DeviceMapping{AccountID: "alice.testnet", DeviceNumber: 2}
	txCtx := wallettypes.TransactionContext{TxBlockHash: make([]byte, 32)}

	classify := func(err error) error { return Retryable(err) }

	// The first broadcast (the key swap) succeeds; every subsequent one
	// (registerDevice2's retries) fails, exhausting the retry budget.
	d2.Broadcast = &failAfterNBroadcaster{inner: broadcaster, succeedCalls: 1}

	err = d2.CompleteKeySwap(context.Background(), session, mapping, seed, []byte("salt"), txCtx, classify)
	require.ErrorIs(err, ErrRegistrationFailed)
	require.Equal(wallettypes.DLPhaseRegistrationError, session.Phase)
}

// failAfterNBroadcaster delegates its first succeedCalls broadcasts and
// fails every call after that, modeling a registration endpoint that
// keeps rejecting retries.
type failAfterNBroadcaster struct {
	inner        Broadcaster
	succeedCalls int
	calls        int
}

func (b *failAfterNBroadcaster) Broadcast(ctx context.Context, tx wallettypes.SignedTransaction) error {
	b.calls++
	if b.calls > b.succeedCalls {
		return errors.New("registration endpoint rejected request")
	}
	return b.inner.Broadcast(ctx, tx)
}
