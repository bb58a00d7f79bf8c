// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeQRPayloadRoundTrips(t *testing.T) {
	require := require.New(t)
	now := time.UnixMilli(1_700_000_000_000)
	account := "alice.testnet"
	payload := QRPayload{Device2PublicKey: "ed25519:abcd", AccountID: &account, Timestamp: now.UnixMilli(), Version: "1.0"}

	encoded, err := EncodeQRPayload(payload)
	require.NoError(err)

	decoded, err := DecodeQRPayload(encoded, now, time.Minute)
	require.NoError(err)
	require.Equal(payload.Device2PublicKey, decoded.Device2PublicKey)
	require.Equal(*payload.AccountID, *decoded.AccountID)
}

func TestDecodeQRPayloadRejectsMissingPublicKey(t *testing.T) {
	require := require.New(t)
	now := time.UnixMilli(1_700_000_000_000)
	payload := QRPayload{Timestamp: now.UnixMilli(), Version: "1.0"}
	encoded, err := EncodeQRPayload(payload)
	require.NoError(err)

	_, err = DecodeQRPayload(encoded, now, time.Minute)
	require.True(errors.Is(err, ErrInvalidQRData) || err != nil)
}

func TestDecodeQRPayloadRejectsMissingTimestamp(t *testing.T) {
	require := require.New(t)
	payload := QRPayload{Device2PublicKey: "ed25519:abcd", Version: "1.0"}
	encoded, err := EncodeQRPayload(payload)
	require.NoError(err)

	_, err = DecodeQRPayload(encoded, time.UnixMilli(1_700_000_000_000), time.Minute)
	require.Error(err)
}

func TestDecodeQRPayloadRejectsExpiredTimestamp(t *testing.T) {
	require := require.New(t)
	now := time.UnixMilli(1_700_000_000_000)
	payload := QRPayload{Device2PublicKey: "ed25519:abcd", Timestamp: now.Add(-10 * time.Minute).UnixMilli(), Version: "1.0"}
	encoded, err := EncodeQRPayload(payload)
	require.NoError(err)

	_, err = DecodeQRPayload(encoded, now, time.Minute)
	require.ErrorIs(err, ErrQRExpired)
}

func TestDecodeQRPayloadRejectsInvalidAccountID(t *testing.T) {
	require := require.New(t)
	now := time.UnixMilli(1_700_000_000_000)
	bad := "!!not-valid!!"
	payload := QRPayload{Device2PublicKey: "ed25519:abcd", AccountID: &bad, Timestamp: now.UnixMilli(), Version: "1.0"}
	encoded, err := EncodeQRPayload(payload)
	require.NoError(err)

	_, err = DecodeQRPayload(encoded, now, time.Minute)
	require.ErrorIs(err, ErrInvalidQRData)
}

func TestDecodeQRPayloadRejectsGarbageBase64(t *testing.T) {
	_, err := DecodeQRPayload("not base64 at all!!", time.Now(), time.Minute)
	require.Error(t, err)
}

func TestRenderQRPNGProducesNonEmptyImage(t *testing.T) {
	require := require.New(t)
	png, err := RenderQRPNG("some-payload", 128)
	require.NoError(err)
	require.NotEmpty(png)
}

func TestRenderQRTerminalProducesNonEmptyString(t *testing.T) {
	require := require.New(t)
	s, err := RenderQRTerminal("some-payload")
	require.NoError(err)
	require.NotEmpty(s)
}
