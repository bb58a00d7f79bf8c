// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcenvelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpWireType(t *testing.T) {
	require.Equal(t, "PM_REGISTER", OpRegister.WireType())
	require.Equal(t, "PM_SIGN_TXS_WITH_ACTIONS", OpSignTxsWithActions.WireType())
}

func TestMessageRoundTripProgress(t *testing.T) {
	require := require.New(t)
	msg := NewProgress("req-1", "STEP_2_WEBAUTHN_ASSERTION", StatusProgress, "waiting for assertion")

	data, err := json.Marshal(msg)
	require.NoError(err)

	var decoded Message
	require.NoError(json.Unmarshal(data, &decoded))

	require.Equal(TypeProgress, decoded.Type)
	require.Equal("req-1", decoded.RequestID)

	p, err := decoded.DecodeProgress()
	require.NoError(err)
	require.Equal("STEP_2_WEBAUTHN_ASSERTION", p.Phase)
	require.Equal(StatusProgress, p.Status)
}

func TestMessageRoundTripResult(t *testing.T) {
	require := require.New(t)
	result, err := json.Marshal(map[string]any{"nearAccountId": "alice.testnet"})
	require.NoError(err)

	msg := NewResult("req-2", result)
	data, err := json.Marshal(msg)
	require.NoError(err)

	var decoded Message
	require.NoError(json.Unmarshal(data, &decoded))
	require.Equal(TypeResult, decoded.Type)

	r, err := decoded.DecodeResult()
	require.NoError(err)
	require.True(r.OK)

	var payload map[string]any
	require.NoError(json.Unmarshal(r.Result, &payload))
	require.Equal("alice.testnet", payload["nearAccountId"])
}

func TestMessageRoundTripError(t *testing.T) {
	require := require.New(t)
	msg := NewError("req-3", "REGISTRATION_FAILED", "account registration failed", map[string]any{"rollback": true})

	data, err := json.Marshal(msg)
	require.NoError(err)

	var decoded Message
	require.NoError(json.Unmarshal(data, &decoded))
	require.Equal(TypeError, decoded.Type)

	e, err := decoded.DecodeError()
	require.NoError(err)
	require.Equal("REGISTRATION_FAILED", e.Code)
	require.Equal(true, e.Details["rollback"])
}

func TestNewRequestCarriesOptions(t *testing.T) {
	require := require.New(t)
	msg, err := NewRequest(OpSignNep413, "req-4", map[string]string{"message": "hello"}, &RequestOptions{Sticky: true})
	require.NoError(err)
	require.Equal(Type("PM_SIGN_NEP413"), msg.Type)
	require.True(msg.Options.Sticky)
}
