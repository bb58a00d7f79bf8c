// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package webauthnbridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
)

func TestBuildCreateRequestRoundTripsThroughMessage(t *testing.T) {
	require := require.New(t)
	opts := CredentialCreationOptions{
		RP:               RelyingParty{ID: "example.com", Name: "Example Wallet"},
		User:             UserEntity{ID: []byte("user-1"), Name: "alice.testnet", DisplayName: "Alice"},
		Challenge:        []byte{1, 2, 3},
		PubKeyCredParams: DefaultPubKeyCredParams(),
		PRF:              &PRFExtensionInputs{EvalFirst: []byte("first")},
	}
	msg, err := BuildCreateRequest("req-1", opts)
	require.NoError(err)
	require.Equal(rpcenvelope.TypeWebauthnCreate, msg.Type)
	require.Equal("req-1", msg.RequestID)
	require.Contains(string(msg.Payload), "example.com")
}

func TestParseCreateResultRejectsWrongType(t *testing.T) {
	msg := rpcenvelope.Message{Type: rpcenvelope.TypeWebauthnGetResult}
	_, err := ParseCreateResult(msg)
	require.Error(t, err)
}

func TestParseCreateResultParsesPRFOutputs(t *testing.T) {
	require := require.New(t)
	msg := rpcenvelope.Message{
		Type:    rpcenvelope.TypeWebauthnCreateResult,
		Payload: []byte(`{"credentialId":"AQID","attestationObject":"BAUG","clientDataJSON":"Bwg=","prf":{"first":"CQo="}}`),
	}
	resp, err := ParseCreateResult(msg)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, resp.CredentialID)
	require.NotNil(resp.PRF)
	require.Equal([]byte{9, 10}, resp.PRF.First)
}

func TestBuildGetRequestAndParseGetResult(t *testing.T) {
	require := require.New(t)
	opts := CredentialRequestOptions{Challenge: []byte{9, 9, 9}, RPID: "example.com"}
	msg, err := BuildGetRequest("req-2", opts)
	require.NoError(err)
	require.Equal(rpcenvelope.TypeWebauthnGet, msg.Type)

	resultMsg := rpcenvelope.Message{
		Type:    rpcenvelope.TypeWebauthnGetResult,
		Payload: []byte(`{"credentialId":"AQID","authenticatorData":"BAUG","clientDataJSON":"Bwg=","signature":"CQoL"}`),
	}
	resp, err := ParseGetResult(resultMsg)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, resp.CredentialID)
	require.Equal([]byte{9, 10, 11}, resp.Signature)
}

func TestRPIDFromOriginPrefersOverride(t *testing.T) {
	require := require.New(t)
	rpID, err := RPIDFromOrigin("https://wallet.example.com", "override.example.com")
	require.NoError(err)
	require.Equal("override.example.com", rpID)
}

func TestRPIDFromOriginExtractsHostname(t *testing.T) {
	require := require.New(t)
	rpID, err := RPIDFromOrigin("https://wallet.example.com:8443/path", "")
	require.NoError(err)
	require.Equal("wallet.example.com", rpID)
}

func TestRPIDFromOriginRejectsEmptyHostname(t *testing.T) {
	_, err := RPIDFromOrigin("not-a-url", "")
	require.Error(t, err)
}
