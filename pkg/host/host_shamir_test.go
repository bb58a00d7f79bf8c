// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
)

// shamirTestPrime is a real Mersenne prime (2^127-1), large enough to
// hold a 32-byte VRF seed reduced mod p while keeping the double-lock
// exponentiation in this test fast.
const shamirTestPrime = "170141183460469231731687303715884105727"

// newShamirRelayServer stands in for the out-of-scope remote Shamir
// 3-pass relay (§1's explicit external collaborator): it applies and
// removes a fixed server exponent, the minimum behavior
// handleShamir3PassEncrypt/Decrypt need to exercise end to end.
func newShamirRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	p, ok := new(big.Int).SetString(shamirTestPrime, 10)
	require.True(t, ok)
	s := big.NewInt(65537)
	pMinus1 := new(big.Int).Sub(p, big.NewInt(1))
	sInv := new(big.Int).ModInverse(s, pMinus1)

	mux := http.NewServeMux()
	mux.HandleFunc("/shamir/apply", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Value string `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Value)
		require.NoError(t, err)
		v := new(big.Int).SetBytes(raw)
		locked := new(big.Int).Exp(v, s, p)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          true,
			"value":       base64.StdEncoding.EncodeToString(locked.Bytes()),
			"serverKeyId": "test-server-key-1",
		})
	})
	mux.HandleFunc("/shamir/remove", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Value string `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Value)
		require.NoError(t, err)
		v := new(big.Int).SetBytes(raw)
		opened := new(big.Int).Exp(v, sInv, p)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":    true,
			"value": base64.StdEncoding.EncodeToString(opened.Bytes()),
		})
	})
	return httptest.NewServer(mux)
}

func TestHandleShamir3PassEncryptAndDecryptRoundTrip(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{})
	relay := newShamirRelayServer(t)
	defer relay.Close()

	h.Manager.Conf.VRFWorkerConfigs = &config.VRFWorkerConfigs{
		Shamir3Pass: &config.Shamir3PassConfig{
			P:                     shamirTestPrime,
			RelayServerURL:        relay.URL,
			ApplyServerLockRoute:  "/shamir/apply",
			RemoveServerLockRoute: "/shamir/remove",
		},
	}
	_, err := h.Manager.VRF.BootstrapGenerate("alice.testnet", "example.com", 1, make([]byte, 32))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	payload, err := json.Marshal(shamir3PassRequest{AccountID: "alice.testnet"})
	require.NoError(t, err)
	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpShamir3PassEncrypt.WireType()), RequestID: "req-shamir-1", Payload: payload}))

	msg := recvUntil(t, parent, rpcenvelope.TypeResult)
	result, err := msg.DecodeResult()
	require.NoError(t, err)
	var encrypted shamir3PassEncryptResponse
	require.NoError(t, json.Unmarshal(result.Result, &encrypted))
	require.NotEmpty(t, encrypted.Blob)
	require.Equal(t, "test-server-key-1", encrypted.ServerKeyID)

	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpShamir3PassDecrypt.WireType()), RequestID: "req-shamir-2", Payload: payload}))
	msg = recvUntil(t, parent, rpcenvelope.TypeResult)
	_, err = msg.DecodeResult()
	require.NoError(t, err)
}

func TestHandleShamir3PassEncryptFailsWithoutConfig(t *testing.T) {
	h, parent := newTestHost(t, &fakeChain{})
	_, err := h.Manager.VRF.BootstrapGenerate("alice.testnet", "example.com", 1, make([]byte, 32))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Serve(ctx) }()

	payload, err := json.Marshal(shamir3PassRequest{AccountID: "alice.testnet"})
	require.NoError(t, err)
	require.NoError(t, parent.Send(rpcenvelope.Message{Type: rpcenvelope.Type(rpcenvelope.OpShamir3PassEncrypt.WireType()), RequestID: "req-shamir-3", Payload: payload}))

	msg := recvUntil(t, parent, rpcenvelope.TypeError)
	errPayload, err := msg.DecodeError()
	require.NoError(t, err)
	require.NotEmpty(t, errPayload.Code)
}
