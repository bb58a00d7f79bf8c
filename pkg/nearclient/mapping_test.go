// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nearclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/devicelink"
)

func TestViewDeviceMappingReturnsNotFoundWhilePending(t *testing.T) {
	srv := rpcServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"query": func(params json.RawMessage) (any, *rpcError) {
			return callFunctionResult{Result: []byte("null")}, nil
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "linking.testnet")
	_, found, err := client.ViewDeviceMapping(context.Background(), "ed25519:aa")
	require.NoError(t, err)
	require.False(t, found)
}

func TestViewDeviceMappingReturnsMappingOnceStored(t *testing.T) {
	srv := rpcServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"query": func(params json.RawMessage) (any, *rpcError) {
			return callFunctionResult{Result: []byte(`{"accountId":"alice.testnet","deviceNumber":2}`)}, nil
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "linking.testnet")
	mapping, found, err := client.ViewDeviceMapping(context.Background(), "ed25519:aa")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, devicelink.DeviceMapping{AccountID: "alice.testnet", DeviceNumber: 2}, mapping)
}

func TestViewDeviceMappingStopsPollingOnAccountNotFound(t *testing.T) {
	srv := rpcServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"query": func(params json.RawMessage) (any, *rpcError) {
			return nil, &rpcError{Name: "HANDLER_ERROR", Message: "account not found: ghost.testnet"}
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "linking.testnet")
	_, found, err := client.ViewDeviceMapping(context.Background(), "ed25519:aa")
	require.False(t, found)
	require.ErrorIs(t, err, devicelink.ErrAccountNotFound)
}

func TestNextDeviceNumberReturnsCountPlusOne(t *testing.T) {
	srv := rpcServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"query": func(params json.RawMessage) (any, *rpcError) {
			return callFunctionResult{Result: []byte("3")}, nil
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "linking.testnet")
	next, err := client.NextDeviceNumber(context.Background(), "alice.testnet")
	require.NoError(t, err)
	require.Equal(t, uint32(4), next)
}
