// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package webauthnbridge

import (
	"encoding/json"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
)

// BuildCreateRequest wraps opts into a WALLET_WEBAUTHN_CREATE message for
// the parent page to relay to navigator.credentials.create().
func BuildCreateRequest(requestID string, opts CredentialCreationOptions) (rpcenvelope.Message, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return rpcenvelope.Message{}, fmt.Errorf("webauthnbridge: marshal creation options: %w", err)
	}
	return rpcenvelope.Message{Type: rpcenvelope.TypeWebauthnCreate, RequestID: requestID, Payload: payload}, nil
}

// BuildGetRequest wraps opts into a WALLET_WEBAUTHN_GET message for the
// parent page to relay to navigator.credentials.get().
func BuildGetRequest(requestID string, opts CredentialRequestOptions) (rpcenvelope.Message, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return rpcenvelope.Message{}, fmt.Errorf("webauthnbridge: marshal request options: %w", err)
	}
	return rpcenvelope.Message{Type: rpcenvelope.TypeWebauthnGet, RequestID: requestID, Payload: payload}, nil
}

// ParseCreateResult decodes a WALLET_WEBAUTHN_CREATE_RESULT message's
// payload, rejecting messages of the wrong type.
func ParseCreateResult(msg rpcenvelope.Message) (AttestationResponse, error) {
	if msg.Type != rpcenvelope.TypeWebauthnCreateResult {
		return AttestationResponse{}, fmt.Errorf("webauthnbridge: expected %s, got %s", rpcenvelope.TypeWebauthnCreateResult, msg.Type)
	}
	var resp AttestationResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return AttestationResponse{}, fmt.Errorf("webauthnbridge: parse attestation response: %w", err)
	}
	return resp, nil
}

// ParseGetResult decodes a WALLET_WEBAUTHN_GET_RESULT message's payload,
// rejecting messages of the wrong type.
func ParseGetResult(msg rpcenvelope.Message) (AssertionResponse, error) {
	if msg.Type != rpcenvelope.TypeWebauthnGetResult {
		return AssertionResponse{}, fmt.Errorf("webauthnbridge: expected %s, got %s", rpcenvelope.TypeWebauthnGetResult, msg.Type)
	}
	var resp AssertionResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return AssertionResponse{}, fmt.Errorf("webauthnbridge: parse assertion response: %w", err)
	}
	return resp, nil
}
