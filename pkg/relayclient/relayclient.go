// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayclient is the concrete implementation of
// passkeymanager.Relayer: an HTTP client that asks an operator-run
// relay service to cover the gas for a brand-new account's initial
// add_key call, mirroring pkg/nearclient's single call() choke point
// generalized from a view/broadcast RPC to a relay service's own
// add-key endpoint.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// Client talks to an operator-run relay service over HTTP, asking it to
// submit an add_key transaction on behalf of a newly registered account
// that doesn't yet hold NEAR to pay its own gas.
type Client struct {
	baseURL    string
	relayerID  string
	httpClient *http.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a Client posting add-key requests to baseURL, identifying
// itself as relayerID (the relay's own on-chain account, carried for
// the service's own bookkeeping/allowance tracking).
func New(baseURL, relayerID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		relayerID:  relayerID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type addKeyRequest struct {
	RelayerAccountID string `json:"relayerAccountId"`
	AccountID        string `json:"accountId"`
	PublicKey        string `json:"publicKey"`
}

type addKeyResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// AddKeyForNewAccount asks the relay service to add publicKey as a full
// access key on accountID, the gas-sponsorship step STEP_3_ACCESS_KEY_ADDITION
// takes for a brand-new account with no funds of its own.
func (c *Client) AddKeyForNewAccount(ctx context.Context, accountID wallettypes.AccountID, publicKey string) error {
	reqBody, err := json.Marshal(addKeyRequest{
		RelayerAccountID: c.relayerID,
		AccountID:        string(accountID),
		PublicKey:        publicKey,
	})
	if err != nil {
		return fmt.Errorf("relayclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("relayclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("relayclient: add key request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("relayclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relayclient: add key rejected: status %d: %s", resp.StatusCode, string(body))
	}

	var decoded addKeyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("relayclient: decode response: %w", err)
	}
	if !decoded.OK {
		return fmt.Errorf("relayclient: relay refused add key: %s", decoded.Message)
	}
	return nil
}
