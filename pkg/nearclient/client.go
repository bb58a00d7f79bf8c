// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nearclient is the external-collaborator boundary for the NEAR
// JSON-RPC endpoint: contract view calls, transaction broadcast, and
// access-key/block lookups used to populate a TransactionContext. The
// core never talks to this package directly — it depends only on the
// narrow devicelink.MappingViewer/Broadcaster interfaces this package
// satisfies, mirroring how the teacher's KChainRPCClient keeps its
// JSON-RPC 2.0 request/response plumbing behind a single call() choke
// point.
package nearclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a minimal NEAR JSON-RPC 2.0 HTTP client bound to one
// endpoint and one linking contract.
type Client struct {
	endpoint   string
	contractID string
	httpClient *http.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client, e.g. for tests
// pointed at an httptest.Server with a short timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a Client that issues JSON-RPC requests against
// endpoint (typically config.WalletConfig.NearRPCURL) scoped to the
// linking contract contractID (config.WalletConfig.ContractID).
func NewClient(endpoint, contractID string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		contractID: contractID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC error, carrying NEAR's cause-name/info shape in
// Data when present.
type rpcError struct {
	Name    string          `json:"name"`
	Cause   json.RawMessage `json:"cause,omitempty"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    any             `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("nearclient: rpc error %s: %s", e.Name, e.Message)
}

// call issues method with params against the endpoint and decodes the
// result into out (ignored if nil).
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "walletd", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("nearclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("nearclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("nearclient: rpc call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("nearclient: read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("nearclient: unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("nearclient: unmarshal result: %w", err)
		}
	}
	return nil
}
