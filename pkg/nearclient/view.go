// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nearclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// queryParams is the "query" RPC's call_function request shape.
type queryParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

// callFunctionResult is the decoded "result" field of a call_function
// query response: a byte array holding the contract's JSON return value.
type callFunctionResult struct {
	Result []byte `json:"result"`
	Logs   []string `json:"logs,omitempty"`
}

// ViewFunction calls a read-only contract method and returns its raw
// JSON return value.
func (c *Client) ViewFunction(ctx context.Context, accountID, methodName string, args any) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("nearclient: marshal view args: %w", err)
	}

	var result callFunctionResult
	err = c.call(ctx, "query", queryParams{
		RequestType: "call_function",
		Finality:    "final",
		AccountID:   accountID,
		MethodName:  methodName,
		ArgsBase64:  base64.StdEncoding.EncodeToString(argsJSON),
	}, &result)
	if err != nil {
		return nil, classifyViewError(err)
	}
	return json.RawMessage(result.Result), nil
}

// classifyViewError distinguishes a contract's "account not found"-style
// rejection (reported by name/message, not a distinct RPC error code)
// from a generic RPC failure.
func classifyViewError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "account not found") || strings.Contains(msg, "unknown account") {
		return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	return err
}

// accessKeyViewParams is the "query" RPC's view_access_key request shape.
type accessKeyViewParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	PublicKey   string `json:"public_key"`
}

// accessKeyView is the decoded view_access_key response.
type accessKeyView struct {
	Nonce       uint64 `json:"nonce"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"` // base64
}

// blockParams is the "block" RPC's finality-selector request shape.
type blockParams struct {
	Finality string `json:"finality"`
}

// blockHeader is the subset of the "block" RPC response this client
// needs.
type blockHeader struct {
	Header struct {
		Height uint64 `json:"height"`
		Hash   string `json:"hash"` // base64
	} `json:"header"`
}
