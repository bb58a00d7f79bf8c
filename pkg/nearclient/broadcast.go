// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nearclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

type broadcastTxParams [1]string

type broadcastTxResult struct {
	Status      json.RawMessage `json:"status"`
	Transaction struct {
		Hash string `json:"hash"`
	} `json:"transaction"`
}

// Broadcast submits a signed, Borsh-serialized transaction via
// broadcast_tx_commit, which blocks until the transaction reaches final
// execution outcome.
func (c *Client) Broadcast(ctx context.Context, signed wallettypes.SignedTransaction) error {
	encoded := base64.StdEncoding.EncodeToString(signed.BorshBytes)
	var result broadcastTxResult
	if err := c.call(ctx, "broadcast_tx_commit", broadcastTxParams{encoded}, &result); err != nil {
		return fmt.Errorf("nearclient: broadcast tx: %w", err)
	}
	return nil
}
