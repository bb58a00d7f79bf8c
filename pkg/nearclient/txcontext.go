// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nearclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// FetchTransactionContext resolves the next nonce for (accountID,
// publicKey) and the current final block hash, the two on-chain facts
// STEP_1_PREPARATION needs before intent-digest computation. The
// returned NextNonce is the access key's on-chain nonce + 1; the signer
// worker's NonceManager must still be synced from it before reserving,
// since reservations are tracked locally between fetches.
func (c *Client) FetchTransactionContext(ctx context.Context, accountID wallettypes.AccountID, publicKey string) (wallettypes.TransactionContext, error) {
	var keyView accessKeyView
	err := c.call(ctx, "query", accessKeyViewParams{
		RequestType: "view_access_key",
		Finality:    "final",
		AccountID:   string(accountID),
		PublicKey:   publicKey,
	}, &keyView)
	if err != nil {
		return wallettypes.TransactionContext{}, classifyViewError(err)
	}

	var block blockHeader
	if err := c.call(ctx, "block", blockParams{Finality: "final"}, &block); err != nil {
		return wallettypes.TransactionContext{}, fmt.Errorf("nearclient: fetch final block: %w", err)
	}
	blockHash, err := base64.StdEncoding.DecodeString(block.Header.Hash)
	if err != nil {
		return wallettypes.TransactionContext{}, fmt.Errorf("nearclient: decode block hash: %w", err)
	}

	return wallettypes.TransactionContext{
		TxBlockHeight: block.Header.Height,
		TxBlockHash:   blockHash,
		NextNonce:     keyView.Nonce + 1,
	}, nil
}
