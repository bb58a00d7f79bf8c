// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// Device1 drives the existing-device side of the linking protocol:
// scan a Device2 QR code, assign the new device a number, and submit the
// authorization batch on-chain.
type Device1 struct {
	Signer   *signerworker.Worker
	Mapping  MappingViewer
	Broadcast Broadcaster
	Log      applog.Logger
}

// NewDevice1 constructs a Device1.
func NewDevice1(signer *signerworker.Worker, mapping MappingViewer, broadcast Broadcaster, log applog.Logger) *Device1 {
	return &Device1{Signer: signer, Mapping: mapping, Broadcast: broadcast, Log: log}
}

type storeMappingArgs struct {
	Device2PublicKey string `json:"device2PublicKey"`
	AccountID        string `json:"accountId"`
	DeviceNumber     uint32 `json:"deviceNumber"`
}

// AuthorizeDevice2 scans qrEncoded, rejecting it if malformed or older
// than maxAge, assigns the new device the on-chain counter + 1, and
// submits [AddKey(device2PublicKey), store_device_linking_mapping(...)]
// as one transaction signed by accountID's device ownKeyDeviceNumber. It
// also signs (but does not broadcast) a DeleteKey(device2PublicKey)
// transaction at the following nonce, returned so the caller can retain
// it for rollback if Device2 never completes registration.
func (d *Device1) AuthorizeDevice2(ctx context.Context, wrapKeySeed wallettypes.WrapKeySeed, accountID wallettypes.AccountID, ownDeviceNumber uint32, qrEncoded string, now time.Time, maxAge time.Duration, txCtx wallettypes.TransactionContext) (newDeviceNumber uint32, rollback wallettypes.SignedTransaction, err error) {
	payload, err := DecodeQRPayload(qrEncoded, now, maxAge)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, err
	}

	newDeviceNumber, err = d.Mapping.NextDeviceNumber(ctx, accountID)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, fmt.Errorf("devicelink: next device number: %w", err)
	}

	argsJSON, err := json.Marshal(storeMappingArgs{
		Device2PublicKey: payload.Device2PublicKey,
		AccountID:        string(accountID),
		DeviceNumber:     newDeviceNumber,
	})
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, fmt.Errorf("devicelink: marshal mapping args: %w", err)
	}

	authorizeInput := wallettypes.TransactionInput{
		ReceiverID: accountID,
		Actions: []wallettypes.Action{
			{Kind: wallettypes.ActionAddKey, PublicKey: payload.Device2PublicKey},
			{Kind: wallettypes.ActionFunctionCall, MethodName: "store_device_linking_mapping", Args: argsJSON, GasLimit: 30_000_000_000_000, DepositYocto: "0"},
		},
	}
	rollbackInput := wallettypes.TransactionInput{
		ReceiverID: accountID,
		Actions: []wallettypes.Action{
			{Kind: wallettypes.ActionDeleteKey, PublicKey: payload.Device2PublicKey},
		},
	}

	signed, err := d.Signer.SignTransactionsWithActions(wrapKeySeed, accountID, ownDeviceNumber, []wallettypes.TransactionInput{authorizeInput, rollbackInput}, txCtx)
	if err != nil {
		return 0, wallettypes.SignedTransaction{}, fmt.Errorf("devicelink: assemble authorization batch: %w", err)
	}

	if err := d.Broadcast.Broadcast(ctx, signed[0]); err != nil {
		return 0, wallettypes.SignedTransaction{}, fmt.Errorf("devicelink: broadcast authorization: %w", err)
	}

	return newDeviceNumber, signed[1], nil
}

// Rollback broadcasts a previously pre-signed DeleteKey transaction,
// used when Device2 exhausts its registration retries and the new
// access key must be revoked.
func (d *Device1) Rollback(ctx context.Context, rollback wallettypes.SignedTransaction) error {
	return d.Broadcast.Broadcast(ctx, rollback)
}
