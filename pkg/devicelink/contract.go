// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"context"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// DeviceMapping is the on-chain (publicKey -> accountId, deviceNumber)
// record Device2 polls for after Device1 submits its AddKey/store batch.
type DeviceMapping struct {
	AccountID    wallettypes.AccountID
	DeviceNumber uint32
}

// MappingViewer is the read-only contract view Device2 polls. Implemented
// by the nearclient package; devicelink only depends on this narrow
// interface so it never imports the RPC client directly.
type MappingViewer interface {
	// ViewDeviceMapping looks up the mapping for device2PublicKey. It
	// returns (mapping, true, nil) once found, (zero, false, nil) while
	// still pending, and a non-nil error — unwrapped as ErrAccountNotFound
	// when the contract reports no such account — on a terminal failure.
	ViewDeviceMapping(ctx context.Context, device2PublicKey string) (DeviceMapping, bool, error)

	// NextDeviceNumber returns the on-chain device counter + 1, the
	// monotonic tie-break used to assign a newly linked device's number.
	NextDeviceNumber(ctx context.Context, accountID wallettypes.AccountID) (uint32, error)
}

// Broadcaster submits signed, Borsh-serialized transactions to the chain.
type Broadcaster interface {
	Broadcast(ctx context.Context, signed wallettypes.SignedTransaction) error
}
