// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"errors"

	"github.com/nearfi/passkeywallet/pkg/walleterrors"
)

// Sentinel errors matching walleterrors.KindDeviceLinking's wire codes,
// following the teacher's pkg/key/backend_walletconnect.go ErrWC* block.
var (
	ErrInvalidQRData     = walleterrors.New(walleterrors.KindDeviceLinking, walleterrors.CodeInvalidQRData, "invalid device-linking qr data")
	ErrQRExpired         = walleterrors.New(walleterrors.KindDeviceLinking, walleterrors.CodeDLSessionExpired, "device-linking qr code has expired")
	ErrAuthorizationTimeout = walleterrors.New(walleterrors.KindDeviceLinking, walleterrors.CodeAuthorizationTimeout, "device-linking authorization timed out")
	ErrRegistrationFailed  = walleterrors.New(walleterrors.KindDeviceLinking, walleterrors.CodeRegistrationFailed, "device-linking registration failed")
	ErrAccountNotFound     = errors.New("devicelink: account not found, stopping poll")
)
