// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nearclient

import "errors"

// ErrAccountNotFound is returned by ViewDeviceMapping and
// FetchTransactionContext when the RPC reports no such account,
// unwrapped by devicelink as the terminal "stop polling" signal.
var ErrAccountNotFound = errors.New("nearclient: account not found")
