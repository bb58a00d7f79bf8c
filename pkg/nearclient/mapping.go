// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nearclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/devicelink"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// compile-time check: Client satisfies the narrow interfaces devicelink
// consumes, without devicelink ever importing this package.
var (
	_ devicelink.MappingViewer = (*Client)(nil)
	_ devicelink.Broadcaster   = (*Client)(nil)
)

type deviceMappingArgs struct {
	PublicKey string `json:"publicKey"`
}

type deviceMappingView struct {
	AccountID    string `json:"accountId"`
	DeviceNumber uint32 `json:"deviceNumber"`
}

// ViewDeviceMapping calls the linking contract's get_device_mapping view
// method. A null result means the mapping has not appeared yet; the
// contract reports an unregistered key as "account not found", which is
// surfaced as devicelink.ErrAccountNotFound via classifyViewError.
func (c *Client) ViewDeviceMapping(ctx context.Context, device2PublicKey string) (devicelink.DeviceMapping, bool, error) {
	raw, err := c.ViewFunction(ctx, c.contractID, "get_device_mapping", deviceMappingArgs{PublicKey: device2PublicKey})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return devicelink.DeviceMapping{}, false, devicelink.ErrAccountNotFound
		}
		return devicelink.DeviceMapping{}, false, fmt.Errorf("nearclient: view device mapping: %w", err)
	}
	if raw == nil || string(raw) == "null" {
		return devicelink.DeviceMapping{}, false, nil
	}

	var view deviceMappingView
	if err := json.Unmarshal(raw, &view); err != nil {
		return devicelink.DeviceMapping{}, false, fmt.Errorf("nearclient: decode device mapping: %w", err)
	}
	accountID, err := wallettypes.ParseAccountID(view.AccountID)
	if err != nil {
		return devicelink.DeviceMapping{}, false, fmt.Errorf("nearclient: device mapping account id: %w", err)
	}
	return devicelink.DeviceMapping{AccountID: accountID, DeviceNumber: view.DeviceNumber}, true, nil
}

type deviceCountArgs struct {
	AccountID string `json:"accountId"`
}

// NextDeviceNumber calls the linking contract's get_device_count view
// method and returns count+1, the monotonic tie-break used to assign a
// newly linked device's number.
func (c *Client) NextDeviceNumber(ctx context.Context, accountID wallettypes.AccountID) (uint32, error) {
	raw, err := c.ViewFunction(ctx, c.contractID, "get_device_count", deviceCountArgs{AccountID: string(accountID)})
	if err != nil {
		return 0, fmt.Errorf("nearclient: view device count: %w", err)
	}
	var count uint32
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &count); err != nil {
			return 0, fmt.Errorf("nearclient: decode device count: %w", err)
		}
	}
	return count + 1, nil
}
