// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package passkeymanager

import (
	"context"
	"fmt"

	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/vrfworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// BackupVRFKeyToServer runs SHAMIR_3PASS_ENCRYPT (§4.6): it re-encrypts
// the account's currently unlocked VRF secret under the configured
// remote relay's server key via the three-pass commutative-cipher
// protocol, then persists the resulting blob on the account's client
// record so a future device can recover it through
// RestoreVRFKeyFromServer without this device's passkey.
func (m *Manager) BackupVRFKeyToServer(ctx context.Context, accountID wallettypes.AccountID) (*wallettypes.ServerEncryptedVRFKeypair, error) {
	cfg, err := m.shamir3PassConfig()
	if err != nil {
		return nil, err
	}
	relay := vrfworker.NewHTTPShamirRelay(*cfg)

	blob, err := m.VRF.Shamir3PassEncrypt(ctx, relay, *cfg, accountID)
	if err != nil {
		return nil, fmt.Errorf("passkeymanager: backup vrf key: %w", err)
	}

	userData, err := m.Store.LoadUser(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("passkeymanager: load user for backup: %w", err)
	}
	userData.ServerEncryptedVRFKeypair = blob
	if err := m.Store.SaveUser(ctx, userData); err != nil {
		return nil, fmt.Errorf("passkeymanager: save server-encrypted vrf keypair: %w", err)
	}
	return blob, nil
}

// RestoreVRFKeyFromServer runs SHAMIR_3PASS_DECRYPT (§4.6): it asks the
// relay to remove its server lock from the account's persisted blob and
// loads the recovered VRF keypair into the worker, the recovery path for
// a device that lost its locally derivable VRF secret but still has
// server-side backup enabled.
func (m *Manager) RestoreVRFKeyFromServer(ctx context.Context, accountID wallettypes.AccountID) error {
	cfg, err := m.shamir3PassConfig()
	if err != nil {
		return err
	}
	relay := vrfworker.NewHTTPShamirRelay(*cfg)

	userData, err := m.Store.LoadUser(ctx, accountID)
	if err != nil {
		return fmt.Errorf("passkeymanager: load user for restore: %w", err)
	}
	if userData.ServerEncryptedVRFKeypair == nil {
		return fmt.Errorf("passkeymanager: no server-encrypted vrf keypair on file for %s", accountID)
	}

	if err := m.VRF.Shamir3PassDecrypt(ctx, relay, userData.ServerEncryptedVRFKeypair); err != nil {
		return fmt.Errorf("passkeymanager: restore vrf key: %w", err)
	}
	return nil
}

func (m *Manager) shamir3PassConfig() (*config.Shamir3PassConfig, error) {
	if m.Conf == nil || m.Conf.VRFWorkerConfigs == nil || m.Conf.VRFWorkerConfigs.Shamir3Pass == nil {
		return nil, fmt.Errorf("passkeymanager: shamir 3-pass relay is not configured")
	}
	return m.Conf.VRFWorkerConfigs.Shamir3Pass, nil
}
