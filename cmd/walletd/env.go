// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package walletd

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

const baseDirName = ".walletd"

// resolveDataDir returns the --data-dir flag if set, else
// $HOME/.walletd, creating it if it doesn't already exist.
func resolveDataDir() (string, error) {
	dir := dataDir
	if dir == "" {
		usr, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("unable to get system user: %w", err)
		}
		dir = filepath.Join(usr.HomeDir, baseDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return dir, nil
}
