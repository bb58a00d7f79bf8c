// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/config"
)

func newTestCore(t *testing.T) *Core {
	tempDir := t.TempDir()
	c := New()
	c.Setup(tempDir, applog.NewNop(), config.New())
	return c
}

func TestGetBaseDir(t *testing.T) {
	require := require.New(t)
	tempDir := t.TempDir()
	c := New()
	c.Setup(tempDir, applog.NewNop(), config.New())
	require.Equal(tempDir, c.GetBaseDir())
}

func TestSubdirLayout(t *testing.T) {
	require := require.New(t)
	c := newTestCore(t)

	require.Equal(filepath.Join(c.GetBaseDir(), "keys"), c.GetKeysDir())
	require.Equal(filepath.Join(c.GetBaseDir(), "sessions"), c.GetSessionsDir())
	require.Equal(filepath.Join(c.GetBaseDir(), "devicelink"), c.GetDeviceLinkDir())
	require.Equal(filepath.Join(c.GetBaseDir(), "users"), c.GetUsersDir())
}

func TestEnsureDirs(t *testing.T) {
	require := require.New(t)
	c := newTestCore(t)

	require.NoError(c.EnsureDirs())

	for _, dir := range []string{c.GetKeysDir(), c.GetSessionsDir(), c.GetDeviceLinkDir(), c.GetUsersDir()} {
		info, err := os.Stat(dir)
		require.NoError(err)
		require.True(info.IsDir())
	}

	// Idempotent: calling again must not error.
	require.NoError(c.EnsureDirs())
}
