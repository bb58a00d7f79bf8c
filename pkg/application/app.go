// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package application wires together the process-level collaborators
// (logger, config, base directory) that every wallet subsystem is handed
// at construction, the same wiring shape as the teacher's pkg/application
// but stripped of everything subnet/genesis/VM specific.
package application

import (
	"os"
	"path/filepath"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/config"
)

const (
	WriteReadReadPerms = 0o644

	keysDirName     = "keys"
	sessionsDirName = "sessions"
	qrDirName       = "devicelink"
	usersDirName    = "users"
)

// Core is the process-wide collaborator bundle: a logger, the layered
// config, and the base data directory that the key/session/QR stores live
// under. It is handed to every subsystem (vrfworker, signerworker,
// devicelink, passkeymanager) at construction, mirroring how the teacher's
// Lux struct is threaded into every cmd/ package.
type Core struct {
	Log     applog.Logger
	Conf    *config.Config
	baseDir string
}

// New returns a zero-value Core; call Setup before use.
func New() *Core {
	return &Core{}
}

// Setup wires the collaborators into the Core.
func (c *Core) Setup(baseDir string, log applog.Logger, conf *config.Config) {
	c.baseDir = baseDir
	c.Log = log
	c.Conf = conf
}

// GetBaseDir returns the configured base data directory.
func (c *Core) GetBaseDir() string {
	return c.baseDir
}

// GetKeysDir returns the directory encrypted key material is stored under.
func (c *Core) GetKeysDir() string {
	return filepath.Join(c.baseDir, keysDirName)
}

// GetSessionsDir returns the directory session bookkeeping is stored under.
func (c *Core) GetSessionsDir() string {
	return filepath.Join(c.baseDir, sessionsDirName)
}

// GetDeviceLinkDir returns the directory device-linking QR/session state is
// stored under.
func (c *Core) GetDeviceLinkDir() string {
	return filepath.Join(c.baseDir, qrDirName)
}

// GetUsersDir returns the directory per-account ClientUserData records are
// stored under.
func (c *Core) GetUsersDir() string {
	return filepath.Join(c.baseDir, usersDirName)
}

// EnsureDirs creates the base directory tree if it does not already exist.
func (c *Core) EnsureDirs() error {
	for _, dir := range []string{c.GetKeysDir(), c.GetSessionsDir(), c.GetDeviceLinkDir(), c.GetUsersDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
