// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package walletd is the CLI entrypoint: a cobra root command wiring
// pkg/application's Core (logger, process config, base data dir) into
// the serve/devicelink/config subcommands, the same
// PersistentPreRunE-builds-the-app-context shape as the teacher's
// cmd/root.go, stripped of everything subnet/node/update-check
// specific.
package walletd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/application"
	"github.com/nearfi/passkeywallet/pkg/config"
)

var (
	core *application.Core

	cfgFile  string
	logLevel string
	dataDir  string
)

// Version is set at build time via -ldflags, mirroring the teacher's
// cmd.Version.
var Version = ""

// NewRootCmd builds the walletd root command and its subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "walletd",
		Short: "passkey-authenticated NEAR wallet core daemon and CLI",
		Long: `walletd runs the passkey wallet core as an RPC-reachable process and
provides terminal tooling for device linking and configuration.

Subcommands:
  serve          run the wallet core, accepting PM_* requests over a
                 websocket, the Go analog of mounting the wallet iframe
  device link    drive the new-device side of device linking from a
                 terminal, rendering the pairing QR code as ANSI art
  config         validate a wallet configuration file`,
		PersistentPreRunE: createCore,
		Version:           Version,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (none is read unless this is set)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level for the daemon (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "base directory for keys/sessions/device-link/user state (default is $HOME/.walletd)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDeviceCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func createCore(_ *cobra.Command, _ []string) error {
	base, err := resolveDataDir()
	if err != nil {
		return fmt.Errorf("walletd: resolve data dir: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("walletd: read config file: %w", err)
		}
	}
	viper.SetDefault("log-level", logLevel)
	viper.SetDefault("data-dir", base)

	cf := config.New()
	cf.ConfigFile = cfgFile
	if err := cf.Load(); err != nil {
		return fmt.Errorf("walletd: load config: %w", err)
	}
	if cf.DataDir == "" {
		cf.DataDir = base
	}

	log := applog.New(cf.LogLevel)
	core = application.New()
	core.Setup(cf.DataDir, log, cf)
	return core.EnsureDirs()
}
