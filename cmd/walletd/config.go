// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package walletd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nearfi/passkeywallet/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "inspect and validate wallet configuration files",
	}
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowDefaultCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "validate a PM_SET_CONFIG-shaped JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadWalletConfig(args[0])
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("walletd: %s is invalid: %w", args[0], err)
			}
			fmt.Fprintf(os.Stdout, "%s is a valid wallet configuration\n", args[0])
			return nil
		},
	}
}

func newConfigShowDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-default",
		Short: "print the built-in default wallet configuration as JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.DefaultWalletConfig()
			raw, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("walletd: marshal default config: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(raw))
			return nil
		},
	}
}
