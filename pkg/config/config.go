// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the process-level configuration (data dir, log
// level, wallet origin allowlist) layered through viper/flags/env, and the
// PM_SET_CONFIG wallet payload (§6) that the host pushes to the wallet core
// after the CONNECT/READY handshake.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the process-level configuration, loaded from file/env/flags by
// cmd/walletd via viper, the same layering as the teacher's
// pkg/config.Config + cmd/root.go persistent flags.
type Config struct {
	ConfigFile string `json:"-"`

	DataDir       string `json:"dataDir"`
	LogLevel      string `json:"logLevel"`
	WalletOrigin  string `json:"walletOrigin"`
	ServicePath   string `json:"servicePath"`

	ConfigData map[string]any `json:"-"`
}

// New returns a Config with defaults suitable for local development.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		ServicePath: "/wallet-service",
		ConfigData:  make(map[string]any),
	}
}

// Load populates c from viper (which must already have been configured by
// the caller to read the desired config file/env/flags).
func (c *Config) Load() error {
	if dataDir := viper.GetString("data-dir"); dataDir != "" {
		c.DataDir = dataDir
	}
	if logLevel := viper.GetString("log-level"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if origin := viper.GetString("wallet-origin"); origin != "" {
		c.WalletOrigin = origin
	}
	if servicePath := viper.GetString("service-path"); servicePath != "" {
		c.ServicePath = servicePath
	}
	return nil
}

// ConfigFileExists reports whether the configured file path exists.
func (c *Config) ConfigFileExists() bool {
	return c.ConfigFile != "" && fileExists(c.ConfigFile)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NearNetwork discriminates the target NEAR-style network.
type NearNetwork string

const (
	NetworkTestnet NearNetwork = "testnet"
	NetworkMainnet NearNetwork = "mainnet"
)

// Theme is the UI color scheme hint forwarded to the wallet iframe's UI
// widgets (an external collaborator; the core only carries the value).
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// RelayerConfig names an optional relayer account that can cover gas for
// the host application's users.
type RelayerConfig struct {
	AccountID string `json:"accountId"`
	URL       string `json:"url"`
}

// Shamir3PassConfig configures the VRF worker's remote-relay collaboration
// for re-encrypting the VRF secret under a server key (§4.6).
type Shamir3PassConfig struct {
	P                      string `json:"p"`
	RelayServerURL         string `json:"relayServerUrl"`
	ApplyServerLockRoute   string `json:"applyServerLockRoute"`
	RemoveServerLockRoute  string `json:"removeServerLockRoute"`
}

// VRFWorkerConfigs groups VRF-worker-specific configuration.
type VRFWorkerConfigs struct {
	Shamir3Pass *Shamir3PassConfig `json:"shamir3pass,omitempty"`
}

// WalletConfig is the PM_SET_CONFIG payload (§6): everything the host can
// push to reconfigure the wallet core after the handshake.
type WalletConfig struct {
	Theme             Theme              `json:"theme"`
	NearRPCURL        string             `json:"nearRpcUrl"`
	NearNetwork       NearNetwork        `json:"nearNetwork"`
	ContractID        string             `json:"contractId"`
	Relayer           *RelayerConfig     `json:"relayer,omitempty"`
	VRFWorkerConfigs  *VRFWorkerConfigs  `json:"vrfWorkerConfigs,omitempty"`
	RPIDOverride      string             `json:"rpIdOverride,omitempty"`
	AuthenticatorOptions map[string]any  `json:"authenticatorOptions,omitempty"`
	NearExplorerURL   string             `json:"nearExplorerUrl,omitempty"`
	AssetsBaseURL     string             `json:"assetsBaseUrl"`
	UIRegistry        map[string]any     `json:"uiRegistry,omitempty"`
}

// DefaultWalletConfig returns a testnet configuration with theme, network
// and RPC URL set. ContractID is left empty, so Validate rejects the
// result until a contractId is supplied.
func DefaultWalletConfig() WalletConfig {
	return WalletConfig{
		Theme:       ThemeDark,
		NearNetwork: NetworkTestnet,
		NearRPCURL:  "https://rpc.testnet.near.org",
	}
}

// Validate checks the required fields of a WalletConfig.
func (w WalletConfig) Validate() error {
	if w.NearRPCURL == "" {
		return fmt.Errorf("config: nearRpcUrl is required")
	}
	if w.ContractID == "" {
		return fmt.Errorf("config: contractId is required")
	}
	switch w.NearNetwork {
	case NetworkTestnet, NetworkMainnet:
	default:
		return fmt.Errorf("config: unknown nearNetwork %q", w.NearNetwork)
	}
	return nil
}

// MarshalJSON round-trips through encoding/json so the WalletConfig can be
// carried verbatim inside a PM_SET_CONFIG envelope payload.
func (w WalletConfig) MarshalJSON() ([]byte, error) {
	type alias WalletConfig
	return json.Marshal(alias(w))
}
