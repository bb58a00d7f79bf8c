// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package walletd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/host"
	"github.com/nearfi/passkeywallet/pkg/nearclient"
	"github.com/nearfi/passkeywallet/pkg/passkeymanager"
	"github.com/nearfi/passkeywallet/pkg/relayclient"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/signerworker"
	"github.com/nearfi/passkeywallet/pkg/vrfworker"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/walletstore"
)

const shutdownTimeout = 5 * time.Second

var (
	serveListenAddr string
	serveWalletCfg  string
	serveRelayerID  string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the wallet core as an RPC-reachable process",
		Long: `serve mounts the wallet core (VRF worker, signer worker, device-linking
flows) behind a websocket listener, the Go analog of mounting the
hidden wallet iframe: every connection speaks the PM_* envelope
protocol pkg/rpcenvelope defines, one pkg/host.Host dispatcher per
connection.`,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveListenAddr, "listen", "127.0.0.1:7774", "address to listen on")
	cmd.Flags().StringVar(&serveWalletCfg, "wallet-config", "", "path to a PM_SET_CONFIG-shaped JSON file (defaults to a testnet config with no contractId, which fails validation)")
	cmd.Flags().StringVar(&serveRelayerID, "relayer-account-id", "", "overrides the relayer's own on-chain account id")
	return cmd
}

func loadWalletConfig(path string) (config.WalletConfig, error) {
	if path == "" {
		return config.DefaultWalletConfig(), nil
	}
	raw, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path, not user input
	if err != nil {
		return config.WalletConfig{}, fmt.Errorf("walletd: read wallet config: %w", err)
	}
	cfg := config.DefaultWalletConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return config.WalletConfig{}, fmt.Errorf("walletd: parse wallet config: %w", err)
	}
	return cfg, nil
}

func buildManager(cfg config.WalletConfig) (*passkeymanager.Manager, passkeymanager.Relayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("walletd: invalid wallet config: %w", err)
	}

	chain := nearclient.NewClient(cfg.NearRPCURL, cfg.ContractID)
	store := walletstore.New(core.GetUsersDir())
	manager := passkeymanager.New(vrfworker.New(), signerworker.New(core.GetKeysDir(), core.Log), chain, store, &cfg, core.Log)

	var relayer passkeymanager.Relayer = noRelayer{}
	if cfg.Relayer != nil && cfg.Relayer.URL != "" {
		relayerID := cfg.Relayer.AccountID
		if serveRelayerID != "" {
			relayerID = serveRelayerID
		}
		relayer = relayclient.New(cfg.Relayer.URL, relayerID)
	}
	return manager, relayer, nil
}

// noRelayer rejects registration/device-authorization attempts outright
// when no relay service is configured, rather than silently doing
// nothing — an account with no NEAR of its own truly cannot self-fund
// its first access key.
type noRelayer struct{}

func (noRelayer) AddKeyForNewAccount(context.Context, wallettypes.AccountID, string) error {
	return errors.New("walletd: no relayer configured; set relayer in the wallet config")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadWalletConfig(serveWalletCfg)
	if err != nil {
		return err
	}
	manager, relayer, err := buildManager(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(core.Conf.ServicePath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			core.Log.Warnf("walletd: websocket upgrade failed: %v", err)
			return
		}
		port := rpcenvelope.NewWSPort(conn)
		h := host.New(port, manager, relayer, core.Log)
		go func() {
			defer func() { _ = port.Close() }()
			if err := h.Serve(ctx); err != nil {
				core.Log.Debugf("walletd: connection closed: %v", err)
			}
		}()
	})

	srv := &http.Server{Addr: serveListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	core.Log.Infof("walletd: serving %s on %s", core.Conf.ServicePath, serveListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("walletd: serve: %w", err)
	}
	return nil
}
