// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package walletd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nearfi/passkeywallet/pkg/devicelink"
	"github.com/nearfi/passkeywallet/pkg/passkeymanager"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "device-linking terminal tooling",
	}
	cmd.AddCommand(newDeviceLinkCmd())
	cmd.AddCommand(newDeviceAuthorizeCmd())
	cmd.AddCommand(newDeviceRollbackCmd())
	return cmd
}

var (
	deviceLinkWalletCfg   string
	deviceLinkAccountID   string
	deviceLinkPRFFirstHex string
	deviceLinkSaltHex     string
	deviceLinkTimeout     time.Duration
)

// newDeviceLinkCmd drives the new-device (Device2) side of linking from
// a terminal: render the pairing QR as ANSI art, poll until an existing
// device authorizes it, then swap in the permanent key. The PRF outputs
// a real WebAuthn ceremony would produce are accepted as hex flags here
// since this CLI exercises the core end to end without a browser.
func newDeviceLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "link this terminal as a new device, rendering the pairing QR as ANSI art",
		RunE:  runDeviceLink,
	}
	cmd.Flags().StringVar(&deviceLinkWalletCfg, "wallet-config", "", "path to a PM_SET_CONFIG-shaped JSON file")
	cmd.Flags().StringVar(&deviceLinkAccountID, "account-id", "", "account id to link against, if already known")
	cmd.Flags().StringVar(&deviceLinkPRFFirstHex, "prf-first", "", "hex-encoded PRF.first evaluation output")
	cmd.Flags().StringVar(&deviceLinkSaltHex, "wrap-key-salt", "", "hex-encoded wrap-key derivation salt")
	cmd.Flags().DurationVar(&deviceLinkTimeout, "timeout", 2*time.Minute, "how long to poll for an authorizing device")
	_ = cmd.MarkFlagRequired("prf-first")
	_ = cmd.MarkFlagRequired("wrap-key-salt")
	return cmd
}

func reportToStderr(phase secureconfirm.Phase, status string, message string) {
	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", status, phase, message)
}

func runDeviceLink(cmd *cobra.Command, _ []string) error {
	cfg, err := loadWalletConfig(deviceLinkWalletCfg)
	if err != nil {
		return err
	}
	manager, _, err := buildManager(cfg)
	if err != nil {
		return err
	}

	prfFirst, err := hex.DecodeString(deviceLinkPRFFirstHex)
	if err != nil {
		return fmt.Errorf("walletd: decode --prf-first: %w", err)
	}
	wrapKeySalt, err := hex.DecodeString(deviceLinkSaltHex)
	if err != nil {
		return fmt.Errorf("walletd: decode --wrap-key-salt: %w", err)
	}

	var accountID *wallettypes.AccountID
	if deviceLinkAccountID != "" {
		parsed, err := wallettypes.ParseAccountID(deviceLinkAccountID)
		if err != nil {
			return fmt.Errorf("walletd: --account-id: %w", err)
		}
		accountID = &parsed
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	session, qr, err := manager.StartDeviceLink(passkeymanager.StartDeviceLinkParams{AccountID: accountID, Now: time.Now()}, reportToStderr)
	if err != nil {
		return fmt.Errorf("walletd: start device link: %w", err)
	}
	art, err := devicelink.RenderQRTerminal(qr)
	if err != nil {
		return fmt.Errorf("walletd: render qr: %w", err)
	}
	fmt.Fprintln(os.Stdout, art)
	fmt.Fprintf(os.Stdout, "scan this code with an already-linked device within %s\n", deviceLinkTimeout)

	pollCtx, pollCancel := context.WithTimeout(ctx, deviceLinkTimeout)
	defer pollCancel()
	mapping, err := manager.PollForDeviceLink(pollCtx, session, reportToStderr)
	if err != nil {
		return fmt.Errorf("walletd: poll for device link: %w", err)
	}

	completeParams := passkeymanager.CompleteDeviceLinkParams{
		Session:     session,
		Mapping:     mapping,
		PRFFirst:    prfFirst,
		WrapKeySalt: wrapKeySalt,
	}
	result, err := manager.CompleteDeviceLink(ctx, completeParams, reportToStderr)
	if err != nil {
		return fmt.Errorf("walletd: complete device link: %w", err)
	}
	fmt.Fprintf(os.Stdout, "linked account %s, near public key %s\n", result.AccountID, result.NearPublicKey)
	return nil
}

var (
	deviceAuthWalletCfg string
	deviceAuthAccountID string
	deviceAuthDeviceNo  uint32
	deviceAuthQRFile    string
	deviceAuthPRFHex    string
	deviceAuthSaltHex   string
)

// newDeviceAuthorizeCmd drives the existing-device (Device1) side:
// scans a Device2 QR payload and submits the on-chain authorization
// batch.
func newDeviceAuthorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "authorize a new device from a scanned pairing QR payload",
		RunE:  runDeviceAuthorize,
	}
	cmd.Flags().StringVar(&deviceAuthWalletCfg, "wallet-config", "", "path to a PM_SET_CONFIG-shaped JSON file")
	cmd.Flags().StringVar(&deviceAuthAccountID, "account-id", "", "this device's account id")
	cmd.Flags().Uint32Var(&deviceAuthDeviceNo, "device-number", 0, "this device's own device number")
	cmd.Flags().StringVar(&deviceAuthQRFile, "qr-file", "", "path to a file containing the scanned QR payload string (\"-\" for stdin)")
	cmd.Flags().StringVar(&deviceAuthPRFHex, "prf-first", "", "hex-encoded PRF.first evaluation output")
	cmd.Flags().StringVar(&deviceAuthSaltHex, "wrap-key-salt", "", "hex-encoded wrap-key derivation salt")
	_ = cmd.MarkFlagRequired("account-id")
	_ = cmd.MarkFlagRequired("qr-file")
	_ = cmd.MarkFlagRequired("prf-first")
	_ = cmd.MarkFlagRequired("wrap-key-salt")
	return cmd
}

func runDeviceAuthorize(cmd *cobra.Command, _ []string) error {
	cfg, err := loadWalletConfig(deviceAuthWalletCfg)
	if err != nil {
		return err
	}
	manager, _, err := buildManager(cfg)
	if err != nil {
		return err
	}

	accountID, err := wallettypes.ParseAccountID(deviceAuthAccountID)
	if err != nil {
		return fmt.Errorf("walletd: --account-id: %w", err)
	}
	qrEncoded, err := readQRPayload(deviceAuthQRFile)
	if err != nil {
		return err
	}
	prfFirst, err := hex.DecodeString(deviceAuthPRFHex)
	if err != nil {
		return fmt.Errorf("walletd: decode --prf-first: %w", err)
	}
	wrapKeySalt, err := hex.DecodeString(deviceAuthSaltHex)
	if err != nil {
		return fmt.Errorf("walletd: decode --wrap-key-salt: %w", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	authorizeParams := passkeymanager.AuthorizeDeviceLinkParams{
		AccountID:       accountID,
		OwnDeviceNumber: deviceAuthDeviceNo,
		QREncoded:       qrEncoded,
		PRFFirst:        prfFirst,
		WrapKeySalt:     wrapKeySalt,
		Now:             time.Now(),
	}
	newDeviceNumber, rollback, err := manager.AuthorizeDeviceLink(ctx, authorizeParams, reportToStderr)
	if err != nil {
		return fmt.Errorf("walletd: authorize device link: %w", err)
	}

	raw, err := json.Marshal(rollback)
	if err != nil {
		return fmt.Errorf("walletd: marshal rollback transaction: %w", err)
	}
	fmt.Fprintf(os.Stdout, "authorized new device %d\n", newDeviceNumber)
	fmt.Fprintf(os.Stdout, "retain this rollback transaction until the new device confirms linking:\n%s\n", raw)
	return nil
}

var (
	deviceRollbackWalletCfg string
	deviceRollbackTxFile    string
)

func newDeviceRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "revoke a device's access key after it failed to complete linking",
		RunE:  runDeviceRollback,
	}
	cmd.Flags().StringVar(&deviceRollbackWalletCfg, "wallet-config", "", "path to a PM_SET_CONFIG-shaped JSON file")
	cmd.Flags().StringVar(&deviceRollbackTxFile, "tx-file", "", "path to the JSON rollback transaction printed by \"device authorize\" (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("tx-file")
	return cmd
}

func runDeviceRollback(cmd *cobra.Command, _ []string) error {
	cfg, err := loadWalletConfig(deviceRollbackWalletCfg)
	if err != nil {
		return err
	}
	manager, _, err := buildManager(cfg)
	if err != nil {
		return err
	}

	raw, err := readFileOrStdin(deviceRollbackTxFile)
	if err != nil {
		return err
	}
	var tx wallettypes.SignedTransaction
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		return fmt.Errorf("walletd: parse rollback transaction: %w", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if err := manager.RollbackDeviceLink(ctx, tx); err != nil {
		return fmt.Errorf("walletd: rollback device link: %w", err)
	}
	fmt.Fprintln(os.Stdout, "rollback transaction broadcast")
	return nil
}

func readQRPayload(path string) (string, error) {
	raw, err := readFileOrStdin(path)
	if err != nil {
		return "", fmt.Errorf("walletd: read qr payload: %w", err)
	}
	return raw, nil
}

func readFileOrStdin(path string) (string, error) {
	if path == "-" {
		raw, err := readAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path, not user input
	return string(raw), err
}
