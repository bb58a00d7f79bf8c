// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package walletd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// signalContext derives a cancellable context from the command's own
// context that also cancels on SIGINT/SIGTERM, the same interruption
// behavior runServe gives its websocket listener.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
