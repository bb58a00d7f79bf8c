// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"

	"github.com/nearfi/passkeywallet/cmd/walletd"
)

func main() {
	if err := walletd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
