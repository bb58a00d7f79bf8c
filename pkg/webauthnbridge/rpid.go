// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package webauthnbridge

import (
	"fmt"
	"net/url"
)

// RPIDFromOrigin extracts the relying party ID (the hostname) from a
// wallet origin URL, honoring rpIdOverride from config when non-empty.
func RPIDFromOrigin(origin, rpIDOverride string) (string, error) {
	if rpIDOverride != "" {
		return rpIDOverride, nil
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("webauthnbridge: parse origin: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("webauthnbridge: empty hostname in origin %q", origin)
	}
	return host, nil
}
