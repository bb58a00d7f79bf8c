// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package devicelink implements the two-participant device-linking
// protocol: a new device (Device2) generates a temporary keypair,
// displays a QR code encoding its public key, polls an on-chain mapping
// until an existing device (Device1) authorizes it, then atomically
// swaps its temporary key for a PRF-derived permanent one.
package devicelink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

const qrPayloadVersion = "1.0"

// QRPayload is the JSON shape encoded, base64, into the device-linking QR
// code. AccountID is omitted when Device2 starts with no account known
// up front (Option F: the temporary-key path).
type QRPayload struct {
	Device2PublicKey string  `json:"device2PublicKey"`
	AccountID        *string `json:"accountId,omitempty"`
	Timestamp        int64   `json:"timestamp"`
	Version          string  `json:"version"`
}

// EncodeQRPayload renders p as the base64-encoded UTF-8 JSON string
// carried inside the QR code image.
func EncodeQRPayload(p QRPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("devicelink: marshal qr payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeQRPayload parses and validates a scanned QR string against now,
// rejecting malformed payloads and payloads older than maxAge.
func DecodeQRPayload(encoded string, now time.Time, maxAge time.Duration) (QRPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return QRPayload{}, fmt.Errorf("%w: not valid base64", ErrInvalidQRData)
	}
	var p QRPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return QRPayload{}, fmt.Errorf("%w: not valid JSON", ErrInvalidQRData)
	}
	if p.Device2PublicKey == "" {
		return QRPayload{}, fmt.Errorf("%w: missing device2PublicKey", ErrInvalidQRData)
	}
	if p.Timestamp == 0 {
		return QRPayload{}, fmt.Errorf("%w: missing timestamp", ErrInvalidQRData)
	}
	age := now.Sub(time.UnixMilli(p.Timestamp))
	if age > maxAge {
		return QRPayload{}, ErrQRExpired
	}
	if p.AccountID != nil {
		if _, err := wallettypes.ParseAccountID(*p.AccountID); err != nil {
			return QRPayload{}, fmt.Errorf("%w: invalid accountId", ErrInvalidQRData)
		}
	}
	return p, nil
}

// RenderQRPNG renders the encoded QR payload string as a PNG image at the
// given pixel size, for display in the host UI.
func RenderQRPNG(encoded string, size int) ([]byte, error) {
	png, err := qrcode.Encode(encoded, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("devicelink: render qr png: %w", err)
	}
	return png, nil
}

// RenderQRTerminal renders the encoded QR payload as a small-block string
// suitable for printing to a terminal, used by cmd/walletd's device-link
// subcommand.
func RenderQRTerminal(encoded string) (string, error) {
	qr, err := qrcode.New(encoded, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("devicelink: render qr terminal: %w", err)
	}
	return qr.ToSmallString(false), nil
}

func newQRPayload(pubKey string, accountID *string, now time.Time) QRPayload {
	return QRPayload{
		Device2PublicKey: pubKey,
		AccountID:        accountID,
		Timestamp:        now.UnixMilli(),
		Version:          qrPayloadVersion,
	}
}
