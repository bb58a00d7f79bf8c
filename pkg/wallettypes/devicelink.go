// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallettypes

import (
	"sync"
	"time"
)

// DeviceLinkingPhase is the wire-stable phase string for the device-linking
// flow (§6 phase enumerations).
type DeviceLinkingPhase string

const (
	DLPhaseIdle                  DeviceLinkingPhase = "IDLE"
	DLPhaseQRCodeGenerated       DeviceLinkingPhase = "STEP_1_QR_CODE_GENERATED"
	DLPhaseScanning              DeviceLinkingPhase = "STEP_2_SCANNING"
	DLPhaseAuthorization         DeviceLinkingPhase = "STEP_3_AUTHORIZATION"
	DLPhasePolling               DeviceLinkingPhase = "STEP_4_POLLING"
	DLPhaseAddKeyDetected        DeviceLinkingPhase = "STEP_5_ADDKEY_DETECTED"
	DLPhaseRegistration          DeviceLinkingPhase = "STEP_6_REGISTRATION"
	DLPhaseLinkingComplete       DeviceLinkingPhase = "STEP_7_LINKING_COMPLETE"
	DLPhaseAutoLogin             DeviceLinkingPhase = "STEP_8_AUTO_LOGIN"
	DLPhaseRegistrationError     DeviceLinkingPhase = "REGISTRATION_ERROR"
	DLPhaseLoginError            DeviceLinkingPhase = "LOGIN_ERROR"
	DLPhaseDeviceLinkingError    DeviceLinkingPhase = "DEVICE_LINKING_ERROR"
)

// DeviceLinkingSession tracks Device2's (the new device's) progress through
// the linking protocol. tempPrivateKey is scrubbed on cancel, completion,
// timeout, or registration error — Scrub() is idempotent and is the only
// place that zeroes it, so every terminal path can call it unconditionally.
type DeviceLinkingSession struct {
	AccountID    AccountID
	DeviceNumber uint32
	NearPublicKey string

	Credential   *PasskeyCredentialDescriptor
	VRFChallenge *VRFChallenge

	Phase     DeviceLinkingPhase
	CreatedAt time.Time
	ExpiresAt time.Time

	mu             sync.Mutex
	tempPrivateKey []byte
}

// NewDeviceLinkingSession starts a session in IDLE with the given QR
// max-age based expiry.
func NewDeviceLinkingSession(now time.Time, maxAge time.Duration) *DeviceLinkingSession {
	return &DeviceLinkingSession{
		Phase:     DLPhaseIdle,
		CreatedAt: now,
		ExpiresAt: now.Add(maxAge),
	}
}

// SetTempPrivateKey installs the temporary signing key, scrubbing any prior
// one first.
func (d *DeviceLinkingSession) SetTempPrivateKey(key []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	scrubBytes(d.tempPrivateKey)
	d.tempPrivateKey = append([]byte(nil), key...)
}

// TempPrivateKey returns a copy of the temporary key, or nil if scrubbed.
func (d *DeviceLinkingSession) TempPrivateKey() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tempPrivateKey == nil {
		return nil
	}
	return append([]byte(nil), d.tempPrivateKey...)
}

// Scrub zeroes and releases the temporary private key. Idempotent: safe to
// call from cancel, completion, error, and timeout paths without
// coordination.
func (d *DeviceLinkingSession) Scrub() {
	d.mu.Lock()
	defer d.mu.Unlock()
	scrubBytes(d.tempPrivateKey)
	d.tempPrivateKey = nil
}

// Expired reports whether now is past the session's ExpiresAt.
func (d *DeviceLinkingSession) Expired(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return now.After(d.ExpiresAt)
}

func scrubBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ScrubBytes zeroes a byte slice in place. Exported so callers outside this
// package (e.g. devicelink, signerworker) can scrub ad hoc secret buffers
// with the same primitive used internally.
func ScrubBytes(b []byte) {
	scrubBytes(b)
}
