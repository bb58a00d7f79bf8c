// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package walleterrors defines the error kinds surfaced across the wallet
// core, their wire codes, and the code-to-human-message mapping used for
// the ERROR envelope's `message` field (§7).
package walleterrors

import (
	"errors"
	"fmt"
)

// Kind is the broad semantic category of an error, independent of its Go
// type, mirroring §7's kind list.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNotAllowed      Kind = "NotAllowedError"
	KindWalletTransport Kind = "WalletTransportError"
	KindSession         Kind = "SessionError"
	KindVRF             Kind = "VrfError"
	KindSigner          Kind = "SignerError"
	KindContract        Kind = "ContractError"
	KindDeviceLinking   Kind = "DeviceLinkingError"
	KindRegistration    Kind = "RegistrationError"
)

// Code is a stable machine-readable error code, carried on the ERROR
// envelope and used to look up a user-facing message.
type Code string

const (
	CodeSessionExpired       Code = "session_expired"
	CodeSessionExhausted     Code = "session_exhausted"
	CodeSessionNotFound      Code = "session_not_found"
	CodeRegistrationFailed   Code = "REGISTRATION_FAILED"
	CodeAuthorizationTimeout Code = "AUTHORIZATION_TIMEOUT"
	CodeInvalidQRData        Code = "INVALID_QR_DATA"
	CodeDLSessionExpired     Code = "SESSION_EXPIRED"
	CodeHandshakeTimeout     Code = "handshake_timeout"
	CodeUserCancelled        Code = "user_cancelled"
	CodePRFMissing           Code = "prf_missing"
	CodeDecryptFailed        Code = "decrypt_failed"
	CodeKeyMaterialMissing   Code = "key_material_missing"
	CodeContractNotVerified  Code = "contract_not_verified"
	CodeRPCFailure           Code = "rpc_failure"
	CodeUnknown              Code = "unknown_error"
)

// WalletError is the concrete error type threaded through the core. It
// carries the semantic Kind, a wire Code, a human Message, optional
// Details for debugging, and an optional wrapped cause.
type WalletError struct {
	Kind    Kind
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *WalletError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *WalletError) Unwrap() error {
	return e.Cause
}

// New constructs a WalletError with the given kind/code/message.
func New(kind Kind, code Code, message string) *WalletError {
	return &WalletError{Kind: kind, Code: code, Message: message}
}

// Wrap constructs a WalletError that wraps an underlying cause.
func Wrap(kind Kind, code Code, message string, cause error) *WalletError {
	return &WalletError{Kind: kind, Code: code, Message: message, Cause: cause}
}

// WithDetails attaches debugging details and returns the same error for
// chaining.
func (e *WalletError) WithDetails(details map[string]any) *WalletError {
	e.Details = details
	return e
}

// As-friendly sentinels for the handful of errors tests and callers need to
// match with errors.Is, following the teacher's pkg/key/backend.go Err*
// sentinel block.
var (
	ErrSessionExpired   = New(KindSession, CodeSessionExpired, "signing session has expired")
	ErrSessionExhausted = New(KindSession, CodeSessionExhausted, "signing session has no remaining uses")
	ErrSessionNotFound  = New(KindSession, CodeSessionNotFound, "signing session not found")
	ErrUserCancelled    = New(KindNotAllowed, CodeUserCancelled, "user cancelled the operation")
	ErrHandshakeTimeout = New(KindWalletTransport, CodeHandshakeTimeout, "Wallet iframe READY timeout")
)

// Is implements errors.Is comparison by Code, so wrapped instances (e.g.
// Wrap(..., cause)) still match their sentinel.
func (e *WalletError) Is(target error) bool {
	var we *WalletError
	if errors.As(target, &we) {
		return e.Code == we.Code
	}
	return false
}

// CodeMessages maps a wire Code to a human-readable string for UI
// rendering. Unknown codes fall back to a generic message; callers append
// the request's correlation id themselves.
var CodeMessages = map[Code]string{
	CodeSessionExpired:       "Your signing session expired. Please try again.",
	CodeSessionExhausted:     "This signing session can no longer be used. Please try again.",
	CodeSessionNotFound:      "No active signing session was found. Please try again.",
	CodeRegistrationFailed:   "Account registration failed and was rolled back.",
	CodeAuthorizationTimeout: "Device linking timed out waiting for authorization.",
	CodeInvalidQRData:        "The scanned QR code is invalid or malformed.",
	CodeDLSessionExpired:     "The device linking QR code has expired. Please generate a new one.",
	CodeHandshakeTimeout:     "Could not connect to the wallet. Please reload and try again.",
	CodeUserCancelled:        "The operation was cancelled.",
	CodePRFMissing:           "Your authenticator did not provide the required PRF output.",
	CodeDecryptFailed:        "Could not unlock the stored key material.",
	CodeKeyMaterialMissing:   "No key material is available for this account.",
	CodeContractNotVerified:  "The contract failed pre-flight verification.",
	CodeRPCFailure:           "A network request to the chain RPC failed.",
	CodeUnknown:              "Something went wrong.",
}

// UserMessage renders a code to its human string, falling back to the
// generic message annotated with the correlation id for unknown codes.
func UserMessage(code Code, requestID string) string {
	if msg, ok := CodeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("%s (reference: %s)", CodeMessages[CodeUnknown], requestID)
}
