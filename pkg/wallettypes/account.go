// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wallettypes holds the shared value types exchanged between the
// router, the workers, and the secure-confirmation flow: account
// identifiers, encrypted key records, VRF challenges, signing sessions and
// device-linking sessions.
package wallettypes

import (
	"errors"
	"strings"
)

// ErrInvalidAccountID is returned when a raw string fails AccountID syntax
// validation.
var ErrInvalidAccountID = errors.New("wallettypes: invalid account id")

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// AccountID is an opaque, syntax-validated NEAR-style account identifier:
// dot-separated labels, each a lowercase alphanumeric run optionally joined
// by single '-' or '_' separators, overall length bounded.
type AccountID string

// ParseAccountID normalizes and validates a raw string into an AccountID.
// Both AccountID and raw string are accepted at API boundaries; this is the
// single normalization point.
func ParseAccountID(raw string) (AccountID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) < minAccountIDLen || len(s) > maxAccountIDLen {
		return "", ErrInvalidAccountID
	}

	labels := strings.Split(s, ".")
	for _, label := range labels {
		if !isValidLabel(label) {
			return "", ErrInvalidAccountID
		}
	}
	return AccountID(s), nil
}

func isValidLabel(label string) bool {
	if len(label) == 0 {
		return false
	}
	if label[0] == '-' || label[0] == '_' || label[len(label)-1] == '-' || label[len(label)-1] == '_' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (a AccountID) String() string {
	return string(a)
}

// IsZero reports whether the account id is unset.
func (a AccountID) IsZero() bool {
	return a == ""
}
