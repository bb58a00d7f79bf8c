// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vrfworker

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// domainShamirClientExponent separates the Shamir 3-pass client exponent
// derivation from every other HKDF-derived secret this worker produces.
const domainShamirClientExponent = "passkeywallet/vrf/shamir-client-exponent"

// ShamirRelay is the external collaborator §4.6 calls the remote relay:
// a server that holds a key a Shamir 3-pass commutative-cipher round
// trip locks/unlocks the VRF secret under, without ever itself learning
// the plaintext. Modeled on relayclient.Client's single-POST-per-call
// HTTP pattern, generalized to two named endpoints instead of one.
type ShamirRelay interface {
	// ApplyServerLock sends value (the client-locked ciphertext, big-
	// endian bytes of a value mod p) to the relay and returns the
	// server-locked ciphertext plus an identifier for the server key
	// used, so a later RemoveServerLock call can address the same key.
	ApplyServerLock(ctx context.Context, value []byte) (locked []byte, serverKeyID string, err error)
	// RemoveServerLock asks the relay to strip the server's lock
	// identified by serverKeyID from value, returning the opened value.
	RemoveServerLock(ctx context.Context, serverKeyID string, value []byte) (opened []byte, err error)
}

// HTTPShamirRelay is the concrete ShamirRelay implementation, posting
// JSON requests to the two routes a Shamir3PassConfig names.
type HTTPShamirRelay struct {
	cfg        config.Shamir3PassConfig
	httpClient *http.Client
}

// NewHTTPShamirRelay returns an HTTPShamirRelay posting to cfg's routes.
func NewHTTPShamirRelay(cfg config.Shamir3PassConfig) *HTTPShamirRelay {
	return &HTTPShamirRelay{cfg: cfg, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

type shamirApplyRequest struct {
	Value string `json:"value"`
}

type shamirApplyResponse struct {
	OK          bool   `json:"ok"`
	Value       string `json:"value"`
	ServerKeyID string `json:"serverKeyId"`
	Message     string `json:"message,omitempty"`
}

type shamirRemoveRequest struct {
	ServerKeyID string `json:"serverKeyId"`
	Value       string `json:"value"`
}

type shamirRemoveResponse struct {
	OK      bool   `json:"ok"`
	Value   string `json:"value"`
	Message string `json:"message,omitempty"`
}

func (r *HTTPShamirRelay) ApplyServerLock(ctx context.Context, value []byte) ([]byte, string, error) {
	reqBody, err := json.Marshal(shamirApplyRequest{Value: base64.StdEncoding.EncodeToString(value)})
	if err != nil {
		return nil, "", fmt.Errorf("vrfworker: marshal apply-lock request: %w", err)
	}
	var decoded shamirApplyResponse
	if err := r.post(ctx, r.cfg.RelayServerURL+r.cfg.ApplyServerLockRoute, reqBody, &decoded); err != nil {
		return nil, "", err
	}
	if !decoded.OK {
		return nil, "", fmt.Errorf("vrfworker: relay refused apply-lock: %s", decoded.Message)
	}
	locked, err := base64.StdEncoding.DecodeString(decoded.Value)
	if err != nil {
		return nil, "", fmt.Errorf("vrfworker: decode apply-lock value: %w", err)
	}
	return locked, decoded.ServerKeyID, nil
}

func (r *HTTPShamirRelay) RemoveServerLock(ctx context.Context, serverKeyID string, value []byte) ([]byte, error) {
	reqBody, err := json.Marshal(shamirRemoveRequest{ServerKeyID: serverKeyID, Value: base64.StdEncoding.EncodeToString(value)})
	if err != nil {
		return nil, fmt.Errorf("vrfworker: marshal remove-lock request: %w", err)
	}
	var decoded shamirRemoveResponse
	if err := r.post(ctx, r.cfg.RelayServerURL+r.cfg.RemoveServerLockRoute, reqBody, &decoded); err != nil {
		return nil, err
	}
	if !decoded.OK {
		return nil, fmt.Errorf("vrfworker: relay refused remove-lock: %s", decoded.Message)
	}
	opened, err := base64.StdEncoding.DecodeString(decoded.Value)
	if err != nil {
		return nil, fmt.Errorf("vrfworker: decode remove-lock value: %w", err)
	}
	return opened, nil
}

func (r *HTTPShamirRelay) post(ctx context.Context, url string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vrfworker: build relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("vrfworker: relay request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vrfworker: read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vrfworker: relay rejected request: status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("vrfworker: decode relay response: %w", err)
	}
	return nil
}

// Shamir3PassEncrypt re-encrypts the currently loaded VRF secret under a
// server key via the classical three-pass commutative-cipher protocol:
// the worker locks the secret with its own exponent, the relay locks the
// result with the server's exponent, then the worker removes its own
// lock, leaving a ciphertext only the server's exponent can open. It
// implements SHAMIR_3PASS_ENCRYPT (§4.6).
func (w *Worker) Shamir3PassEncrypt(ctx context.Context, relay ShamirRelay, cfg config.Shamir3PassConfig, accountID wallettypes.AccountID) (*wallettypes.ServerEncryptedVRFKeypair, error) {
	w.mu.Lock()
	priv := w.vrfPriv
	w.mu.Unlock()
	if priv == nil {
		return nil, errNoVRFKeypair
	}

	p, ok := new(big.Int).SetString(cfg.P, 10)
	if !ok || p.Sign() <= 0 {
		return nil, fmt.Errorf("vrfworker: invalid shamir3pass modulus")
	}
	pMinus1 := new(big.Int).Sub(p, big.NewInt(1))

	c, err := deriveCoprimeExponent(priv.Seed(), string(accountID), pMinus1)
	if err != nil {
		return nil, err
	}

	m := new(big.Int).SetBytes(priv.Seed())
	m.Mod(m, p)

	c1 := new(big.Int).Exp(m, c, p)

	lockedBytes, serverKeyID, err := relay.ApplyServerLock(ctx, c1.Bytes())
	if err != nil {
		return nil, fmt.Errorf("vrfworker: apply server lock: %w", err)
	}
	c2 := new(big.Int).SetBytes(lockedBytes)

	cInv := new(big.Int).ModInverse(c, pMinus1)
	if cInv == nil {
		return nil, fmt.Errorf("vrfworker: client exponent has no inverse mod p-1")
	}
	c3 := new(big.Int).Exp(c2, cInv, p)

	return &wallettypes.ServerEncryptedVRFKeypair{Blob: c3.Bytes(), ServerKeyID: serverKeyID}, nil
}

// Shamir3PassDecrypt asks the relay to remove its server lock from blob,
// loading the recovered VRF keypair into memory on success. It
// implements SHAMIR_3PASS_DECRYPT (§4.6); the plaintext never crosses
// the relay, only blob's already-server-locked ciphertext does.
func (w *Worker) Shamir3PassDecrypt(ctx context.Context, relay ShamirRelay, blob *wallettypes.ServerEncryptedVRFKeypair) error {
	if blob == nil {
		return fmt.Errorf("vrfworker: nil server-encrypted vrf keypair")
	}

	opened, err := relay.RemoveServerLock(ctx, blob.ServerKeyID, blob.Blob)
	if err != nil {
		return fmt.Errorf("vrfworker: remove server lock: %w", err)
	}
	defer wallettypes.ScrubBytes(opened)

	seed := make([]byte, ed25519.SeedSize)
	if len(opened) > ed25519.SeedSize {
		return fmt.Errorf("vrfworker: recovered vrf secret too long")
	}
	copy(seed[ed25519.SeedSize-len(opened):], opened)

	priv := ed25519.NewKeyFromSeed(seed)
	w.mu.Lock()
	w.vrfPriv = priv
	w.vrfPub = priv.Public().(ed25519.PublicKey)
	w.mu.Unlock()
	return nil
}

// deriveCoprimeExponent derives a deterministic candidate exponent from
// secret/accountID via HKDF-SHA512 (the same primitive deriveSeed32 uses
// for every other key in this worker) and nudges it upward until it is
// coprime with pMinus1, the condition a Shamir 3-pass commutative lock
// exponent must satisfy to be invertible mod p-1.
func deriveCoprimeExponent(secret []byte, accountID string, pMinus1 *big.Int) (*big.Int, error) {
	raw, err := deriveSeed32(secret, domainShamirClientExponent, accountID)
	if err != nil {
		return nil, err
	}
	c := new(big.Int).SetBytes(raw)
	c.Mod(c, pMinus1)
	if c.Sign() <= 0 {
		c.SetInt64(2)
	}

	one := big.NewInt(1)
	gcd := new(big.Int)
	for i := 0; i < 1<<16; i++ {
		gcd.GCD(nil, nil, c, pMinus1)
		if gcd.Cmp(one) == 0 {
			return c, nil
		}
		c.Add(c, one)
		if c.Cmp(pMinus1) >= 0 {
			c.SetInt64(2)
		}
	}
	return nil, fmt.Errorf("vrfworker: could not find coprime shamir3pass exponent")
}
