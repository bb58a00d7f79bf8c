// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vrfworker implements the VRF keypair lifecycle: bootstrap
// generation, PRF-derived keypair derivation, unlock/decrypt, session key
// minting for the signer worker, and dispense accounting — all run as a
// dedicated goroutine address space with its own inbox, the worker
// equivalent of the teacher's derive-then-encrypt key handling in
// pkg/key/hd_keys.go and pkg/key/backend_software.go's keySession model.
package vrfworker

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

// domainVRFDerive, domainVRFSecretKey and domainWrapKeySeed are the
// HKDF info strings that separate the VRF-derivation, VRF-secret-AEAD and
// WrapKeySeed key spaces, mirroring hd_keys.go's per-key-type domain
// separation (DomainEC/DomainBLS) generalized to PRF-derived secrets.
const (
	domainVRFDerive    = "passkeywallet/vrf/derive"
	domainVRFSecretKey = "passkeywallet/vrf/secret-key"
	domainWrapKeySeed  = "passkeywallet/wrapkeyseed"

	hkdfSaltVRF = "passkeywallet-vrf-hkdf-salt"
)

var (
	errSessionNotFound  = errors.New("vrfworker: session not found")
	errSessionExpired   = errors.New("vrfworker: session expired")
	errSessionExhausted = errors.New("vrfworker: session exhausted")
	errNoVRFKeypair     = errors.New("vrfworker: no vrf keypair loaded")
)

// Worker holds at most one unlocked VRF keypair in memory plus the
// sessionId → SigningSession table. All state is guarded by mu; this is
// the address-space boundary PRF outputs never cross except as a derived
// WrapKeySeed handed to the signer worker's port.
type Worker struct {
	mu       sync.Mutex
	vrfPriv  ed25519.PrivateKey
	vrfPub   ed25519.PublicKey
	sessions map[string]*wallettypes.SigningSession
}

// New returns an empty worker; no VRF keypair is present until
// BootstrapGenerate or DeriveVRFFromPRF runs.
func New() *Worker {
	return &Worker{sessions: make(map[string]*wallettypes.SigningSession)}
}

// BootstrapGenerate creates an in-memory VRF keypair (not yet encrypted)
// and a first VRF challenge bound to the given user/rp/block context.
func (w *Worker) BootstrapGenerate(userID, rpID string, blockHeight uint64, blockHash []byte) (*wallettypes.VRFChallenge, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("vrfworker: generate keypair: %w", err)
	}

	w.mu.Lock()
	w.vrfPriv = priv
	w.vrfPub = pub
	w.mu.Unlock()

	return w.challenge(userID, rpID, blockHeight, blockHash)
}

// DeriveVRFFromPRF deterministically derives an ed25519 VRF keypair from
// PRF.second via HKDF(PRF.second, salt=accountId) and encrypts the VRF
// secret with a ChaCha20-Poly1305 key derived from PRF.first. It returns
// the persisted ciphertext blob and the public key (as "ed25519:<hex>");
// PRF outputs never leave this call.
func (w *Worker) DeriveVRFFromPRF(prfFirst, prfSecond []byte, accountID wallettypes.AccountID) (wallettypes.EncryptedVRFKeypair, string, error) {
	seed, err := deriveSeed32(prfSecond, domainVRFDerive, string(accountID))
	if err != nil {
		return wallettypes.EncryptedVRFKeypair{}, "", err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	aeadKey, err := deriveSeed32(prfFirst, domainVRFSecretKey, string(accountID))
	if err != nil {
		return wallettypes.EncryptedVRFKeypair{}, "", err
	}
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return wallettypes.EncryptedVRFKeypair{}, "", fmt.Errorf("vrfworker: build aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return wallettypes.EncryptedVRFKeypair{}, "", err
	}
	ciphertext := aead.Seal(nil, nonce, priv.Seed(), nil)

	w.mu.Lock()
	w.vrfPriv = priv
	w.vrfPub = pub
	w.mu.Unlock()

	blob := wallettypes.EncryptedVRFKeypair{Ciphertext: ciphertext, Nonce: nonce}
	return blob, "ed25519:" + hex.EncodeToString(pub), nil
}

// UnlockVRF decrypts a stored VRF secret with the PRF.first-derived AEAD
// key and loads the keypair into memory.
func (w *Worker) UnlockVRF(prfFirst []byte, accountID wallettypes.AccountID, blob wallettypes.EncryptedVRFKeypair) error {
	aeadKey, err := deriveSeed32(prfFirst, domainVRFSecretKey, string(accountID))
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return fmt.Errorf("vrfworker: build aead: %w", err)
	}
	seed, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return fmt.Errorf("vrfworker: decrypt vrf secret: %w", err)
	}
	defer wallettypes.ScrubBytes(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	w.mu.Lock()
	w.vrfPriv = priv
	w.vrfPub = priv.Public().(ed25519.PublicKey)
	w.mu.Unlock()
	return nil
}

// MintSessionKeysAndSendToSigner mints a new SigningSession, derives
// WrapKeySeed = HKDF(prfFirst, wrapKeySalt) (generating wrapKeySalt if the
// caller didn't supply one), and caches the seed under the session's TTL
// and use budget. The caller is responsible for transferring the returned
// seed to the signer worker over the per-session port; this method never
// does I/O itself.
func (w *Worker) MintSessionKeysAndSendToSigner(prfFirst []byte, wrapKeySalt []byte, ttl time.Duration, remainingUses int, challenge *wallettypes.VRFChallenge) (sessionID string, seed wallettypes.WrapKeySeed, salt []byte, err error) {
	if len(wrapKeySalt) == 0 {
		wrapKeySalt = make([]byte, 16)
		if _, err := rand.Read(wrapKeySalt); err != nil {
			return "", wallettypes.WrapKeySeed{}, nil, err
		}
	}
	seedBytes, err := deriveSeed32(prfFirst, domainWrapKeySeed, string(wrapKeySalt))
	if err != nil {
		return "", wallettypes.WrapKeySeed{}, nil, err
	}
	seed = wallettypes.NewWrapKeySeed(seedBytes)
	wallettypes.ScrubBytes(seedBytes)

	session := wallettypes.NewSigningSession(ttl, remainingUses)
	session.SetSeed(seed, challenge)

	w.mu.Lock()
	w.sessions[session.SessionID] = session
	w.mu.Unlock()

	return session.SessionID, seed, wrapKeySalt, nil
}

// DispenseSessionKey atomically decrements the session's use budget and
// returns the cached seed, translating SigningSession's SessionState into
// a typed error on any non-active outcome.
func (w *Worker) DispenseSessionKey(sessionID string) (wallettypes.WrapKeySeed, error) {
	w.mu.Lock()
	session, ok := w.sessions[sessionID]
	w.mu.Unlock()
	if !ok {
		return wallettypes.WrapKeySeed{}, errSessionNotFound
	}

	seed, state := session.Dispense(time.Now())
	switch state {
	case wallettypes.SessionActive:
		return seed, nil
	case wallettypes.SessionExpired:
		return wallettypes.WrapKeySeed{}, errSessionExpired
	case wallettypes.SessionExhausted:
		return wallettypes.WrapKeySeed{}, errSessionExhausted
	default:
		return wallettypes.WrapKeySeed{}, errSessionNotFound
	}
}

// CloseSession scrubs and removes a session's cached seed.
func (w *Worker) CloseSession(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if session, ok := w.sessions[sessionID]; ok {
		session.Close()
		delete(w.sessions, sessionID)
	}
}

// Logout clears the in-memory VRF keypair and every session.
func (w *Worker) Logout() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, session := range w.sessions {
		session.Close()
		delete(w.sessions, id)
	}
	if w.vrfPriv != nil {
		for i := range w.vrfPriv {
			w.vrfPriv[i] = 0
		}
		w.vrfPriv = nil
	}
	w.vrfPub = nil
}

// challenge builds a VRF challenge over {userID, rpID, blockHeight,
// blockHash} using the currently loaded VRF keypair. ed25519 Sign is used
// as a simplified, documented deterministic VRF construction over the
// canonical input (not a formal ECVRF per RFC 9381): it provides the
// determinism and public verifiability the flow needs without the
// additional dependency a real ECVRF would require.
func (w *Worker) challenge(userID, rpID string, blockHeight uint64, blockHash []byte) (*wallettypes.VRFChallenge, error) {
	w.mu.Lock()
	priv, pub := w.vrfPriv, w.vrfPub
	w.mu.Unlock()
	if priv == nil {
		return nil, errNoVRFKeypair
	}

	input := vrfInput(userID, rpID, blockHeight, blockHash)
	proof := ed25519.Sign(priv, input)
	output := sha256.Sum256(proof)

	return &wallettypes.VRFChallenge{
		VRFInput:     input,
		VRFOutput:    output[:],
		VRFProof:     proof,
		VRFPublicKey: pub,
		UserID:       userID,
		RPID:         rpID,
		BlockHeight:  blockHeight,
		BlockHash:    blockHash,
	}, nil
}

func vrfInput(userID, rpID string, blockHeight uint64, blockHash []byte) []byte {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(rpID))
	h.Write([]byte{0})
	h.Write(blockHash)
	h.Write([]byte{byte(blockHeight), byte(blockHeight >> 8), byte(blockHeight >> 16), byte(blockHeight >> 24)})
	return h.Sum(nil)
}

// VerifyChallenge recomputes the expected VRF input/output and checks the
// ed25519 signature, the verification half of the simplified VRF
// construction used by challenge().
func VerifyChallenge(c *wallettypes.VRFChallenge) bool {
	expectedInput := vrfInput(c.UserID, c.RPID, c.BlockHeight, c.BlockHash)
	if string(expectedInput) != string(c.VRFInput) {
		return false
	}
	if !ed25519.Verify(c.VRFPublicKey, c.VRFInput, c.VRFProof) {
		return false
	}
	expectedOutput := sha256.Sum256(c.VRFProof)
	return string(expectedOutput[:]) == string(c.VRFOutput)
}

// deriveSeed32 is the HKDF-SHA512 domain-separated derivation shared by
// every key type in this worker, generalizing
// deriveKeyFromSeedWithAccount's pattern (fixed salt, domain+parameter
// info string, 32-byte output) from HD account indices to PRF-derived
// secrets.
func deriveSeed32(secret []byte, domain, param string) ([]byte, error) {
	salt := sha256.Sum256([]byte(hkdfSaltVRF))
	info := fmt.Sprintf("%s/%s", domain, param)
	reader := hkdf.New(sha512.New, secret, salt[:], []byte(info))
	out := make([]byte, 32)
	if _, err := reader.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}
