// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signerworker derives and holds NEAR ed25519 keypairs under a
// WrapKeySeed supplied by the VRF worker, persists them encrypted on
// disk, and assembles/signs Borsh transactions. It plays the role the
// teacher's SoftwareBackend plays for EC/BLS HD keys, generalized from a
// password-derived Argon2id key to a pre-derived WrapKeySeed and from
// secp256k1/BLS to NEAR's ed25519.
package signerworker

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/nearfi/passkeywallet/pkg/applog"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

const (
	domainNearKeyDerive = "passkeywallet/near/key"
	domainNearKeyAEAD   = "passkeywallet/near/key-aead"
	hkdfSaltSigner      = "passkeywallet-signer-hkdf-salt"

	keyFilePerm = 0o600
	keyDirPerm  = 0o700
)

// Worker owns the signer worker's persistent encrypted key store and its
// nonce bookkeeping. Every operation that touches plaintext key material
// takes the WrapKeySeed as an explicit argument rather than caching it:
// the seed is supplied fresh by the VRF worker per signing session.
type Worker struct {
	dataDir string
	log     applog.Logger

	mu     sync.Mutex
	Nonces *NonceManager
}

// New constructs a Worker persisting encrypted keys under dataDir/<accountId>-<deviceNumber>.json.
func New(dataDir string, log applog.Logger) *Worker {
	return &Worker{dataDir: dataDir, log: log, Nonces: NewNonceManager()}
}

func (w *Worker) keyPath(accountID wallettypes.AccountID, deviceNumber uint32) string {
	return filepath.Join(w.dataDir, fmt.Sprintf("%s-%d.json", accountID, deviceNumber))
}

// onDiskKeyData mirrors wallettypes.EncryptedKeyData with JSON tags; kept
// separate so the in-memory type has no persistence concerns baked in.
type onDiskKeyData struct {
	AccountID    wallettypes.AccountID `json:"accountId"`
	DeviceNumber uint32                `json:"deviceNumber"`
	Ciphertext   []byte                `json:"ciphertext"`
	Nonce        []byte                `json:"nonce"`
	WrapKeySalt  []byte                `json:"wrapKeySalt"`
	PublicKey    string                `json:"publicKey"`
	Version      uint8                 `json:"version"`
}

func toDisk(k wallettypes.EncryptedKeyData) onDiskKeyData {
	return onDiskKeyData{
		AccountID: k.AccountID, DeviceNumber: k.DeviceNumber,
		Ciphertext: k.Ciphertext, Nonce: k.Nonce, WrapKeySalt: k.WrapKeySalt,
		PublicKey: k.PublicKey, Version: k.Version,
	}
}

func fromDisk(d onDiskKeyData) wallettypes.EncryptedKeyData {
	return wallettypes.EncryptedKeyData{
		AccountID: d.AccountID, DeviceNumber: d.DeviceNumber,
		Ciphertext: d.Ciphertext, Nonce: d.Nonce, WrapKeySalt: d.WrapKeySalt,
		PublicKey: d.PublicKey, Version: d.Version,
	}
}

// persist writes the encrypted key record to disk, creating dataDir if
// needed. Guarded by mu so concurrent derive/delete calls for different
// devices of the same account don't race on directory creation.
func (w *Worker) persist(k wallettypes.EncryptedKeyData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dataDir, keyDirPerm); err != nil {
		return fmt.Errorf("signerworker: create key dir: %w", err)
	}
	data, err := json.Marshal(toDisk(k))
	if err != nil {
		return fmt.Errorf("signerworker: marshal key record: %w", err)
	}
	return os.WriteFile(w.keyPath(k.AccountID, k.DeviceNumber), data, keyFilePerm)
}

// LoadKeyData reads a previously persisted encrypted key record.
func (w *Worker) LoadKeyData(accountID wallettypes.AccountID, deviceNumber uint32) (wallettypes.EncryptedKeyData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := os.ReadFile(w.keyPath(accountID, deviceNumber)) //nolint:gosec // G304: path is built from validated AccountID under our own data dir
	if err != nil {
		if os.IsNotExist(err) {
			return wallettypes.EncryptedKeyData{}, ErrKeyNotFound
		}
		return wallettypes.EncryptedKeyData{}, fmt.Errorf("signerworker: read key record: %w", err)
	}
	var d onDiskKeyData
	if err := json.Unmarshal(data, &d); err != nil {
		return wallettypes.EncryptedKeyData{}, fmt.Errorf("signerworker: parse key record: %w", err)
	}
	return fromDisk(d), nil
}

// DeleteKeyData removes a persisted key record, used on registration
// rollback and device-key deletion.
func (w *Worker) DeleteKeyData(accountID wallettypes.AccountID, deviceNumber uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := os.Remove(w.keyPath(accountID, deviceNumber))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("signerworker: delete key record: %w", err)
	}
	return nil
}

// DeriveNearKeypairAndEncrypt derives an ed25519 NEAR keypair from
// wrapKeySeed via HKDF-SHA512, encrypts the private seed under a
// second HKDF-derived AES-256-GCM key, persists the record (including
// wrapKeySalt, the VRF worker's WrapKeySeed derivation salt, so a later
// RecoverKeypairFromPasskey can confirm it is re-deriving against the
// same salt), and returns the record alongside the plaintext public key
// string.
func (w *Worker) DeriveNearKeypairAndEncrypt(wrapKeySeed wallettypes.WrapKeySeed, wrapKeySalt []byte, accountID wallettypes.AccountID, deviceNumber uint32) (wallettypes.EncryptedKeyData, error) {
	priv, pub, err := derivePrivateKey(wrapKeySeed, accountID, deviceNumber)
	if err != nil {
		return wallettypes.EncryptedKeyData{}, err
	}
	defer wallettypes.ScrubBytes(priv)

	aeadKey, err := deriveSeed32(wrapKeySeed.Bytes(), domainNearKeyAEAD, fmt.Sprintf("%s/%d", accountID, deviceNumber))
	if err != nil {
		return wallettypes.EncryptedKeyData{}, err
	}
	defer wallettypes.ScrubBytes(aeadKey)

	nonce, ciphertext, err := encryptAESGCM(aeadKey, priv)
	if err != nil {
		return wallettypes.EncryptedKeyData{}, err
	}

	record := wallettypes.EncryptedKeyData{
		AccountID:    accountID,
		DeviceNumber: deviceNumber,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		WrapKeySalt:  wrapKeySalt,
		PublicKey:    "ed25519:" + hex.EncodeToString(pub),
		Version:      1,
	}
	if err := w.persist(record); err != nil {
		return wallettypes.EncryptedKeyData{}, err
	}
	return record, nil
}

// DecryptPrivateKeyWithWrapKeySeed decrypts a persisted key record's
// private key seed under wrapKeySeed. The returned slice is the raw
// ed25519 seed; callers must scrub it once signing completes.
func (w *Worker) DecryptPrivateKeyWithWrapKeySeed(wrapKeySeed wallettypes.WrapKeySeed, record wallettypes.EncryptedKeyData) ([]byte, error) {
	aeadKey, err := deriveSeed32(wrapKeySeed.Bytes(), domainNearKeyAEAD, fmt.Sprintf("%s/%d", record.AccountID, record.DeviceNumber))
	if err != nil {
		return nil, err
	}
	defer wallettypes.ScrubBytes(aeadKey)

	plain, err := decryptAESGCM(aeadKey, record.Nonce, record.Ciphertext)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

func derivePrivateKey(wrapKeySeed wallettypes.WrapKeySeed, accountID wallettypes.AccountID, deviceNumber uint32) (priv, pub []byte, err error) {
	seed, err := deriveSeed32(wrapKeySeed.Bytes(), domainNearKeyDerive, fmt.Sprintf("%s/%d", accountID, deviceNumber))
	if err != nil {
		return nil, nil, err
	}
	defer wallettypes.ScrubBytes(seed)
	return ed25519KeypairFromSeed(seed)
}

// deriveSeed32 is the HKDF-SHA512 domain-separated derivation shared by
// this package, the same pattern vrfworker uses for its own key spaces.
func deriveSeed32(secret []byte, domain, param string) ([]byte, error) {
	salt := sha256.Sum256([]byte(hkdfSaltSigner))
	info := fmt.Sprintf("%s/%s", domain, param)
	reader := hkdf.New(sha512.New, secret, salt[:], []byte(info))
	out := make([]byte, 32)
	if _, err := reader.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

func encryptAESGCM(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

func decryptAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
