// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package walletstore is the file-backed implementation of
// passkeymanager.Store: one JSON record per account under a data
// directory, plus a single file naming the currently active account.
// It plays the same role for ClientUserData that signerworker's
// keystore.go plays for encrypted NEAR keys, generalized from a
// (account, device) key path to a plain account path and from secret
// ciphertext to the public bookkeeping fields of ClientUserData.
package walletstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nearfi/passkeywallet/pkg/wallettypes"
)

const (
	userFilePerm    = 0o600
	userDirPerm     = 0o700
	currentFileName = ".current"
)

// FileStore persists ClientUserData records as one JSON file per account
// under dataDir, and the active account id in a small pointer file.
type FileStore struct {
	dataDir string

	mu sync.Mutex
}

// New returns a FileStore rooted at dataDir. The directory is created
// lazily on first write.
func New(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

func (s *FileStore) userPath(accountID wallettypes.AccountID) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.json", accountID))
}

func (s *FileStore) currentPath() string {
	return filepath.Join(s.dataDir, currentFileName)
}

// onDiskUser mirrors wallettypes.ClientUserData with JSON tags, kept
// separate so the in-memory type carries none of its own.
type onDiskUser struct {
	AccountID                 wallettypes.AccountID            `json:"accountId"`
	ClientNearPublicKey       string                            `json:"clientNearPublicKey"`
	EncryptedVRFKeypair       onDiskVRFKeypair                  `json:"encryptedVrfKeypair"`
	ServerEncryptedVRFKeypair *onDiskServerVRFKeypair           `json:"serverEncryptedVrfKeypair,omitempty"`
	DeviceNumber              uint32                            `json:"deviceNumber"`
	Credential                onDiskCredential                  `json:"credential"`
	Preferences               map[string]string                 `json:"preferences,omitempty"`
	UpdatedAt                 string                             `json:"updatedAt"`
}

type onDiskVRFKeypair struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

type onDiskServerVRFKeypair struct {
	Blob        []byte `json:"blob"`
	ServerKeyID string `json:"serverKeyId"`
}

type onDiskCredential struct {
	CredentialID []byte   `json:"credentialId"`
	RPID         string   `json:"rpId"`
	Transports   []string `json:"transports,omitempty"`
}

func toDisk(u wallettypes.ClientUserData) onDiskUser {
	var server *onDiskServerVRFKeypair
	if u.ServerEncryptedVRFKeypair != nil {
		server = &onDiskServerVRFKeypair{
			Blob:        u.ServerEncryptedVRFKeypair.Blob,
			ServerKeyID: u.ServerEncryptedVRFKeypair.ServerKeyID,
		}
	}
	return onDiskUser{
		AccountID:           u.AccountID,
		ClientNearPublicKey: u.ClientNearPublicKey,
		EncryptedVRFKeypair: onDiskVRFKeypair{Ciphertext: u.EncryptedVRFKeypair.Ciphertext, Nonce: u.EncryptedVRFKeypair.Nonce},
		ServerEncryptedVRFKeypair: server,
		DeviceNumber:        u.DeviceNumber,
		Credential: onDiskCredential{
			CredentialID: u.Credential.CredentialID,
			RPID:         u.Credential.RPID,
			Transports:   u.Credential.Transports,
		},
		Preferences: u.Preferences,
		UpdatedAt:   u.UpdatedAt.Format(timeLayout),
	}
}

func fromDisk(d onDiskUser) (wallettypes.ClientUserData, error) {
	var server *wallettypes.ServerEncryptedVRFKeypair
	if d.ServerEncryptedVRFKeypair != nil {
		server = &wallettypes.ServerEncryptedVRFKeypair{
			Blob:        d.ServerEncryptedVRFKeypair.Blob,
			ServerKeyID: d.ServerEncryptedVRFKeypair.ServerKeyID,
		}
	}
	updatedAt, err := parseTime(d.UpdatedAt)
	if err != nil {
		return wallettypes.ClientUserData{}, fmt.Errorf("walletstore: parse updatedAt: %w", err)
	}
	return wallettypes.ClientUserData{
		AccountID:           d.AccountID,
		ClientNearPublicKey: d.ClientNearPublicKey,
		EncryptedVRFKeypair: wallettypes.EncryptedVRFKeypair{Ciphertext: d.EncryptedVRFKeypair.Ciphertext, Nonce: d.EncryptedVRFKeypair.Nonce},
		ServerEncryptedVRFKeypair: server,
		DeviceNumber:        d.DeviceNumber,
		Credential: wallettypes.PasskeyCredentialDescriptor{
			CredentialID: d.Credential.CredentialID,
			RPID:         d.Credential.RPID,
			Transports:   d.Credential.Transports,
		},
		Preferences: d.Preferences,
		UpdatedAt:   updatedAt,
	}, nil
}

// SaveUser writes data's record to disk, creating dataDir if needed.
func (s *FileStore) SaveUser(_ context.Context, data wallettypes.ClientUserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dataDir, userDirPerm); err != nil {
		return fmt.Errorf("walletstore: create data dir: %w", err)
	}
	raw, err := json.Marshal(toDisk(data))
	if err != nil {
		return fmt.Errorf("walletstore: marshal user record: %w", err)
	}
	return os.WriteFile(s.userPath(data.AccountID), raw, userFilePerm)
}

// ErrUserNotFound is returned by LoadUser when no record exists for the
// requested account.
var ErrUserNotFound = fmt.Errorf("walletstore: user not found")

// LoadUser reads a previously saved record.
func (s *FileStore) LoadUser(_ context.Context, accountID wallettypes.AccountID) (wallettypes.ClientUserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.userPath(accountID)) //nolint:gosec // G304: path built from validated AccountID under our own data dir
	if err != nil {
		if os.IsNotExist(err) {
			return wallettypes.ClientUserData{}, ErrUserNotFound
		}
		return wallettypes.ClientUserData{}, fmt.Errorf("walletstore: read user record: %w", err)
	}
	var d onDiskUser
	if err := json.Unmarshal(raw, &d); err != nil {
		return wallettypes.ClientUserData{}, fmt.Errorf("walletstore: parse user record: %w", err)
	}
	return fromDisk(d)
}

// SetCurrentAccount records accountID as the active session account.
func (s *FileStore) SetCurrentAccount(_ context.Context, accountID wallettypes.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dataDir, userDirPerm); err != nil {
		return fmt.Errorf("walletstore: create data dir: %w", err)
	}
	return os.WriteFile(s.currentPath(), []byte(accountID), userFilePerm)
}

// CurrentAccount returns the active session account, or the zero
// AccountID if none has been set (e.g. after logout or before first
// login).
func (s *FileStore) CurrentAccount(_ context.Context) (wallettypes.AccountID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.currentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("walletstore: read current account: %w", err)
	}
	return wallettypes.AccountID(raw), nil
}
