// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/webauthnbridge"
)

// The internal wallettypes transaction/VRF types carry no JSON tags —
// nothing on this side of the module ever serialized them before the
// Port boundary existed. These wire mirrors are what actually cross
// PM_* payloads; every handler converts to/from the internal shape at
// the edge instead of tagging the internal types themselves, so a wire
// rename never touches signerworker/vrfworker's own field names.

// wireVRFChallenge mirrors wallettypes.VRFChallenge.
type wireVRFChallenge struct {
	VRFInput     []byte `json:"vrfInput"`
	VRFOutput    []byte `json:"vrfOutput"`
	VRFProof     []byte `json:"vrfProof"`
	VRFPublicKey []byte `json:"vrfPublicKey"`
	UserID       string `json:"userId"`
	RPID         string `json:"rpId"`
	BlockHeight  uint64 `json:"blockHeight"`
	BlockHash    []byte `json:"blockHash"`
}

func (w *wireVRFChallenge) toInternal() *wallettypes.VRFChallenge {
	if w == nil {
		return nil
	}
	return &wallettypes.VRFChallenge{
		VRFInput:     w.VRFInput,
		VRFOutput:    w.VRFOutput,
		VRFProof:     w.VRFProof,
		VRFPublicKey: w.VRFPublicKey,
		UserID:       w.UserID,
		RPID:         w.RPID,
		BlockHeight:  w.BlockHeight,
		BlockHash:    w.BlockHash,
	}
}

func wireChallengeFrom(c *wallettypes.VRFChallenge) *wireVRFChallenge {
	if c == nil {
		return nil
	}
	return &wireVRFChallenge{
		VRFInput:     c.VRFInput,
		VRFOutput:    c.VRFOutput,
		VRFProof:     c.VRFProof,
		VRFPublicKey: c.VRFPublicKey,
		UserID:       c.UserID,
		RPID:         c.RPID,
		BlockHeight:  c.BlockHeight,
		BlockHash:    c.BlockHash,
	}
}

// wireAction mirrors wallettypes.Action with exactly one payload field
// populated, selected by Kind.
type wireAction struct {
	Kind           string   `json:"kind"`
	PublicKey      string   `json:"publicKey,omitempty"`
	AllowanceYocto string   `json:"allowanceYocto,omitempty"`
	ReceiverID     string   `json:"receiverId,omitempty"`
	MethodNames    []string `json:"methodNames,omitempty"`
	MethodName     string   `json:"methodName,omitempty"`
	Args           []byte   `json:"args,omitempty"`
	GasLimit       uint64   `json:"gasLimit,omitempty"`
	DepositYocto   string   `json:"depositYocto,omitempty"`
	WASMCode       []byte   `json:"wasmCode,omitempty"`
	StakeYocto     string   `json:"stakeYocto,omitempty"`
}

func (w wireAction) toInternal() wallettypes.Action {
	return wallettypes.Action{
		Kind:           wallettypes.ActionKind(w.Kind),
		PublicKey:      w.PublicKey,
		AllowanceYocto: w.AllowanceYocto,
		ReceiverID:     w.ReceiverID,
		MethodNames:    w.MethodNames,
		MethodName:     w.MethodName,
		Args:           w.Args,
		GasLimit:       w.GasLimit,
		DepositYocto:   w.DepositYocto,
		WASMCode:       w.WASMCode,
		StakeYocto:     w.StakeYocto,
	}
}

// wireTransactionInput mirrors wallettypes.TransactionInput.
type wireTransactionInput struct {
	ReceiverID string       `json:"receiverId"`
	Actions    []wireAction `json:"actions"`
}

func (w wireTransactionInput) toInternal() wallettypes.TransactionInput {
	actions := make([]wallettypes.Action, len(w.Actions))
	for i, a := range w.Actions {
		actions[i] = a.toInternal()
	}
	return wallettypes.TransactionInput{ReceiverID: wallettypes.AccountID(w.ReceiverID), Actions: actions}
}

// wireSignedTransaction mirrors wallettypes.SignedTransaction.
type wireSignedTransaction struct {
	SignerID   string `json:"signerId"`
	ReceiverID string `json:"receiverId"`
	Nonce      uint64 `json:"nonce"`
	Hash       []byte `json:"hash"`
	BorshBytes []byte `json:"borshBytes"`
}

func wireSignedTransactionFrom(s wallettypes.SignedTransaction) wireSignedTransaction {
	return wireSignedTransaction{
		SignerID:   string(s.SignerID),
		ReceiverID: string(s.ReceiverID),
		Nonce:      s.Nonce,
		Hash:       s.Hash[:],
		BorshBytes: s.BorshBytes,
	}
}

// wireAttestation mirrors webauthnbridge.AttestationResponse.
type wireAttestation struct {
	CredentialID      []byte            `json:"credentialId"`
	AttestationObject []byte            `json:"attestationObject"`
	ClientDataJSON    []byte            `json:"clientDataJSON"`
	Transports        []string          `json:"transports,omitempty"`
	PRF               *wirePRFOutputs   `json:"prf,omitempty"`
}

type wirePRFOutputs struct {
	First  []byte `json:"first"`
	Second []byte `json:"second,omitempty"`
}

func (w wireAttestation) toInternal() webauthnbridge.AttestationResponse {
	var prf *webauthnbridge.PRFExtensionOutputs
	if w.PRF != nil {
		prf = &webauthnbridge.PRFExtensionOutputs{First: w.PRF.First, Second: w.PRF.Second}
	}
	return webauthnbridge.AttestationResponse{
		CredentialID:      w.CredentialID,
		AttestationObject: w.AttestationObject,
		ClientDataJSON:    w.ClientDataJSON,
		Transports:        w.Transports,
		PRF:               prf,
	}
}

// wireAssertion mirrors webauthnbridge.AssertionResponse.
type wireAssertion struct {
	CredentialID      []byte          `json:"credentialId"`
	AuthenticatorData []byte          `json:"authenticatorData"`
	ClientDataJSON    []byte          `json:"clientDataJSON"`
	Signature         []byte          `json:"signature"`
	UserHandle        []byte          `json:"userHandle,omitempty"`
	PRF               *wirePRFOutputs `json:"prf,omitempty"`
}

func (w wireAssertion) toInternal() webauthnbridge.AssertionResponse {
	var prf *webauthnbridge.PRFExtensionOutputs
	if w.PRF != nil {
		prf = &webauthnbridge.PRFExtensionOutputs{First: w.PRF.First, Second: w.PRF.Second}
	}
	return webauthnbridge.AssertionResponse{
		CredentialID:      w.CredentialID,
		AuthenticatorData: w.AuthenticatorData,
		ClientDataJSON:    w.ClientDataJSON,
		Signature:         w.Signature,
		UserHandle:        w.UserHandle,
		PRF:               prf,
	}
}
