// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package webauthnbridge carries WebAuthn ceremony requests and
// responses across the parent-assisted bridge (WALLET_WEBAUTHN_{CREATE,
// GET,CREATE_RESULT,GET_RESULT}). The actual navigator.credentials
// create()/get() call, and the WebAuthn/WebCrypto primitives behind it,
// run in the browser the core is embedded in — an explicit external
// collaborator — so this package only defines the wire shapes exchanged
// with that collaborator and the PRF extension output the core consumes.
package webauthnbridge

// PublicKeyCredentialDescriptor identifies a credential eligible (or
// excluded) for a ceremony, mirroring the WebAuthn JSON shape.
type PublicKeyCredentialDescriptor struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"` // base64url
	Transports []string `json:"transports,omitempty"`
}

// PRFExtensionInputs requests the PRF extension for one or two
// evaluation points during a ceremony.
type PRFExtensionInputs struct {
	EvalFirst  []byte `json:"evalFirst"`
	EvalSecond []byte `json:"evalSecond,omitempty"`
}

// PRFExtensionOutputs carries the authenticator's PRF evaluation back;
// Second is empty unless EvalSecond was requested.
type PRFExtensionOutputs struct {
	First  []byte `json:"first"`
	Second []byte `json:"second,omitempty"`
}

// AuthenticatorSelection narrows which authenticators may satisfy a
// registration ceremony.
type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	ResidentKey             string `json:"residentKey,omitempty"`
	RequireResidentKey      bool   `json:"requireResidentKey,omitempty"`
	UserVerification        string `json:"userVerification,omitempty"`
}

// RelyingParty identifies the site performing the ceremony.
type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserEntity identifies the account a registration ceremony is for.
type UserEntity struct {
	ID          []byte `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialCreationOptions is the PublicKeyCredentialCreationOptions
// JSON shape requested of navigator.credentials.create().
type CredentialCreationOptions struct {
	RP                     RelyingParty                   `json:"rp"`
	User                   UserEntity                      `json:"user"`
	Challenge              []byte                          `json:"challenge"`
	PubKeyCredParams       []PubKeyCredParam               `json:"pubKeyCredParams"`
	TimeoutMs              int                             `json:"timeout,omitempty"`
	ExcludeCredentials     []PublicKeyCredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *AuthenticatorSelection          `json:"authenticatorSelection,omitempty"`
	Attestation            string                          `json:"attestation,omitempty"`
	PRF                    *PRFExtensionInputs              `json:"prf,omitempty"`
}

// PubKeyCredParam names one accepted public key algorithm, by its COSE
// identifier (-7 for ES256, -257 for RS256).
type PubKeyCredParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// CredentialRequestOptions is the PublicKeyCredentialRequestOptions JSON
// shape requested of navigator.credentials.get().
type CredentialRequestOptions struct {
	Challenge        []byte                          `json:"challenge"`
	TimeoutMs        int                             `json:"timeout,omitempty"`
	RPID             string                          `json:"rpId,omitempty"`
	AllowCredentials []PublicKeyCredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                          `json:"userVerification,omitempty"`
	PRF              *PRFExtensionInputs              `json:"prf,omitempty"`
}

// AttestationResponse is the registration ceremony's result, the subset
// of PublicKeyCredential + AuthenticatorAttestationResponse the core
// needs.
type AttestationResponse struct {
	CredentialID      []byte               `json:"credentialId"`
	AttestationObject []byte               `json:"attestationObject"`
	ClientDataJSON    []byte               `json:"clientDataJSON"`
	Transports        []string             `json:"transports,omitempty"`
	PRF               *PRFExtensionOutputs `json:"prf,omitempty"`
}

// AssertionResponse is the authentication ceremony's result, the subset
// of PublicKeyCredential + AuthenticatorAssertionResponse the core needs.
type AssertionResponse struct {
	CredentialID      []byte               `json:"credentialId"`
	AuthenticatorData []byte               `json:"authenticatorData"`
	ClientDataJSON    []byte               `json:"clientDataJSON"`
	Signature         []byte               `json:"signature"`
	UserHandle        []byte               `json:"userHandle,omitempty"`
	PRF               *PRFExtensionOutputs `json:"prf,omitempty"`
}

// DefaultPubKeyCredParams lists the algorithms the bridge asks the
// authenticator to support: ES256 then RS256, the widest-compatible
// ordering recommended by the WebAuthn spec.
func DefaultPubKeyCredParams() []PubKeyCredParam {
	return []PubKeyCredParam{
		{Type: "public-key", Alg: -7},
		{Type: "public-key", Alg: -257},
	}
}
