// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpcenvelope defines the JSON-serializable message carried across
// the Router/WalletHost boundary and the Port abstraction used to
// exchange them, the same request/response envelope shape as the
// teacher's WalletConnect JSON-RPC plumbing (wcRequest/wcResponse) but
// keyed by requestId/type rather than a numeric JSON-RPC id.
package rpcenvelope

import (
	"encoding/json"
)

// Op is a parent-to-child operation name, carried as the message Type
// with a "PM_" wire prefix.
type Op string

const (
	OpRegister                Op = "REGISTER"
	OpLogin                   Op = "LOGIN"
	OpLogout                  Op = "LOGOUT"
	OpGetLoginState           Op = "GET_LOGIN_STATE"
	OpSignTxsWithActions      Op = "SIGN_TXS_WITH_ACTIONS"
	OpSignAndSendTxs          Op = "SIGN_AND_SEND_TXS"
	OpExecuteAction           Op = "EXECUTE_ACTION"
	OpSendTransaction         Op = "SEND_TRANSACTION"
	OpSignNep413              Op = "SIGN_NEP413"
	OpViewAccessKeys          Op = "VIEW_ACCESS_KEYS"
	OpHasPasskey              Op = "HAS_PASSKEY"
	OpDeleteDeviceKey         Op = "DELETE_DEVICE_KEY"
	OpExportNearKeypairUI     Op = "EXPORT_NEAR_KEYPAIR_UI"
	OpLinkDeviceWithScannedQR Op = "LINK_DEVICE_WITH_SCANNED_QR_DATA"
	OpStartDevice2LinkingFlow Op = "START_DEVICE2_LINKING_FLOW"
	OpStopDevice2LinkingFlow  Op = "STOP_DEVICE2_LINKING_FLOW"
	OpRecoverAccountFlow      Op = "RECOVER_ACCOUNT_FLOW"
	OpSetConfig               Op = "SET_CONFIG"
	OpSetConfirmBehavior      Op = "SET_CONFIRM_BEHAVIOR"
	OpSetConfirmationConfig   Op = "SET_CONFIRMATION_CONFIG"
	OpGetConfirmationConfig   Op = "GET_CONFIRMATION_CONFIG"
	OpSetTheme                Op = "SET_THEME"
	OpPrefetchBlockheight     Op = "PREFETCH_BLOCKHEIGHT"
	OpGetRecentLogins         Op = "GET_RECENT_LOGINS"
	OpShamir3PassEncrypt      Op = "SHAMIR_3PASS_ENCRYPT"
	OpShamir3PassDecrypt      Op = "SHAMIR_3PASS_DECRYPT"
	OpCancel                  Op = "CANCEL"
)

// wirePrefix is prepended to Op to form the message's wire Type, e.g.
// "PM_REGISTER".
const wirePrefix = "PM_"

// WireType returns the full "PM_<OP>" wire type string for op.
func (op Op) WireType() string {
	return wirePrefix + string(op)
}

// Type is the discriminator carried on every Message, covering both
// parent→child request types ("PM_<OP>") and child→parent streaming types
// (PROGRESS, PM_RESULT, ERROR) plus the out-of-band handshake types.
type Type string

const (
	TypeProgress Type = "PROGRESS"
	TypeResult   Type = "PM_RESULT"
	TypeError    Type = "ERROR"

	TypeConnect                Type = "CONNECT"
	TypeReady                  Type = "READY"
	TypeServiceHostBooted      Type = "SERVICE_HOST_BOOTED"
	TypeServiceHostDebugOrigin Type = "SERVICE_HOST_DEBUG_ORIGIN"
	TypeServiceHostLog         Type = "SERVICE_HOST_LOG"
	TypeWalletUIRegisterTypes  Type = "WALLET_UI_REGISTER_TYPES"
	TypeWalletUIMount          Type = "WALLET_UI_MOUNT"
	TypeWalletUIUpdate         Type = "WALLET_UI_UPDATE"
	TypeWalletUIUnmount        Type = "WALLET_UI_UNMOUNT"
	TypeWalletUIClosed         Type = "WALLET_UI_CLOSED"
	TypeRegisterButtonSubmit   Type = "REGISTER_BUTTON_SUBMIT"
	TypeRegisterButtonResult   Type = "REGISTER_BUTTON_RESULT"
	TypeWebauthnCreate         Type = "WALLET_WEBAUTHN_CREATE"
	TypeWebauthnGet            Type = "WALLET_WEBAUTHN_GET"
	TypeWebauthnCreateResult   Type = "WALLET_WEBAUTHN_CREATE_RESULT"
	TypeWebauthnGetResult      Type = "WALLET_WEBAUTHN_GET_RESULT"
)

// RequestOptions is the allowlisted subset of options that may cross the
// port; all function-valued fields are stripped by the Router before a
// message is posted, per the no-callbacks-across-the-boundary rule.
type RequestOptions struct {
	Sticky bool `json:"sticky,omitempty"`
}

// Message is the single wire shape exchanged over a Port in both
// directions: {type, requestId, payload, options?}. Parent→child it
// carries a "PM_<OP>" Type with the op's typed request payload; child→
// parent it carries PROGRESS/PM_RESULT/ERROR with the corresponding typed
// payload marshaled into Payload.
type Message struct {
	Type      Type            `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Options   *RequestOptions `json:"options,omitempty"`
}

// NewRequest builds a parent→child request message for op.
func NewRequest(op Op, requestID string, payload any, opts *RequestOptions) (Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	return Message{Type: Type(op.WireType()), RequestID: requestID, Payload: raw, Options: opts}, nil
}

// Status is the per-PROGRESS-event status discriminator.
type Status string

const (
	StatusProgress Status = "progress"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// ProgressPayload is the payload carried on a child→parent PROGRESS
// message.
type ProgressPayload struct {
	Step    int             `json:"step,omitempty"`
	Phase   string          `json:"phase"`
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the {code, message, details?} body of an ERROR message.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ResultPayload is the {ok: true, result} body of a PM_RESULT message.
type ResultPayload struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
}

// NewProgress builds a PROGRESS message.
func NewProgress(requestID, phase string, status Status, message string) Message {
	p := ProgressPayload{Phase: phase, Status: status, Message: message}
	raw, _ := json.Marshal(p)
	return Message{Type: TypeProgress, RequestID: requestID, Payload: raw}
}

// DecodeProgress parses m's Payload as a ProgressPayload. Callers should
// first check m.Type == TypeProgress.
func (m Message) DecodeProgress() (ProgressPayload, error) {
	var p ProgressPayload
	if len(m.Payload) == 0 {
		return p, nil
	}
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}

// NewResult builds a PM_RESULT message with an already-marshaled result.
func NewResult(requestID string, result json.RawMessage) Message {
	raw, _ := json.Marshal(ResultPayload{OK: true, Result: result})
	return Message{Type: TypeResult, RequestID: requestID, Payload: raw}
}

// DecodeResult parses m's Payload as a ResultPayload.
func (m Message) DecodeResult() (ResultPayload, error) {
	var r ResultPayload
	if len(m.Payload) == 0 {
		return r, nil
	}
	err := json.Unmarshal(m.Payload, &r)
	return r, err
}

// NewError builds an ERROR message.
func NewError(requestID, code, message string, details map[string]any) Message {
	raw, _ := json.Marshal(ErrorPayload{Code: code, Message: message, Details: details})
	return Message{Type: TypeError, RequestID: requestID, Payload: raw}
}

// DecodeError parses m's Payload as an ErrorPayload.
func (m Message) DecodeError() (ErrorPayload, error) {
	var e ErrorPayload
	if len(m.Payload) == 0 {
		return e, nil
	}
	err := json.Unmarshal(m.Payload, &e)
	return e, err
}

// ReadyPayload is the body of the READY out-of-band message.
type ReadyPayload struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// NewReady builds a READY out-of-band message.
func NewReady(protocolVersion string) Message {
	raw, _ := json.Marshal(ReadyPayload{ProtocolVersion: protocolVersion})
	return Message{Type: TypeReady, Payload: raw}
}

// DecodeReady parses m's Payload as a ReadyPayload.
func (m Message) DecodeReady() (ReadyPayload, error) {
	var r ReadyPayload
	if len(m.Payload) == 0 {
		return r, nil
	}
	err := json.Unmarshal(m.Payload, &r)
	return r, err
}
