// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nearfi/passkeywallet/pkg/config"
	"github.com/nearfi/passkeywallet/pkg/passkeymanager"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
	"github.com/nearfi/passkeywallet/pkg/wallettypes"
	"github.com/nearfi/passkeywallet/pkg/walleterrors"
)

func decodePayload(msg rpcenvelope.Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return walleterrors.Wrap(walleterrors.KindValidation, walleterrors.CodeUnknown, "malformed request payload", err)
	}
	return nil
}

// progressReporter adapts a requestID into a passkeymanager.ProgressFunc
// that streams PROGRESS Messages over the Host's Port.
func (h *Host) progressReporter(requestID string) passkeymanager.ProgressFunc {
	return func(phase secureconfirm.Phase, status string, message string) {
		var st rpcenvelope.Status
		switch status {
		case "success":
			st = rpcenvelope.StatusSuccess
		case "error":
			st = rpcenvelope.StatusError
		default:
			st = rpcenvelope.StatusProgress
		}
		if err := h.Port.Send(rpcenvelope.NewProgress(requestID, string(phase), st, message)); err != nil {
			h.Log.Warnf("host: failed sending progress for %s: %v", requestID, err)
		}
	}
}

func (h *Host) sendResult(requestID string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		h.sendError(requestID, walleterrors.Wrap(walleterrors.KindWalletTransport, walleterrors.CodeUnknown, "failed encoding result", err))
		return
	}
	if err := h.Port.Send(rpcenvelope.NewResult(requestID, raw)); err != nil {
		h.Log.Warnf("host: failed sending result for %s: %v", requestID, err)
	}
}

// sendQRProgress streams an extra PROGRESS carrying the QR payload as
// Data, alongside (not instead of) the plain phase/status progress
// StartDeviceLink already reports through progressReporter.
func (h *Host) sendQRProgress(requestID, qr string) {
	data, err := json.Marshal(qrPayload{QR: qr})
	if err != nil {
		h.Log.Warnf("host: failed encoding qr payload for %s: %v", requestID, err)
		return
	}
	payload := rpcenvelope.ProgressPayload{
		Phase:   string(secureconfirm.PhaseDLQRCodeGenerated),
		Status:  rpcenvelope.StatusProgress,
		Message: "qr code ready",
		Data:    data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.Log.Warnf("host: failed encoding qr progress for %s: %v", requestID, err)
		return
	}
	if err := h.Port.Send(rpcenvelope.Message{Type: rpcenvelope.TypeProgress, RequestID: requestID, Payload: raw}); err != nil {
		h.Log.Warnf("host: failed sending qr progress for %s: %v", requestID, err)
	}
}

func (h *Host) sendError(requestID string, err error) {
	var we *walleterrors.WalletError
	if !errors.As(err, &we) {
		we = walleterrors.Wrap(walleterrors.KindWalletTransport, walleterrors.CodeUnknown, err.Error(), err)
	}
	msg := rpcenvelope.NewError(requestID, string(we.Code), walleterrors.UserMessage(we.Code, requestID), we.Details)
	if sendErr := h.Port.Send(msg); sendErr != nil {
		h.Log.Warnf("host: failed sending error for %s: %v", requestID, sendErr)
	}
}

// --- REGISTER ---

type registerRequest struct {
	AccountID    string            `json:"accountId"`
	DeviceNumber uint32            `json:"deviceNumber"`
	RPID         string            `json:"rpId"`
	Attestation  wireAttestation   `json:"attestation"`
	Challenge    *wireVRFChallenge `json:"challenge,omitempty"`
}

type registerResponse struct {
	AccountID     string `json:"accountId"`
	NearPublicKey string `json:"nearPublicKey"`
	SessionID     string `json:"sessionId"`
}

func (h *Host) handleRegister(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	var req registerRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	result, err := h.Manager.Register(ctx, h.Relayer, passkeymanager.RegisterParams{
		AccountID:    wallettypes.AccountID(req.AccountID),
		DeviceNumber: req.DeviceNumber,
		RPID:         req.RPID,
		Attestation:  req.Attestation.toInternal(),
		Challenge:    req.Challenge.toInternal(),
	}, h.progressReporter(msg.RequestID))
	if err != nil {
		return nil, err
	}
	return registerResponse{AccountID: string(result.AccountID), NearPublicKey: result.NearPublicKey, SessionID: result.SessionID}, nil
}

// --- LOGIN ---

type loginRequest struct {
	AccountID string        `json:"accountId"`
	RPID      string        `json:"rpId"`
	Assertion wireAssertion `json:"assertion"`
}

type loginResponse struct {
	AccountID string `json:"accountId"`
	SessionID string `json:"sessionId"`
}

func (h *Host) handleLogin(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	var req loginRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	result, err := h.Manager.Login(ctx, passkeymanager.LoginParams{
		AccountID: wallettypes.AccountID(req.AccountID),
		RPID:      req.RPID,
		Assertion: req.Assertion.toInternal(),
	}, h.progressReporter(msg.RequestID))
	if err != nil {
		return nil, err
	}
	return loginResponse{AccountID: string(result.AccountID), SessionID: result.SessionID}, nil
}

// --- GET_LOGIN_STATE ---

type loginStateResponse struct {
	AccountID string `json:"accountId,omitempty"`
	LoggedIn  bool   `json:"loggedIn"`
}

func (h *Host) handleGetLoginState(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	accountID, err := h.Manager.GetLoginState(ctx)
	if err != nil {
		return loginStateResponse{LoggedIn: false}, nil
	}
	return loginStateResponse{AccountID: string(accountID), LoggedIn: accountID != ""}, nil
}

// --- SIGN_TXS_WITH_ACTIONS / SIGN_AND_SEND_TXS ---

type signRequest struct {
	SessionID    string                  `json:"sessionId"`
	AccountID    string                  `json:"accountId"`
	DeviceNumber uint32                  `json:"deviceNumber"`
	Inputs       []wireTransactionInput  `json:"inputs"`
}

type signResponse struct {
	Signed []wireSignedTransaction `json:"signed"`
}

func (h *Host) handleSign(ctx context.Context, msg rpcenvelope.Message, broadcast bool) (any, error) {
	var req signRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	inputs := make([]wallettypes.TransactionInput, len(req.Inputs))
	for i, in := range req.Inputs {
		inputs[i] = in.toInternal()
	}
	result, err := h.Manager.Sign(ctx, passkeymanager.SignParams{
		SessionID:    req.SessionID,
		AccountID:    wallettypes.AccountID(req.AccountID),
		DeviceNumber: req.DeviceNumber,
		Inputs:       inputs,
		Broadcast:    broadcast,
	}, h.progressReporter(msg.RequestID))
	if err != nil {
		return nil, err
	}
	signed := make([]wireSignedTransaction, len(result.Signed))
	for i, s := range result.Signed {
		signed[i] = wireSignedTransactionFrom(s)
	}
	return signResponse{Signed: signed}, nil
}

// --- EXPORT_NEAR_KEYPAIR_UI ---

type exportRequest struct {
	SessionID    string `json:"sessionId"`
	AccountID    string `json:"accountId"`
	DeviceNumber uint32 `json:"deviceNumber"`
}

type exportResponse struct {
	AccountID      string `json:"accountId"`
	NearPublicKey  string `json:"nearPublicKey"`
	NearPrivateKey string `json:"nearPrivateKey"`
}

func (h *Host) handleExport(msg rpcenvelope.Message) (any, error) {
	var req exportRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	result, err := h.Manager.Export(passkeymanager.ExportParams{
		SessionID:    req.SessionID,
		AccountID:    wallettypes.AccountID(req.AccountID),
		DeviceNumber: req.DeviceNumber,
	}, h.progressReporter(msg.RequestID))
	if err != nil {
		return nil, err
	}
	return exportResponse{AccountID: string(result.AccountID), NearPublicKey: result.NearPublicKey, NearPrivateKey: result.NearPrivateKey}, nil
}

// --- START_DEVICE2_LINKING_FLOW ---
//
// A single sticky request spans the whole Device2 side of linking:
// generate the QR, poll for the mapping, then swap in the permanent
// key, streaming PROGRESS the whole way and resolving once with the
// final RegisterResult. STOP_DEVICE2_LINKING_FLOW/CANCEL on this same
// requestId cancels it mid-flight via the context passed down from
// dispatch.

type startDevice2LinkingRequest struct {
	AccountID   *string           `json:"accountId,omitempty"`
	PRFFirst    []byte            `json:"prfFirst"`
	WrapKeySalt []byte            `json:"wrapKeySalt"`
	Challenge   *wireVRFChallenge `json:"challenge,omitempty"`
}

type device2LinkingResponse struct {
	AccountID     string `json:"accountId"`
	NearPublicKey string `json:"nearPublicKey"`
	SessionID     string `json:"sessionId"`
}

type qrPayload struct {
	QR string `json:"qr"`
}

func (h *Host) handleStartDevice2LinkingFlow(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	var req startDevice2LinkingRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	var accountID *wallettypes.AccountID
	if req.AccountID != nil {
		id := wallettypes.AccountID(*req.AccountID)
		accountID = &id
	}
	report := h.progressReporter(msg.RequestID)

	session, qr, err := h.Manager.StartDeviceLink(passkeymanager.StartDeviceLinkParams{AccountID: accountID, Now: time.Now()}, report)
	if err != nil {
		return nil, err
	}
	h.sendQRProgress(msg.RequestID, qr)

	mapping, err := h.Manager.PollForDeviceLink(ctx, session, report)
	if err != nil {
		return nil, err
	}

	result, err := h.Manager.CompleteDeviceLink(ctx, passkeymanager.CompleteDeviceLinkParams{
		Session:     session,
		Mapping:     mapping,
		PRFFirst:    req.PRFFirst,
		WrapKeySalt: req.WrapKeySalt,
		Challenge:   req.Challenge.toInternal(),
	}, report)
	if err != nil {
		return nil, err
	}
	return device2LinkingResponse{AccountID: string(result.AccountID), NearPublicKey: result.NearPublicKey, SessionID: result.SessionID}, nil
}

// --- LINK_DEVICE_WITH_SCANNED_QR_DATA (Device1 side) ---

type linkDeviceWithScannedQRRequest struct {
	AccountID       string `json:"accountId"`
	OwnDeviceNumber uint32 `json:"ownDeviceNumber"`
	QREncoded       string `json:"qrEncoded"`
	PRFFirst        []byte `json:"prfFirst"`
	WrapKeySalt     []byte `json:"wrapKeySalt"`
}

type linkDeviceWithScannedQRResponse struct {
	NewDeviceNumber uint32 `json:"newDeviceNumber"`
}

func (h *Host) handleLinkDeviceWithScannedQR(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	var req linkDeviceWithScannedQRRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	newDeviceNumber, rollback, err := h.Manager.AuthorizeDeviceLink(ctx, passkeymanager.AuthorizeDeviceLinkParams{
		AccountID:       wallettypes.AccountID(req.AccountID),
		OwnDeviceNumber: req.OwnDeviceNumber,
		QREncoded:       req.QREncoded,
		PRFFirst:        req.PRFFirst,
		WrapKeySalt:     req.WrapKeySalt,
		Now:             time.Now(),
	}, h.progressReporter(msg.RequestID))
	if err != nil {
		return nil, err
	}
	h.trackRollback(req.AccountID, newDeviceNumber, rollback)
	return linkDeviceWithScannedQRResponse{NewDeviceNumber: newDeviceNumber}, nil
}

// --- SET_CONFIG ---

func (h *Host) handleSetConfig(msg rpcenvelope.Message) (any, error) {
	cfg := config.DefaultWalletConfig()
	if err := decodePayload(msg, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindValidation, walleterrors.CodeUnknown, fmt.Sprintf("invalid config: %v", err), err)
	}
	*h.Manager.Conf = cfg
	return struct{}{}, nil
}

// --- SHAMIR_3PASS_ENCRYPT / SHAMIR_3PASS_DECRYPT ---

type shamir3PassRequest struct {
	AccountID string `json:"accountId"`
}

type shamir3PassEncryptResponse struct {
	ServerKeyID string `json:"serverKeyId"`
	Blob        string `json:"blob"`
}

func (h *Host) handleShamir3PassEncrypt(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	var req shamir3PassRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	blob, err := h.Manager.BackupVRFKeyToServer(ctx, wallettypes.AccountID(req.AccountID))
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindWalletTransport, walleterrors.CodeUnknown, "shamir 3-pass encrypt failed", err)
	}
	return shamir3PassEncryptResponse{ServerKeyID: blob.ServerKeyID, Blob: base64.StdEncoding.EncodeToString(blob.Blob)}, nil
}

func (h *Host) handleShamir3PassDecrypt(ctx context.Context, msg rpcenvelope.Message) (any, error) {
	var req shamir3PassRequest
	if err := decodePayload(msg, &req); err != nil {
		return nil, err
	}
	if err := h.Manager.RestoreVRFKeyFromServer(ctx, wallettypes.AccountID(req.AccountID)); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindWalletTransport, walleterrors.CodeUnknown, "shamir 3-pass decrypt failed", err)
	}
	return struct{}{}, nil
}
