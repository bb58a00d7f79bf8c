// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package secureconfirm implements the phase state machine every
// confirmation-bearing operation (register, login, sign, link, export)
// advances through, generalizing statemachine.StateType's four-state
// enum (Unknown/Init/InProgress/Complete) into a per-operation ordered
// phase graph with an explicit error phase and cancellation cleanup.
package secureconfirm

// Phase is a wire-stable progress phase string, carried on the PROGRESS
// envelope's payload.phase field.
type Phase string

// FlowKind identifies which operation's phase graph a Machine follows.
type FlowKind string

const (
	FlowRegister       FlowKind = "register"
	FlowLogin          FlowKind = "login"
	FlowSign           FlowKind = "sign"
	FlowDeviceLinking  FlowKind = "device_linking"
	FlowExport         FlowKind = "export"
)

// Registration phases.
const (
	PhaseRegWebauthnVerification Phase = "STEP_1_WEBAUTHN_VERIFICATION"
	PhaseRegKeyGeneration        Phase = "STEP_2_KEY_GENERATION"
	PhaseRegAccessKeyAddition    Phase = "STEP_3_ACCESS_KEY_ADDITION"
	PhaseRegAccountVerification  Phase = "STEP_4_ACCOUNT_VERIFICATION"
	PhaseRegDatabaseStorage      Phase = "STEP_5_DATABASE_STORAGE"
	PhaseRegContractRegistration Phase = "STEP_6_CONTRACT_REGISTRATION"
	PhaseRegComplete             Phase = "STEP_7_REGISTRATION_COMPLETE"
	PhaseRegError                Phase = "REGISTRATION_ERROR"
)

// Login phases.
const (
	PhaseLoginPreparation       Phase = "STEP_1_PREPARATION"
	PhaseLoginWebauthnAssertion Phase = "STEP_2_WEBAUTHN_ASSERTION"
	PhaseLoginVRFUnlock         Phase = "STEP_3_VRF_UNLOCK"
	PhaseLoginComplete          Phase = "STEP_4_LOGIN_COMPLETE"
	PhaseLoginError             Phase = "LOGIN_ERROR"
)

// Signing/action phases, per §COMPONENT DESIGN's worked example.
const (
	PhaseSignPreparation           Phase = "STEP_1_PREPARATION"
	PhaseSignUserConfirmation      Phase = "STEP_2_USER_CONFIRMATION"
	PhaseSignContractVerification  Phase = "STEP_3_CONTRACT_VERIFICATION"
	PhaseSignWebauthnAuthentication Phase = "STEP_4_WEBAUTHN_AUTHENTICATION"
	PhaseSignAuthenticationComplete Phase = "STEP_5_AUTHENTICATION_COMPLETE"
	PhaseSignTransactionSigning    Phase = "STEP_6_TRANSACTION_SIGNING_PROGRESS"
	PhaseSignTransactionComplete   Phase = "STEP_6_TRANSACTION_SIGNING_COMPLETE"
	PhaseSignBroadcasting          Phase = "STEP_7_BROADCASTING"
	PhaseSignActionComplete        Phase = "STEP_8_ACTION_COMPLETE"
	PhaseSignError                 Phase = "ACTION_ERROR"
)

// Device-linking phases reuse wallettypes.DeviceLinkingPhase's wire
// strings so both packages describe the same flow identically; they're
// redeclared here as Phase values purely so Machine can treat them
// uniformly with every other flow's phases.
const (
	PhaseDLIdle               Phase = "IDLE"
	PhaseDLQRCodeGenerated    Phase = "STEP_1_QR_CODE_GENERATED"
	PhaseDLScanning           Phase = "STEP_2_SCANNING"
	PhaseDLAuthorization      Phase = "STEP_3_AUTHORIZATION"
	PhaseDLPolling            Phase = "STEP_4_POLLING"
	PhaseDLAddKeyDetected     Phase = "STEP_5_ADDKEY_DETECTED"
	PhaseDLRegistration       Phase = "STEP_6_REGISTRATION"
	PhaseDLLinkingComplete    Phase = "STEP_7_LINKING_COMPLETE"
	PhaseDLAutoLogin          Phase = "STEP_8_AUTO_LOGIN"
	PhaseDLRegistrationError  Phase = "REGISTRATION_ERROR"
	PhaseDLLoginError         Phase = "LOGIN_ERROR"
	PhaseDLDeviceLinkingError Phase = "DEVICE_LINKING_ERROR"
)

// Export phases, the narrowest of the confirmation-bearing flows: a
// single user-confirmation gate before revealing key material.
const (
	PhaseExportConfirmation Phase = "STEP_1_USER_CONFIRMATION"
	PhaseExportComplete     Phase = "STEP_2_EXPORT_COMPLETE"
	PhaseExportError        Phase = "EXPORT_ERROR"
)

// PhaseCancelled is the universal terminal phase reached via Cancel(),
// shared across every flow kind.
const PhaseCancelled Phase = "CANCELLED"

// graph describes one flow's linear phase order and its designated
// error phase. Any non-terminal phase may transition directly to the
// error phase (a failure can occur at any step); only the documented
// next phase is otherwise a valid forward transition.
type graph struct {
	order     []Phase
	errorPhase Phase
}

var graphs = map[FlowKind]graph{
	FlowRegister: {
		order: []Phase{
			PhaseRegWebauthnVerification, PhaseRegKeyGeneration, PhaseRegAccessKeyAddition,
			PhaseRegAccountVerification, PhaseRegDatabaseStorage, PhaseRegContractRegistration,
			PhaseRegComplete,
		},
		errorPhase: PhaseRegError,
	},
	FlowLogin: {
		order: []Phase{
			PhaseLoginPreparation, PhaseLoginWebauthnAssertion, PhaseLoginVRFUnlock, PhaseLoginComplete,
		},
		errorPhase: PhaseLoginError,
	},
	FlowSign: {
		order: []Phase{
			PhaseSignPreparation, PhaseSignUserConfirmation, PhaseSignContractVerification,
			PhaseSignWebauthnAuthentication, PhaseSignAuthenticationComplete,
			PhaseSignTransactionSigning, PhaseSignTransactionComplete,
			PhaseSignBroadcasting, PhaseSignActionComplete,
		},
		errorPhase: PhaseSignError,
	},
	FlowDeviceLinking: {
		order: []Phase{
			PhaseDLIdle, PhaseDLQRCodeGenerated, PhaseDLScanning, PhaseDLAuthorization,
			PhaseDLPolling, PhaseDLAddKeyDetected, PhaseDLRegistration,
			PhaseDLLinkingComplete, PhaseDLAutoLogin,
		},
		errorPhase: PhaseDLDeviceLinkingError,
	},
	FlowExport: {
		order:      []Phase{PhaseExportConfirmation, PhaseExportComplete},
		errorPhase: PhaseExportError,
	},
}

// isTerminal reports whether phase ends a flow's machine: its graph's
// last phase, its error phase, or the universal cancelled phase.
func (g graph) isTerminal(phase Phase) bool {
	if phase == PhaseCancelled || phase == g.errorPhase {
		return true
	}
	return len(g.order) > 0 && g.order[len(g.order)-1] == phase
}

func (g graph) indexOf(phase Phase) int {
	for i, p := range g.order {
		if p == phase {
			return i
		}
	}
	return -1
}
