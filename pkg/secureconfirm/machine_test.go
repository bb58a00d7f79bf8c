// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package secureconfirm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginFlowHappyPath(t *testing.T) {
	require := require.New(t)
	var cleaned int
	m := New(FlowLogin, func() { cleaned++ })

	require.Equal(PhaseLoginPreparation, m.Current())
	require.NoError(m.Advance(PhaseLoginWebauthnAssertion))
	require.NoError(m.Advance(PhaseLoginVRFUnlock))
	require.NoError(m.Advance(PhaseLoginComplete))
	require.True(m.IsDone())
	require.Equal(1, cleaned)
}

func TestLoginFlowRejectsSkippedPhase(t *testing.T) {
	require := require.New(t)
	m := New(FlowLogin, nil)
	err := m.Advance(PhaseLoginComplete)
	require.Error(err)
	var invalid *ErrInvalidTransition
	require.ErrorAs(err, &invalid)
}

func TestLoginFlowCanErrorFromAnyPhase(t *testing.T) {
	require := require.New(t)
	var cleaned int
	m := New(FlowLogin, func() { cleaned++ })
	require.NoError(m.Advance(PhaseLoginWebauthnAssertion))
	require.NoError(m.Advance(PhaseLoginError))
	require.True(m.IsDone())
	require.Equal(1, cleaned)
}

func TestAdvanceAfterDoneErrors(t *testing.T) {
	require := require.New(t)
	m := New(FlowLogin, nil)
	require.NoError(m.Advance(PhaseLoginError))
	err := m.Advance(PhaseLoginWebauthnAssertion)
	require.Error(err)
}

func TestCancelRunsCleanupOnceFromMidFlow(t *testing.T) {
	require := require.New(t)
	var cleaned int
	m := New(FlowSign, func() { cleaned++ })
	require.NoError(m.Advance(PhaseSignUserConfirmation))
	m.Cancel()
	require.Equal(PhaseCancelled, m.Current())
	require.Equal(1, cleaned)

	// Cancel is idempotent.
	m.Cancel()
	require.Equal(1, cleaned)
}

func TestRegistrationFullSequence(t *testing.T) {
	require := require.New(t)
	m := New(FlowRegister, nil)
	sequence := []Phase{
		PhaseRegKeyGeneration, PhaseRegAccessKeyAddition, PhaseRegAccountVerification,
		PhaseRegDatabaseStorage, PhaseRegContractRegistration, PhaseRegComplete,
	}
	for _, phase := range sequence {
		require.NoError(m.Advance(phase))
	}
	require.True(m.IsDone())
}

func TestDeviceLinkingFullSequence(t *testing.T) {
	require := require.New(t)
	m := New(FlowDeviceLinking, nil)
	sequence := []Phase{
		PhaseDLQRCodeGenerated, PhaseDLScanning, PhaseDLAuthorization,
		PhaseDLPolling, PhaseDLAddKeyDetected, PhaseDLRegistration,
		PhaseDLLinkingComplete, PhaseDLAutoLogin,
	}
	for _, phase := range sequence {
		require.NoError(m.Advance(phase))
	}
	require.True(m.IsDone())
}

func TestExportFlowIsShort(t *testing.T) {
	require := require.New(t)
	m := New(FlowExport, nil)
	require.Equal(PhaseExportConfirmation, m.Current())
	require.NoError(m.Advance(PhaseExportComplete))
	require.True(m.IsDone())
}
